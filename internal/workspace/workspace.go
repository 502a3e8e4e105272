// Package workspace owns the scratch directories that hold a run's parts and
// deliverable until the response has been written.
package workspace

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
)

// Root is the process-wide scratch area. Bootstrap it once at startup and
// create one Dir per run.
type Root struct {
	path      string
	staticDir string
	log       *slog.Logger

	once sync.Once
	err  error
}

func NewRoot(path, staticDir string, log *slog.Logger) *Root {
	if log == nil {
		log = slog.Default()
	}
	return &Root{path: path, staticDir: staticDir, log: log}
}

// Bootstrap creates the scratch root and static directory. Later calls return
// the result of the first one.
func (r *Root) Bootstrap() error {
	r.once.Do(func() {
		for _, dir := range []string{r.path, r.staticDir} {
			if dir == "" {
				continue
			}
			if err := os.MkdirAll(dir, 0o755); err != nil {
				r.err = fmt.Errorf("create %s: %w", dir, err)
				return
			}
		}
		r.log.Info("workspace ready",
			slog.String("root", r.path),
			slog.String("static_dir", r.staticDir))
	})
	return r.err
}

func (r *Root) Path() string { return r.path }

// New creates a fresh directory exclusively owned by one run.
func (r *Root) New(prefix string) (*Dir, error) {
	if err := r.Bootstrap(); err != nil {
		return nil, err
	}
	if prefix == "" {
		prefix = "run"
	}
	path, err := os.MkdirTemp(r.path, prefix+"-")
	if err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	return &Dir{path: path, log: r.log}, nil
}

// Dir is a per-run scratch directory. Close removes it and everything in it.
type Dir struct {
	path string
	log  *slog.Logger

	mu     sync.Mutex
	closed bool
}

func (d *Dir) Path() string { return d.path }

// Close is safe to call more than once.
func (d *Dir) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	if err := os.RemoveAll(d.path); err != nil {
		d.log.Warn("scratch cleanup failed",
			slog.String("path", d.path),
			slog.String("error", err.Error()))
		return err
	}
	return nil
}
