package audio

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
)

// OutputFile is one finalized part on disk.
type OutputFile struct {
	Part     int
	Path     string
	Duration float64
	Clips    int
}

// Assembler packs decoded clips into WAV parts by insertion order. A new part
// is cut whenever appending the next clip would push the current part past
// MaxDuration. A clip is never split, so a part holding a single clip longer
// than the ceiling is allowed.
type Assembler struct {
	dir         string
	maxDuration float64
	logger      *slog.Logger

	track Track
	part  int
	files []OutputFile
}

// NewAssembler writes parts into dir. maxDuration is in seconds; zero or less
// means unlimited, which always yields a single part.
func NewAssembler(dir string, maxDuration float64, logger *slog.Logger) *Assembler {
	if logger == nil {
		logger = slog.Default()
	}
	if maxDuration < 0 {
		maxDuration = 0
	}
	return &Assembler{
		dir:         dir,
		maxDuration: maxDuration,
		logger:      logger.With(slog.String("component", "assembler")),
		part:        1,
	}
}

// PartName is the file name used for a part.
func PartName(part int) string {
	return fmt.Sprintf("part_%d.wav", part)
}

// Assemble decodes every blob in order and returns the written parts.
func (a *Assembler) Assemble(ctx context.Context, blobs [][]byte) ([]OutputFile, error) {
	for i, blob := range blobs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := a.Add(i, blob); err != nil {
			return nil, err
		}
	}
	return a.Finish()
}

// Add decodes blob and appends it, flushing the current part first when the
// ceiling would be exceeded.
func (a *Assembler) Add(index int, blob []byte) error {
	clip, err := Decode(blob)
	if err != nil {
		return &DecodeError{Index: index, Cause: err}
	}
	d := clip.Duration()
	if a.maxDuration > 0 && a.track.Duration()+d > a.maxDuration && !a.track.Empty() {
		if err := a.flush(); err != nil {
			return err
		}
	}
	if err := a.track.Append(clip); err != nil {
		return &DecodeError{Index: index, Cause: err}
	}
	return nil
}

// Finish flushes the trailing part and returns every part written.
func (a *Assembler) Finish() ([]OutputFile, error) {
	if !a.track.Empty() {
		if err := a.flush(); err != nil {
			return nil, err
		}
	}
	return a.files, nil
}

func (a *Assembler) flush() error {
	path := filepath.Join(a.dir, PartName(a.part))
	if err := a.track.WriteFile(path); err != nil {
		return fmt.Errorf("flush part %d: %w", a.part, err)
	}
	out := OutputFile{
		Part:     a.part,
		Path:     path,
		Duration: a.track.Duration(),
		Clips:    a.track.Clips(),
	}
	a.files = append(a.files, out)
	a.logger.Debug("part written",
		slog.Int("part", out.Part),
		slog.Int("clips", out.Clips),
		slog.Float64("duration_s", out.Duration))
	a.track.Reset()
	a.part++
	return nil
}
