// Package archive turns the assembled parts of a run into the single
// deliverable returned to the caller.
package archive

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zip"

	"github.com/loqalabs/loqa-narrator/internal/audio"
)

const (
	SingleFilename = "merged_audio.wav"
	BundleFilename = "audiobook_parts.zip"
	SingleMIMEType = "audio/wav"
	BundleMIMEType = "application/zip"
)

// ErrNoParts is returned when there is nothing to package.
var ErrNoParts = errors.New("no parts to package")

// Deliverable is the one file produced per run.
type Deliverable struct {
	Path     string
	Filename string
	MIMEType string
	Parts    int
	Duration float64
}

// Package passes a single part through as merged_audio.wav. Several parts are
// bundled into audiobook_parts.zip with one entry per part in part order.
func Package(files []audio.OutputFile, dir string) (Deliverable, error) {
	switch len(files) {
	case 0:
		return Deliverable{}, ErrNoParts
	case 1:
		return single(files[0], dir)
	}
	return bundle(files, dir)
}

func single(f audio.OutputFile, dir string) (Deliverable, error) {
	path := filepath.Join(dir, SingleFilename)
	if f.Path != path {
		if err := os.Rename(f.Path, path); err != nil {
			return Deliverable{}, fmt.Errorf("rename part: %w", err)
		}
	}
	return Deliverable{
		Path:     path,
		Filename: SingleFilename,
		MIMEType: SingleMIMEType,
		Parts:    1,
		Duration: f.Duration,
	}, nil
}

func bundle(files []audio.OutputFile, dir string) (d Deliverable, err error) {
	path := filepath.Join(dir, BundleFilename)
	out, err := os.Create(path)
	if err != nil {
		return Deliverable{}, fmt.Errorf("create archive: %w", err)
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close archive: %w", cerr)
		}
	}()

	zw := zip.NewWriter(out)
	var total float64
	for _, f := range files {
		if err := addEntry(zw, f); err != nil {
			return Deliverable{}, err
		}
		total += f.Duration
	}
	if err := zw.Close(); err != nil {
		return Deliverable{}, fmt.Errorf("finalize archive: %w", err)
	}
	return Deliverable{
		Path:     path,
		Filename: BundleFilename,
		MIMEType: BundleMIMEType,
		Parts:    len(files),
		Duration: total,
	}, nil
}

func addEntry(zw *zip.Writer, f audio.OutputFile) error {
	src, err := os.Open(f.Path)
	if err != nil {
		return fmt.Errorf("open part %d: %w", f.Part, err)
	}
	defer src.Close()

	w, err := zw.Create(audio.PartName(f.Part))
	if err != nil {
		return fmt.Errorf("add part %d: %w", f.Part, err)
	}
	if _, err := io.Copy(w, src); err != nil {
		return fmt.Errorf("write part %d: %w", f.Part, err)
	}
	return nil
}
