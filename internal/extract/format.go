// Package extract turns uploaded documents into plain text ready for
// segmentation.
package extract

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Format is the closed set of accepted source formats.
type Format int

const (
	PlainText Format = iota + 1
	Epub
	Pdf
)

// ErrInvalidText is returned when a document yields no usable text.
var ErrInvalidText = errors.New("document contains no readable text")

// UnsupportedFormatError rejects a file whose extension is not accepted.
type UnsupportedFormatError struct {
	Filename string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("Unsupported file type. Only %s files are supported.", allowedList())
}

// Extractor reads the text content of one document.
type Extractor interface {
	Extract(content []byte) (string, error)
}

var formats = []Format{PlainText, Epub, Pdf}

// Extension is the file extension that selects f.
func (f Format) Extension() string {
	switch f {
	case PlainText:
		return ".txt"
	case Epub:
		return ".epub"
	case Pdf:
		return ".pdf"
	}
	return ""
}

func (f Format) String() string {
	switch f {
	case PlainText:
		return "text"
	case Epub:
		return "epub"
	case Pdf:
		return "pdf"
	}
	return "unknown"
}

// Extractor returns the extraction capability for f.
func (f Format) Extractor() Extractor {
	switch f {
	case PlainText:
		return plainText{}
	case Epub:
		return epubText{}
	case Pdf:
		return pdfText{}
	}
	return nil
}

// FormatFromFilename picks the format by extension, case-insensitively.
func FormatFromFilename(name string) (Format, error) {
	ext := strings.ToLower(filepath.Ext(name))
	for _, f := range formats {
		if f.Extension() == ext {
			return f, nil
		}
	}
	return 0, &UnsupportedFormatError{Filename: name}
}

// File extracts the text of a named upload.
func File(name string, content []byte) (string, error) {
	f, err := FormatFromFilename(name)
	if err != nil {
		return "", err
	}
	text, err := f.Extractor().Extract(content)
	if err != nil {
		return "", fmt.Errorf("extract %s: %w", f, err)
	}
	return text, nil
}

func allowedList() string {
	exts := make([]string, len(formats))
	for i, f := range formats {
		exts[i] = f.Extension()
	}
	return strings.Join(exts[:len(exts)-1], ", ") + " and " + exts[len(exts)-1]
}
