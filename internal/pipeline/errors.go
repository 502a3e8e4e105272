package pipeline

import (
	"errors"
	"net/http"

	"github.com/loqalabs/loqa-narrator/internal/extract"
	"github.com/loqalabs/loqa-narrator/internal/tts"
)

// ErrEmptyText is returned when the input yields no segments.
var ErrEmptyText = errors.New("text is empty")

// StatusFor maps a run error onto the HTTP status surfaced to callers.
// Transport failures and anything unrecognized are 500.
func StatusFor(err error) int {
	var (
		unsupported *extract.UnsupportedFormatError
		upstream    *tts.UpstreamError
	)
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &unsupported),
		errors.Is(err, ErrEmptyText),
		errors.Is(err, tts.ErrEmptyText),
		errors.Is(err, extract.ErrInvalidText):
		return http.StatusBadRequest
	case errors.As(err, &upstream):
		return upstream.HTTPStatus()
	}
	return http.StatusInternalServerError
}

// Message is the caller-facing text for err. Upstream errors carry the
// provider's message verbatim.
func Message(err error) string {
	var upstream *tts.UpstreamError
	if errors.As(err, &upstream) {
		return upstream.Message
	}
	var unsupported *extract.UnsupportedFormatError
	if errors.As(err, &unsupported) {
		return unsupported.Error()
	}
	return err.Error()
}
