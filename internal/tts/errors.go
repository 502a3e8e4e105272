package tts

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrEmptyText is returned when attempting to synthesize empty text.
var ErrEmptyText = errors.New("text cannot be empty")

// UpstreamError is a non-success response from the provider.
type UpstreamError struct {
	// Status is the provider's HTTP status, zero when none was available.
	Status  int
	Message string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream error (status %d): %s", e.HTTPStatus(), e.Message)
}

// HTTPStatus is the status to surface to callers.
func (e *UpstreamError) HTTPStatus() int {
	if e.Status <= 0 {
		return http.StatusInternalServerError
	}
	return e.Status
}

// TransportError is a failure to reach the provider or to read its response.
type TransportError struct {
	Message string
	Cause   error
}

func (e *TransportError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *TransportError) Unwrap() error { return e.Cause }
