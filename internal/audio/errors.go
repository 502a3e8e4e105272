package audio

import (
	"errors"
	"fmt"
)

// ErrFormatMismatch is returned when a clip's sample format differs from the
// clips already accumulated in a track.
var ErrFormatMismatch = errors.New("audio format mismatch")

// DecodeError reports a blob that could not be decoded.
type DecodeError struct {
	// Index is the position of the blob in the assembled sequence.
	Index int
	Cause error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode audio blob %d: %v", e.Index, e.Cause)
}

func (e *DecodeError) Unwrap() error { return e.Cause }
