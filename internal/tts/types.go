// Package tts wraps the speech synthesis providers that turn one text segment
// into one encoded audio blob.
package tts

import "context"

// SynthRequest contains parameters to synthesize one segment.
type SynthRequest struct {
	Text       string
	Voice      string
	Credential string
}

// Synthesizer is the contract for producing audio. Implementations issue
// exactly one provider call per invocation and return the payload untouched.
type Synthesizer interface {
	Name() string
	Synthesize(ctx context.Context, req SynthRequest) ([]byte, error)
}
