package tts

import (
	"context"
	"time"
	"unicode/utf8"

	goaudio "github.com/go-audio/audio"
	"github.com/loqalabs/loqa-narrator/internal/audio"
)

const mockMinDuration = 100 * time.Millisecond

// mockSynth returns silent 16-bit mono WAV clips whose length grows with the
// text, so the whole pipeline can run without a provider.
type mockSynth struct {
	sampleRate     int
	secondsPerChar float64
}

func NewMockSynth(sampleRate int, secondsPerChar float64) Synthesizer {
	if sampleRate <= 0 {
		sampleRate = 24000
	}
	return &mockSynth{sampleRate: sampleRate, secondsPerChar: secondsPerChar}
}

func (m *mockSynth) Name() string { return "mock" }

func (m *mockSynth) Synthesize(ctx context.Context, req SynthRequest) ([]byte, error) {
	if req.Text == "" {
		return nil, ErrEmptyText
	}
	if err := ctx.Err(); err != nil {
		return nil, &TransportError{Message: "request cancelled", Cause: err}
	}
	d := time.Duration(float64(utf8.RuneCountInString(req.Text)) * m.secondsPerChar * float64(time.Second))
	if d < mockMinDuration {
		d = mockMinDuration
	}
	frames := int(d.Seconds() * float64(m.sampleRate))
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: m.sampleRate},
		Data:           make([]int, frames),
		SourceBitDepth: 16,
	}
	return audio.EncodeWAV(buf, 16)
}
