package audio

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	mp3SamplesPerFrame = 1152
	mp3TestRate        = 44100
	// MPEG-1 Layer III, 128 kbps, 44.1 kHz, stereo, no CRC, no padding.
	mpeg1FrameSize = 417
	// MPEG-2 Layer III, 80 kbps, 22.05 kHz, stereo, no CRC, no padding.
	mpeg2FrameSize = 261
)

var (
	mpeg1Header = []byte{0xFF, 0xFB, 0x90, 0x00}
	mpeg2Header = []byte{0xFF, 0xF3, 0x90, 0x00}
)

// silentMP3 builds frames whose side info is all zero, which decode to
// silence.
func silentMP3(frames int) []byte {
	out := make([]byte, 0, frames*mpeg1FrameSize)
	for i := 0; i < frames; i++ {
		frame := make([]byte, mpeg1FrameSize)
		copy(frame, mpeg1Header)
		out = append(out, frame...)
	}
	return out
}

// noisyMP3 builds frames with valid headers and random side info and main
// data.
func noisyMP3(rng *rand.Rand, header []byte, frameSize, frames int) []byte {
	out := make([]byte, 0, frames*frameSize)
	for i := 0; i < frames; i++ {
		frame := make([]byte, frameSize)
		copy(frame, header)
		rng.Read(frame[len(header):])
		out = append(out, frame...)
	}
	return out
}

func TestDecodeMP3(t *testing.T) {
	clip, err := Decode(silentMP3(40))
	require.NoError(t, err)

	want := float64(40*mp3SamplesPerFrame) / mp3TestRate
	assert.InDelta(t, want, clip.Duration(), float64(mp3SamplesPerFrame)/mp3TestRate)
	assert.Equal(t, 2, clip.Buffer.Format.NumChannels)
	assert.Equal(t, mp3TestRate, clip.Buffer.Format.SampleRate)
	assert.Equal(t, 16, clip.BitDepth)
	for _, s := range clip.Buffer.Data {
		if s != 0 {
			t.Fatalf("silent frame decoded to non-zero sample %d", s)
		}
	}
}

func TestAssembleSplitsMP3Clips(t *testing.T) {
	blobs := [][]byte{silentMP3(40), silentMP3(40), silentMP3(40)}

	files, err := NewAssembler(t.TempDir(), 2.5, nil).Assemble(context.Background(), blobs)
	require.NoError(t, err)
	require.Len(t, files, 2)

	assert.Equal(t, 2, files[0].Clips)
	assert.Equal(t, 1, files[1].Clips)
	for _, f := range files {
		assert.LessOrEqual(t, f.Duration, 2.5)
		assert.InDelta(t, f.Duration, fileDuration(t, f.Path), 0.01)
	}
}

func TestDecodeTruncatedMP3Header(t *testing.T) {
	_, err := Decode(mpeg1Header)
	assert.Error(t, err)
}

func TestDecodeMalformedMP3DoesNotPanic(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 200; i++ {
		header, size := mpeg1Header, mpeg1FrameSize
		if i%2 == 1 {
			header, size = mpeg2Header, mpeg2FrameSize
		}
		payload := noisyMP3(rng, header, size, 1+rng.Intn(4))
		assert.NotPanics(t, func() {
			clip, err := Decode(payload)
			if err == nil {
				assert.NotNil(t, clip)
			}
		}, "payload %d", i)
	}
}

func TestGuardTurnsPanicIntoError(t *testing.T) {
	clip, err := guard("mp3", func() (*Clip, error) {
		var table []int
		_ = table[3]
		return &Clip{}, nil
	})
	assert.Nil(t, clip)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "malformed mp3 payload")
}

func TestAddReportsPanickingDecodeAsDecodeError(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	a := NewAssembler(t.TempDir(), 0, nil)
	for i := 0; i < 50; i++ {
		payload := noisyMP3(rng, mpeg2Header, mpeg2FrameSize, 2)
		var err error
		require.NotPanics(t, func() { err = a.Add(i, payload) })
		if err != nil {
			var decodeErr *DecodeError
			require.True(t, errors.As(err, &decodeErr), err.Error())
		}
	}
}
