package audio

import (
	"context"
	"errors"
	"os"
	"testing"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRate = 8000

func silentWAV(t *testing.T, seconds float64, sampleRate int) []byte {
	t.Helper()
	frames := int(seconds * float64(sampleRate))
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           make([]int, frames),
		SourceBitDepth: 16,
	}
	data, err := EncodeWAV(buf, 16)
	require.NoError(t, err)
	return data
}

func fileDuration(t *testing.T, path string) float64 {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	d, err := wav.NewDecoder(f).Duration()
	require.NoError(t, err)
	return d.Seconds()
}

func TestDecodeWAV(t *testing.T) {
	clip, err := Decode(silentWAV(t, 1.5, testRate))
	require.NoError(t, err)
	assert.InDelta(t, 1.5, clip.Duration(), 1e-9)
	assert.Equal(t, 16, clip.BitDepth)
	assert.Equal(t, 12000, clip.Frames())
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := Decode([]byte("this is definitely not an audio stream"))
	assert.Error(t, err)

	_, err = Decode(nil)
	assert.Error(t, err)
}

func TestAssembleSplitsAtCeiling(t *testing.T) {
	dir := t.TempDir()
	blobs := [][]byte{silentWAV(t, 2, testRate), silentWAV(t, 2, testRate), silentWAV(t, 2, testRate)}

	files, err := NewAssembler(dir, 5, nil).Assemble(context.Background(), blobs)
	require.NoError(t, err)
	require.Len(t, files, 2)

	assert.Equal(t, 1, files[0].Part)
	assert.Equal(t, 2, files[0].Clips)
	assert.InDelta(t, 4, fileDuration(t, files[0].Path), 0.01)
	assert.Equal(t, 2, files[1].Part)
	assert.Equal(t, 1, files[1].Clips)
	assert.InDelta(t, 2, fileDuration(t, files[1].Path), 0.01)
}

func TestAssembleUnlimitedIsSinglePart(t *testing.T) {
	var blobs [][]byte
	for i := 0; i < 6; i++ {
		blobs = append(blobs, silentWAV(t, 3, testRate))
	}
	files, err := NewAssembler(t.TempDir(), 0, nil).Assemble(context.Background(), blobs)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.InDelta(t, 18, files[0].Duration, 1e-9)
	assert.InDelta(t, 18, fileDuration(t, files[0].Path), 0.01)
}

func TestAssembleBoundaryIsInclusive(t *testing.T) {
	blobs := [][]byte{silentWAV(t, 2.5, testRate), silentWAV(t, 2.5, testRate)}
	files, err := NewAssembler(t.TempDir(), 5, nil).Assemble(context.Background(), blobs)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.InDelta(t, 5, files[0].Duration, 1e-9)
}

func TestAssembleOversizedClipGetsOwnPart(t *testing.T) {
	blobs := [][]byte{silentWAV(t, 1, testRate), silentWAV(t, 7, testRate), silentWAV(t, 1, testRate)}
	files, err := NewAssembler(t.TempDir(), 5, nil).Assemble(context.Background(), blobs)
	require.NoError(t, err)
	require.Len(t, files, 3)

	var total float64
	for i, f := range files {
		assert.Equal(t, i+1, f.Part)
		assert.Equal(t, 1, f.Clips)
		total += f.Duration
	}
	assert.InDelta(t, 7, files[1].Duration, 1e-9)
	assert.InDelta(t, 9, total, 1e-9)
}

func TestAssembleCeilingInvariant(t *testing.T) {
	lengths := []float64{0.5, 1.25, 3, 0.75, 2, 2, 1, 4.5, 0.25, 1.5}
	var blobs [][]byte
	var want float64
	for _, l := range lengths {
		blobs = append(blobs, silentWAV(t, l, testRate))
		want += l
	}

	files, err := NewAssembler(t.TempDir(), 4, nil).Assemble(context.Background(), blobs)
	require.NoError(t, err)
	require.NotEmpty(t, files)

	var total float64
	clips := 0
	for _, f := range files {
		if f.Clips > 1 {
			assert.LessOrEqual(t, f.Duration, 4.0)
		}
		total += f.Duration
		clips += f.Clips
	}
	assert.InDelta(t, want, total, 1e-6)
	assert.Equal(t, len(lengths), clips)
}

func TestAssembleReportsUndecodableBlob(t *testing.T) {
	blobs := [][]byte{silentWAV(t, 1, testRate), []byte("garbage"), silentWAV(t, 1, testRate)}
	_, err := NewAssembler(t.TempDir(), 0, nil).Assemble(context.Background(), blobs)

	var decodeErr *DecodeError
	require.True(t, errors.As(err, &decodeErr))
	assert.Equal(t, 1, decodeErr.Index)
}

func TestAssembleRejectsMixedFormats(t *testing.T) {
	blobs := [][]byte{silentWAV(t, 1, testRate), silentWAV(t, 1, 16000)}
	_, err := NewAssembler(t.TempDir(), 0, nil).Assemble(context.Background(), blobs)
	assert.ErrorIs(t, err, ErrFormatMismatch)
}

func TestAssembleStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewAssembler(t.TempDir(), 0, nil).Assemble(ctx, [][]byte{silentWAV(t, 1, testRate)})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSeekBufferPatchesInPlace(t *testing.T) {
	var b seekBuffer
	_, _ = b.Write([]byte("hello world"))
	_, err := b.Seek(0, 0)
	require.NoError(t, err)
	_, _ = b.Write([]byte("J"))
	assert.Equal(t, "Jello world", string(b.Bytes()))

	_, err = b.Seek(-1, 0)
	assert.Error(t, err)
}
