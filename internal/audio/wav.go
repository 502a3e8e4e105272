package audio

import (
	"errors"
	"fmt"
	"io"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const pcmFormat = 1

// EncodeWAV renders buf as a PCM WAV file held in memory.
func EncodeWAV(buf *goaudio.IntBuffer, bitDepth int) ([]byte, error) {
	var out seekBuffer
	if err := encodeWAV(&out, buf, bitDepth); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// WriteWAVFile renders buf as a PCM WAV file at path.
func WriteWAVFile(path string, buf *goaudio.IntBuffer, bitDepth int) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create wav file: %w", err)
	}
	if err := encodeWAV(file, buf, bitDepth); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

func encodeWAV(w io.WriteSeeker, buf *goaudio.IntBuffer, bitDepth int) error {
	if buf == nil || buf.Format == nil {
		return errors.New("wav buffer has no format")
	}
	enc := wav.NewEncoder(w, buf.Format.SampleRate, bitDepth, buf.Format.NumChannels, pcmFormat)
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close wav encoder: %w", err)
	}
	return nil
}

// seekBuffer is an in-memory io.WriteSeeker; the WAV encoder patches chunk
// sizes in place once all samples are written.
type seekBuffer struct {
	data []byte
	pos  int
}

func (b *seekBuffer) Write(p []byte) (int, error) {
	end := b.pos + len(p)
	if end > len(b.data) {
		b.data = append(b.data, make([]byte, end-len(b.data))...)
	}
	copy(b.data[b.pos:end], p)
	b.pos = end
	return len(p), nil
}

func (b *seekBuffer) Seek(offset int64, whence int) (int64, error) {
	var next int64
	switch whence {
	case io.SeekStart:
		next = offset
	case io.SeekCurrent:
		next = int64(b.pos) + offset
	case io.SeekEnd:
		next = int64(len(b.data)) + offset
	default:
		return 0, errors.New("seek: invalid whence")
	}
	if next < 0 {
		return 0, errors.New("seek: negative position")
	}
	b.pos = int(next)
	return next, nil
}

func (b *seekBuffer) Bytes() []byte { return b.data }
