// Package audio decodes synthesized clips and packs them into WAV parts that
// respect a per-file duration ceiling.
package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
)

const (
	mp3BitDepth = 16
	mp3Channels = 2
)

// Clip is one decoded blob: interleaved PCM samples plus their format.
type Clip struct {
	Buffer   *goaudio.IntBuffer
	BitDepth int
}

// Frames is the number of sample frames (samples per channel).
func (c *Clip) Frames() int {
	if c == nil || c.Buffer == nil || c.Buffer.Format == nil || c.Buffer.Format.NumChannels == 0 {
		return 0
	}
	return len(c.Buffer.Data) / c.Buffer.Format.NumChannels
}

// Duration is the clip length in seconds.
func (c *Clip) Duration() float64 {
	if c == nil || c.Buffer == nil || c.Buffer.Format == nil || c.Buffer.Format.SampleRate == 0 {
		return 0
	}
	return float64(c.Frames()) / float64(c.Buffer.Format.SampleRate)
}

// Decode sniffs the container and decodes data. RIFF/WAVE payloads go through
// the WAV decoder, everything else is treated as MP3. A decoder panic on a
// malformed payload is returned as an error.
func Decode(data []byte) (*Clip, error) {
	if len(data) == 0 {
		return nil, errors.New("empty audio payload")
	}
	if isWAV(data) {
		return guard("wav", func() (*Clip, error) { return decodeWAV(data) })
	}
	return guard("mp3", func() (*Clip, error) { return decodeMP3(data) })
}

func guard(container string, decode func() (*Clip, error)) (clip *Clip, err error) {
	defer func() {
		if r := recover(); r != nil {
			clip = nil
			err = fmt.Errorf("malformed %s payload: %v", container, r)
		}
	}()
	return decode()
}

func isWAV(data []byte) bool {
	return len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE"
}

func decodeWAV(data []byte) (*Clip, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return nil, errors.New("invalid wav payload")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("read wav pcm: %w", err)
	}
	return &Clip{Buffer: buf, BitDepth: int(dec.BitDepth)}, nil
}

func decodeMP3(data []byte) (*Clip, error) {
	dec, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open mp3 stream: %w", err)
	}
	pcm, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("read mp3 pcm: %w", err)
	}
	if len(pcm) == 0 {
		return nil, errors.New("mp3 stream has no frames")
	}
	samples := make([]int, len(pcm)/2)
	for i := range samples {
		samples[i] = int(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
	}
	return &Clip{
		Buffer: &goaudio.IntBuffer{
			Format:         &goaudio.Format{NumChannels: mp3Channels, SampleRate: dec.SampleRate()},
			Data:           samples,
			SourceBitDepth: mp3BitDepth,
		},
		BitDepth: mp3BitDepth,
	}, nil
}
