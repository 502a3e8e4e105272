package audio

import (
	"fmt"

	goaudio "github.com/go-audio/audio"
)

// Track is an append-only accumulation of decoded clips sharing one sample
// format, with a running duration in seconds.
type Track struct {
	format   *goaudio.Format
	bitDepth int
	data     []int
	clips    int
	duration float64
}

// Append adds clip to the end of the track. The first clip fixes the format.
func (t *Track) Append(clip *Clip) error {
	if clip == nil || clip.Buffer == nil || clip.Buffer.Format == nil {
		return fmt.Errorf("append: clip has no format")
	}
	f := clip.Buffer.Format
	if t.format == nil {
		t.format = &goaudio.Format{NumChannels: f.NumChannels, SampleRate: f.SampleRate}
		t.bitDepth = clip.BitDepth
	} else if f.NumChannels != t.format.NumChannels || f.SampleRate != t.format.SampleRate || clip.BitDepth != t.bitDepth {
		return fmt.Errorf("%w: track is %dHz/%dch/%dbit, clip is %dHz/%dch/%dbit", ErrFormatMismatch,
			t.format.SampleRate, t.format.NumChannels, t.bitDepth,
			f.SampleRate, f.NumChannels, clip.BitDepth)
	}
	t.data = append(t.data, clip.Buffer.Data...)
	t.clips++
	t.duration += clip.Duration()
	return nil
}

// Empty reports whether no clip has been appended since the last reset.
func (t *Track) Empty() bool { return t.clips == 0 }

// Clips is the number of clips in the track.
func (t *Track) Clips() int { return t.clips }

// Duration is the accumulated length in seconds.
func (t *Track) Duration() float64 { return t.duration }

// Reset empties the track. The format is kept so later clips stay consistent
// across parts.
func (t *Track) Reset() {
	t.data = nil
	t.clips = 0
	t.duration = 0
}

// WriteFile encodes the track as WAV at path.
func (t *Track) WriteFile(path string) error {
	if t.format == nil {
		return fmt.Errorf("write track: no audio")
	}
	buf := &goaudio.IntBuffer{Format: t.format, Data: t.data, SourceBitDepth: t.bitDepth}
	return WriteWAVFile(path, buf, t.bitDepth)
}
