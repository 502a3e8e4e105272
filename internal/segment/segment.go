// Package segment splits long text into chunks small enough for a single
// synthesis call.
package segment

import (
	"strings"
	"unicode/utf8"
)

const (
	// DefaultMaxLength is the provider input limit, in characters.
	DefaultMaxLength = 4000

	// Delimiter separates sentences. It is re-appended to every fragment.
	Delimiter = ". "
)

// Split packs the sentences of text greedily, in order. A new segment starts
// when the current one plus the next bare sentence would exceed maxLength
// characters, so a segment can run past the limit by the trailing delimiter.
// A sentence longer than maxLength is never cut; it becomes its own oversized
// segment. Empty or blank text yields no segments.
func Split(text string, maxLength int) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if maxLength <= 0 {
		maxLength = DefaultMaxLength
	}

	var (
		segments []string
		current  strings.Builder
		size     int
	)
	delimLen := utf8.RuneCountInString(Delimiter)
	for _, sentence := range strings.Split(text, Delimiter) {
		n := utf8.RuneCountInString(sentence)
		if size+n > maxLength && size > 0 {
			segments = append(segments, current.String())
			current.Reset()
			size = 0
		}
		current.WriteString(sentence)
		current.WriteString(Delimiter)
		size += n + delimLen
	}
	if strings.TrimSpace(current.String()) != "" {
		segments = append(segments, current.String())
	}
	return segments
}

// Lengths returns the character count of each segment.
func Lengths(segments []string) []int {
	out := make([]int, len(segments))
	for i, s := range segments {
		out[i] = utf8.RuneCountInString(s)
	}
	return out
}
