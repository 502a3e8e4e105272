package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRunSegmentPrintsLengths(t *testing.T) {
	path := filepath.Join(t.TempDir(), "book.txt")
	if err := os.WriteFile(path, []byte("Hello there. General Kenobi"), 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}
	var out bytes.Buffer
	if err := runSegment([]string{"-in", path, "-max-length", "14"}, &out); err != nil {
		t.Fatalf("segment: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 3 || lines[0] != "2 segments" {
		t.Fatalf("unexpected output %q", out.String())
	}
	if strings.TrimSpace(lines[1]) != "1  13" {
		t.Fatalf("unexpected first line %q", lines[1])
	}
}

func TestRunSegmentRejectsUnsupported(t *testing.T) {
	path := filepath.Join(t.TempDir(), "book.docx")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}
	if err := runSegment([]string{"-in", path}, &bytes.Buffer{}); err == nil {
		t.Fatalf("expected unsupported format error")
	}
}

func TestRunSynthesizeWithMock(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "book.txt")
	if err := os.WriteFile(in, []byte("One. Two. Three"), 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}
	t.Setenv("NARRATOR_SYNTHESIS_MODE", "mock")
	t.Setenv("NARRATOR_SYNTHESIS_CALLS_PER_MINUTE", "0")
	t.Setenv("NARRATOR_WORKSPACE_ROOT", filepath.Join(dir, "scratch"))

	outDir := filepath.Join(dir, "out")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := runSynthesize([]string{"-in", in, "-out", outDir}); err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if _, err := os.Stat(filepath.Join(outDir, "merged_audio.wav")); err != nil {
		t.Fatalf("expected merged_audio.wav: %v", err)
	}
	entries, err := os.ReadDir(filepath.Join(dir, "scratch"))
	if err != nil {
		t.Fatalf("read scratch: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected scratch cleaned up, found %d entries", len(entries))
	}
}
