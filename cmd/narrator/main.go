package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"

	"github.com/loqalabs/loqa-narrator/internal/config"
	"github.com/loqalabs/loqa-narrator/internal/extract"
	"github.com/loqalabs/loqa-narrator/internal/pipeline"
	"github.com/loqalabs/loqa-narrator/internal/protocol"
	"github.com/loqalabs/loqa-narrator/internal/segment"
	"github.com/loqalabs/loqa-narrator/internal/tts"
	"github.com/loqalabs/loqa-narrator/internal/workspace"
)

var version = "0.1.0-dev"

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "expected 'synthesize', 'segment' or 'version'")
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "synthesize":
		err = runSynthesize(os.Args[2:])
	case "segment":
		err = runSegment(os.Args[2:], os.Stdout)
	case "version":
		fmt.Println(version)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", os.Args[1])
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger(level slog.Level) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd()) {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

func readText(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return extract.File(path, content)
}

func runSegment(args []string, out io.Writer) error {
	cmd := flag.NewFlagSet("segment", flag.ContinueOnError)
	in := cmd.String("in", "", "Input .txt, .epub or .pdf file")
	maxLength := cmd.Int("max-length", segment.DefaultMaxLength, "Maximum characters per segment")
	if err := cmd.Parse(args); err != nil {
		return err
	}
	if *in == "" {
		return fmt.Errorf("-in is required")
	}
	text, err := readText(*in)
	if err != nil {
		return err
	}
	segments := segment.Split(text, *maxLength)
	fmt.Fprintf(out, "%d segments\n", len(segments))
	for i, n := range segment.Lengths(segments) {
		fmt.Fprintf(out, "%4d  %d\n", i+1, n)
	}
	return nil
}

func runSynthesize(args []string) error {
	cmd := flag.NewFlagSet("synthesize", flag.ContinueOnError)
	in := cmd.String("in", "", "Input .txt, .epub or .pdf file")
	out := cmd.String("out", ".", "Output file or directory")
	voice := cmd.String("voice", "", "Voice identifier")
	maxDuration := cmd.Float64("max-duration", 0, "Maximum seconds per part (0 uses the configured default)")
	configPath := cmd.String("config", "", "Path to configuration file")
	verbose := cmd.Bool("v", false, "Verbose logging")
	if err := cmd.Parse(args); err != nil {
		return err
	}
	if *in == "" {
		return fmt.Errorf("-in is required")
	}
	if *maxDuration < 0 {
		return fmt.Errorf("-max-duration must be positive")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := newLogger(level)

	text, err := readText(*in)
	if err != nil {
		return err
	}

	synth, err := tts.New(cfg.Synthesis, logger)
	if err != nil {
		return err
	}
	progress := pipeline.ReporterFunc(func(_ context.Context, evt protocol.JobEvent) error {
		if evt.Type == protocol.EventSegment {
			logger.Info("progress", slog.String("segment", string(evt.Payload)))
		}
		return nil
	})
	orchestrator := pipeline.New(pipeline.Config{
		MaxSegmentLength: cfg.Segmenter.MaxLength,
		CallsPerMinute:   cfg.Synthesis.CallsPerMinute,
		DefaultVoice:     cfg.Synthesis.DefaultVoice,
	}, synth, progress, logger)

	root := workspace.NewRoot(cfg.Workspace.Root, "", logger)
	dir, err := root.New("cli")
	if err != nil {
		return err
	}
	defer dir.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ceiling := *maxDuration
	if ceiling == 0 {
		ceiling = cfg.Assembler.DefaultMaxDuration
	}
	res, err := orchestrator.Run(ctx, dir.Path(), pipeline.Request{
		Text:        text,
		Voice:       *voice,
		MaxDuration: ceiling,
		Source:      filepath.Base(*in),
	})
	if err != nil {
		return err
	}

	dest := *out
	if info, err := os.Stat(dest); (err == nil && info.IsDir()) || strings.HasSuffix(dest, string(os.PathSeparator)) {
		dest = filepath.Join(dest, res.Deliverable.Filename)
	}
	size, err := copyFile(res.Deliverable.Path, dest)
	if err != nil {
		return err
	}
	logger.Info("audiobook written",
		slog.String("path", dest),
		slog.Int("parts", res.Deliverable.Parts),
		slog.Float64("duration_s", res.Deliverable.Duration),
		slog.String("size", humanize.Bytes(uint64(size))))
	return nil
}

func copyFile(src, dst string) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return 0, err
	}
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(out, in)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	return n, err
}
