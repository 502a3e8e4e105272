// Package pipeline drives a narration job: segment the text, synthesize every
// segment in order under a fixed pace, assemble the clips into duration
// bounded parts and package the result.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/loqalabs/loqa-narrator/internal/archive"
	"github.com/loqalabs/loqa-narrator/internal/audio"
	"github.com/loqalabs/loqa-narrator/internal/pacer"
	"github.com/loqalabs/loqa-narrator/internal/protocol"
	"github.com/loqalabs/loqa-narrator/internal/segment"
	"github.com/loqalabs/loqa-narrator/internal/tts"
)

const instrumentationName = "github.com/loqalabs/loqa-narrator/pipeline"

// Config tunes an Orchestrator.
type Config struct {
	MaxSegmentLength int
	CallsPerMinute   int
	DefaultVoice     string
}

// Request is one narration job.
type Request struct {
	// JobID is generated when empty.
	JobID      string
	Text       string
	Credential string
	Voice      string
	// MaxDuration is the per-part ceiling in seconds; zero means unlimited.
	MaxDuration float64
	// Source names where the text came from, for reporting only.
	Source string
}

// Result describes a finished job.
type Result struct {
	JobID       string
	Segments    int
	Parts       []audio.OutputFile
	Deliverable archive.Deliverable
}

type Orchestrator struct {
	cfg      Config
	synth    tts.Synthesizer
	reporter Reporter
	logger   *slog.Logger
	tracer   trace.Tracer

	jobs    metric.Int64Counter
	calls   metric.Int64Counter
	latency metric.Float64Histogram
}

func New(cfg Config, synth tts.Synthesizer, reporter Reporter, logger *slog.Logger) *Orchestrator {
	if cfg.MaxSegmentLength <= 0 {
		cfg.MaxSegmentLength = segment.DefaultMaxLength
	}
	if cfg.DefaultVoice == "" {
		cfg.DefaultVoice = tts.VoiceAlloy
	}
	if reporter == nil {
		reporter = nopReporter{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	o := &Orchestrator{
		cfg:      cfg,
		synth:    synth,
		reporter: reporter,
		logger:   logger.With(slog.String("component", "pipeline")),
		tracer:   otel.Tracer(instrumentationName),
	}
	if err := o.initMetrics(); err != nil {
		o.logger.Warn("failed to initialize metrics", slog.String("error", err.Error()))
	}
	return o
}

func (o *Orchestrator) initMetrics() error {
	meter := otel.Meter(instrumentationName)
	jobs, err := meter.Int64Counter("narrator.jobs",
		metric.WithDescription("Narration jobs by outcome"))
	if err != nil {
		return err
	}
	calls, err := meter.Int64Counter("narrator.synthesis.calls",
		metric.WithDescription("Synthesis provider calls by outcome"))
	if err != nil {
		return err
	}
	latency, err := meter.Float64Histogram("narrator.synthesis.duration",
		metric.WithDescription("Synthesis call latency"),
		metric.WithUnit("s"))
	if err != nil {
		return err
	}
	o.jobs, o.calls, o.latency = jobs, calls, latency
	return nil
}

// Run executes req, writing every intermediate and final file into dir. The
// first synthesis failure aborts the run; no later segment is attempted.
func (o *Orchestrator) Run(ctx context.Context, dir string, req Request) (res Result, err error) {
	if req.JobID == "" {
		req.JobID = uuid.NewString()
	}
	if req.Voice == "" {
		req.Voice = o.cfg.DefaultVoice
	}
	res.JobID = req.JobID
	log := o.logger.With(slog.String("job_id", req.JobID))

	ctx, span := o.tracer.Start(ctx, "pipeline.run", trace.WithAttributes(
		attribute.String("narrator.job_id", req.JobID),
		attribute.String("narrator.voice", req.Voice),
		attribute.Float64("narrator.max_duration_s", req.MaxDuration),
	))
	defer func() {
		outcome := "completed"
		if err != nil {
			outcome = "failed"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			o.report(ctx, log, req.JobID, protocol.EventFailed, protocol.Failed{
				Error:  Message(err),
				Status: StatusFor(err),
			})
			log.Warn("job failed", slog.String("error", err.Error()))
		}
		if o.jobs != nil {
			o.jobs.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
		}
		span.End()
	}()

	segments := segment.Split(req.Text, o.cfg.MaxSegmentLength)
	if len(segments) == 0 {
		return res, ErrEmptyText
	}
	res.Segments = len(segments)
	span.SetAttributes(attribute.Int("narrator.segments", len(segments)))
	o.report(ctx, log, req.JobID, protocol.EventStarted, protocol.Started{
		Source:   req.Source,
		Voice:    req.Voice,
		Segments: len(segments),
	})
	log.Info("job started",
		slog.String("source", req.Source),
		slog.Int("segments", len(segments)))

	blobs, err := o.synthesizeAll(ctx, log, req, segments)
	if err != nil {
		return res, err
	}

	parts, err := audio.NewAssembler(dir, req.MaxDuration, log).Assemble(ctx, blobs)
	if err != nil {
		return res, err
	}
	res.Parts = parts
	var total float64
	for _, p := range parts {
		total += p.Duration
	}
	o.report(ctx, log, req.JobID, protocol.EventAssembled, protocol.Assembled{
		Parts:    len(parts),
		Duration: total,
	})

	deliverable, err := archive.Package(parts, dir)
	if err != nil {
		return res, fmt.Errorf("package parts: %w", err)
	}
	res.Deliverable = deliverable
	o.report(ctx, log, req.JobID, protocol.EventCompleted, protocol.Completed{
		Filename: deliverable.Filename,
		MIMEType: deliverable.MIMEType,
	})
	log.Info("job completed",
		slog.Int("parts", len(parts)),
		slog.Float64("duration_s", total),
		slog.String("filename", deliverable.Filename))
	return res, nil
}

func (o *Orchestrator) synthesizeAll(ctx context.Context, log *slog.Logger, req Request, segments []string) ([][]byte, error) {
	p := pacer.New(o.cfg.CallsPerMinute)
	blobs := make([][]byte, 0, len(segments))
	for i, text := range segments {
		if err := p.Wait(ctx); err != nil {
			return nil, err
		}
		blob, err := o.synthesize(ctx, req, i, text)
		if err != nil {
			return nil, fmt.Errorf("segment %d of %d: %w", i+1, len(segments), err)
		}
		blobs = append(blobs, blob)
		o.report(ctx, log, req.JobID, protocol.EventSegment, protocol.Segment{
			Index: i + 1,
			Total: len(segments),
			Bytes: len(blob),
		})
		log.Debug("segment synthesized",
			slog.Int("index", i+1),
			slog.Int("total", len(segments)),
			slog.String("size", humanize.Bytes(uint64(len(blob)))))
	}
	return blobs, nil
}

func (o *Orchestrator) synthesize(ctx context.Context, req Request, index int, text string) ([]byte, error) {
	ctx, span := o.tracer.Start(ctx, "pipeline.synthesize", trace.WithAttributes(
		attribute.Int("narrator.segment", index+1),
		attribute.Int("narrator.segment_length", len(text)),
		attribute.String("narrator.synthesizer", o.synth.Name()),
	))
	defer span.End()

	start := time.Now()
	blob, err := o.synth.Synthesize(ctx, tts.SynthRequest{
		Text:       text,
		Voice:      req.Voice,
		Credential: req.Credential,
	})
	outcome := "ok"
	if err != nil {
		outcome = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	attrs := metric.WithAttributes(
		attribute.String("synthesizer", o.synth.Name()),
		attribute.String("outcome", outcome),
	)
	if o.calls != nil {
		o.calls.Add(ctx, 1, attrs)
	}
	if o.latency != nil {
		o.latency.Record(ctx, time.Since(start).Seconds(), attrs)
	}
	return blob, err
}

func (o *Orchestrator) report(ctx context.Context, log *slog.Logger, jobID string, t protocol.EventType, payload any) {
	evt, err := protocol.NewJobEvent(jobID, t, payload)
	if err == nil {
		err = o.reporter.Report(context.WithoutCancel(ctx), evt)
	}
	if err != nil {
		log.Warn("job event not reported",
			slog.String("event", string(t)),
			slog.String("error", err.Error()))
	}
}
