package pipeline

import (
	"context"
	"errors"

	"github.com/loqalabs/loqa-narrator/internal/protocol"
)

// Reporter receives job progress events. Failures are logged by the
// orchestrator and never abort a run.
type Reporter interface {
	Report(ctx context.Context, evt protocol.JobEvent) error
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(ctx context.Context, evt protocol.JobEvent) error

func (f ReporterFunc) Report(ctx context.Context, evt protocol.JobEvent) error {
	return f(ctx, evt)
}

// Reporters fans an event out to every non-nil reporter.
type Reporters []Reporter

func (rs Reporters) Report(ctx context.Context, evt protocol.JobEvent) error {
	var errs []error
	for _, r := range rs {
		if r == nil {
			continue
		}
		if err := r.Report(ctx, evt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type nopReporter struct{}

func (nopReporter) Report(context.Context, protocol.JobEvent) error { return nil }
