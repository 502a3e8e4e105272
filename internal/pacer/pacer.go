// Package pacer spaces out calls to the synthesis provider.
package pacer

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// DefaultCallsPerMinute matches the provider's published request budget.
const DefaultCallsPerMinute = 50

// Pacer enforces a fixed minimum interval between successive calls. It has no
// burst allowance beyond a single call and is not meant to be shared between
// pipeline runs.
type Pacer struct {
	limiter  *rate.Limiter
	interval time.Duration
}

// New returns a pacer allowing callsPerMinute calls. A non-positive value
// disables pacing.
func New(callsPerMinute int) *Pacer {
	if callsPerMinute <= 0 {
		return &Pacer{limiter: rate.NewLimiter(rate.Inf, 1)}
	}
	interval := Interval(callsPerMinute)
	return &Pacer{
		limiter:  rate.NewLimiter(rate.Every(interval), 1),
		interval: interval,
	}
}

// Interval is the delay between calls for the given budget: 60s / callsPerMinute.
func Interval(callsPerMinute int) time.Duration {
	if callsPerMinute <= 0 {
		return 0
	}
	return time.Minute / time.Duration(callsPerMinute)
}

// Interval reports the configured spacing, zero when unpaced.
func (p *Pacer) Interval() time.Duration { return p.interval }

// Wait blocks until the next call may be issued or ctx is done. The first call
// proceeds immediately; each later one waits out the interval since the
// previous call was admitted.
func (p *Pacer) Wait(ctx context.Context) error {
	return p.limiter.Wait(ctx)
}
