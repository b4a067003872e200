// Package retry implements the exponential backoff policy shared by the
// job orchestrator and the batch verifier.
package retry

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// Jitter band applied to every computed delay, so synchronized clients do
// not retry in lockstep.
const (
	jitterLow  = 0.85
	jitterHigh = 1.15
)

// Policy computes per-attempt delays: Base * Factor^attempt, capped at
// Max, then jittered to [85%, 115%].
type Policy struct {
	Base   time.Duration
	Factor float64
	Max    time.Duration
}

// Delay returns the jittered delay for a zero-based attempt number.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	base := p.Base
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	factor := p.Factor
	if factor < 1 {
		factor = 2
	}

	scaled := float64(base) * math.Pow(factor, float64(attempt))
	if max := float64(p.Max); p.Max > 0 && scaled > max {
		scaled = max
	}
	return jitter(time.Duration(scaled))
}

func jitter(d time.Duration) time.Duration {
	span := jitterHigh - jitterLow
	return time.Duration(float64(d) * (jitterLow + rand.Float64()*span))
}

// Sleep blocks for d or until ctx is cancelled, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
