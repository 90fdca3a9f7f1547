// Package retry provides the backoff primitives used by the resilient
// provider-call layer: a deterministic exponential delay schedule and
// a context-cancellable sleep.
package retry

import (
	"context"
	"math"
	"time"
)

// Backoff returns the delay to sleep after failed attempt k
// (1-indexed): base * 2^(k-1). The schedule is deterministic; retry
// eligibility and attempt caps are decided by the caller.
func Backoff(attempt int, base time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return time.Duration(float64(base) * math.Pow(2, float64(attempt-1)))
}

// Sleep blocks for d or until ctx is done, returning ctx.Err() in the
// latter case so callers can abort mid-backoff.
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
