// Package resilience provides the retry, rate limiting and circuit breaking
// used around every watsonx.ai call.
package resilience

import (
	"context"
	"math/rand/v2"
	"time"
)

// Backoff computes exponential retry delays with proportional jitter.
type Backoff struct {
	// Base is the delay before the first retry.
	Base time.Duration
	// Max caps any single delay. Zero means no cap.
	Max time.Duration
	// Jitter is the fraction (0.0 - 1.0) of each delay that is randomized.
	Jitter float64
}

// Delay returns the wait before retry number attempt (1-based).
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 || b.Base <= 0 {
		return 0
	}
	shift := attempt - 1
	if shift > 30 {
		shift = 30
	}
	d := b.Base * time.Duration(1<<shift)
	if b.Max > 0 && (d > b.Max || d <= 0) {
		d = b.Max
	}

	jitter := b.Jitter
	if jitter <= 0 {
		return d
	}
	if jitter > 1 {
		jitter = 1
	}
	// Spread the delay over [d*(1-jitter), d].
	spread := float64(d) * jitter
	return d - time.Duration(rand.Float64()*spread)
}

// Wait sleeps for Delay(attempt) or until ctx is done.
func (b Backoff) Wait(ctx context.Context, attempt int) error {
	d := b.Delay(attempt)
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
