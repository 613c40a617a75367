package resilience

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter is a client-side token bucket that paces outgoing requests so
// a process stays under its watsonx.ai plan limits instead of collecting 429s.
// When the service does answer 429 with Retry-After, PauseUntil holds every
// caller until that time.
type RateLimiter struct {
	limiter *rate.Limiter

	mu          sync.Mutex
	pausedUntil time.Time
}

// NewRateLimiter allows rps requests per second with bursts of up to burst.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

// Wait blocks until a request may proceed or ctx is done. It fails fast when
// ctx's deadline falls before the next token.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	if d := rl.pause(); d > 0 {
		timer := time.NewTimer(d)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("rate limit pause: %w", ctx.Err())
		case <-timer.C:
		}
	}
	if err := rl.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	return nil
}

// Allow takes a token if one is available now.
func (rl *RateLimiter) Allow() bool {
	if rl.pause() > 0 {
		return false
	}
	return rl.limiter.Allow()
}

// PauseUntil holds requests until t. An earlier t than the current pause is
// ignored.
func (rl *RateLimiter) PauseUntil(t time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if t.After(rl.pausedUntil) {
		rl.pausedUntil = t
	}
}

func (rl *RateLimiter) pause() time.Duration {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return time.Until(rl.pausedUntil)
}

// Rate returns the rate limit in requests per second.
func (rl *RateLimiter) Rate() float64 {
	return float64(rl.limiter.Limit())
}

// Burst returns the burst size.
func (rl *RateLimiter) Burst() int {
	return rl.limiter.Burst()
}

// ParseRetryAfter reads a Retry-After header given in seconds or as an HTTP
// date. It reports false when the header is missing or unusable.
func ParseRetryAfter(h http.Header, now time.Time) (time.Duration, bool) {
	v := strings.TrimSpace(h.Get("Retry-After"))
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0, false
		}
		return time.Duration(secs) * time.Second, true
	}
	if t, err := http.ParseTime(v); err == nil {
		d := t.Sub(now)
		if d < 0 {
			d = 0
		}
		return d, true
	}
	return 0, false
}
