package resilience

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiter_BurstThenDeny(t *testing.T) {
	rl := NewRateLimiter(0, 3)
	assert.Equal(t, 0.0, rl.Rate())
	assert.Equal(t, 3, rl.Burst())

	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow(), "request %d within burst", i)
	}
	assert.False(t, rl.Allow(), "no refill at zero rate")
}

func TestRateLimiter_BurstFloor(t *testing.T) {
	rl := NewRateLimiter(10, 0)
	assert.Equal(t, 1, rl.Burst())
}

func TestRateLimiter_WaitRefills(t *testing.T) {
	rl := NewRateLimiter(1000, 1)

	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, rl.Wait(context.Background()))
	}
	assert.Less(t, time.Since(start), time.Second)
}

func TestRateLimiter_WaitDeadline(t *testing.T) {
	rl := NewRateLimiter(0.001, 1)
	require.True(t, rl.Allow())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := rl.Wait(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limit wait")
}

func TestRateLimiter_PauseUntil(t *testing.T) {
	rl := NewRateLimiter(1000, 10)
	rl.PauseUntil(time.Now().Add(50 * time.Millisecond))

	assert.False(t, rl.Allow(), "paused limiter denies")

	start := time.Now()
	require.NoError(t, rl.Wait(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
	assert.True(t, rl.Allow())
}

func TestRateLimiter_PauseKeepsLatest(t *testing.T) {
	rl := NewRateLimiter(1000, 10)
	rl.PauseUntil(time.Now().Add(time.Hour))
	rl.PauseUntil(time.Now().Add(time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := rl.Wait(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "rate limit pause")
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	tests := []struct {
		name   string
		value  string
		want   time.Duration
		wantOK bool
	}{
		{name: "missing"},
		{name: "seconds", value: "7", want: 7 * time.Second, wantOK: true},
		{name: "negative", value: "-3"},
		{name: "http date", value: now.Add(30 * time.Second).Format(http.TimeFormat), want: 30 * time.Second, wantOK: true},
		{name: "past date", value: now.Add(-time.Minute).Format(http.TimeFormat), want: 0, wantOK: true},
		{name: "garbage", value: "soon"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			if tt.value != "" {
				h.Set("Retry-After", tt.value)
			}
			got, ok := ParseRetryAfter(h, now)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
