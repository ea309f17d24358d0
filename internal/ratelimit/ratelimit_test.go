package ratelimit

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSimpleRateLimiter_DelayWithinBounds(t *testing.T) {
	r := NewSimpleRateLimiter(10*time.Millisecond, 20*time.Millisecond)
	for i := 0; i < 50; i++ {
		d := r.calculateDelay()
		assert.GreaterOrEqual(t, d, 10*time.Millisecond)
		assert.Less(t, d, 20*time.Millisecond)
	}

	fixed := NewSimpleRateLimiter(5*time.Millisecond, 5*time.Millisecond)
	assert.Equal(t, 5*time.Millisecond, fixed.calculateDelay())
}

func TestSimpleRateLimiter_PauseSleeps(t *testing.T) {
	r := NewSimpleRateLimiter(20*time.Millisecond, 20*time.Millisecond)

	start := time.Now()
	assert.NoError(t, r.Pause(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), 15*time.Millisecond)
}

func TestSimpleRateLimiter_ContextCancel(t *testing.T) {
	r := NewSimpleRateLimiter(time.Hour, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, r.Pause(ctx), context.Canceled)
	assert.ErrorIs(t, Nop{}.Pause(ctx), context.Canceled)
	assert.NoError(t, Nop{}.Pause(context.Background()))
}

func TestBackoff(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	tests := []struct {
		attempt int
		min     time.Duration
		max     time.Duration
	}{
		{0, time.Second, 2 * time.Second},
		{1, time.Second, 2 * time.Second},
		{2, 2 * time.Second, 3 * time.Second},
		{3, 3 * time.Second, 4 * time.Second},
	}
	for _, tt := range tests {
		d := Backoff(time.Second, tt.attempt, rng)
		assert.GreaterOrEqual(t, d, tt.min)
		assert.Less(t, d, tt.max)
	}

	assert.Equal(t, 2*time.Second, Backoff(time.Second, 2, nil))
	assert.Zero(t, Backoff(0, 3, rng))
}
