// Package ratelimit paces browser actions with randomized delays. The
// jitter exists for fingerprint variance only; correctness never depends on
// it.
package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// SimpleRateLimiter pauses for a random duration in [min, max).
type SimpleRateLimiter struct {
	minDelay time.Duration
	maxDelay time.Duration
	mu       sync.Mutex
	rng      *rand.Rand
}

func NewSimpleRateLimiter(minDelay, maxDelay time.Duration) *SimpleRateLimiter {
	return &SimpleRateLimiter{
		minDelay: minDelay,
		maxDelay: maxDelay,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Pause sleeps for a random duration in [min, max).
func (r *SimpleRateLimiter) Pause(ctx context.Context) error {
	r.mu.Lock()
	d := r.calculateDelay()
	r.mu.Unlock()

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

func (r *SimpleRateLimiter) calculateDelay() time.Duration {
	if r.maxDelay <= r.minDelay {
		return r.minDelay
	}
	delta := r.maxDelay - r.minDelay
	return r.minDelay + time.Duration(r.rng.Int63n(int64(delta)))
}

// Backoff returns the wait before retry attempt n (1-based): base*n plus up
// to one extra base of jitter.
func Backoff(base time.Duration, attempt int, rng *rand.Rand) time.Duration {
	if base <= 0 {
		return 0
	}
	if attempt < 1 {
		attempt = 1
	}
	jitter := time.Duration(0)
	if rng != nil {
		jitter = time.Duration(rng.Int63n(int64(base)))
	}
	return base*time.Duration(attempt) + jitter
}

// Nop never waits.
type Nop struct{}

func (Nop) Pause(ctx context.Context) error { return ctx.Err() }
