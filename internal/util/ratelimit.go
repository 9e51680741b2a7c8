package util

import (
	"context"
	"sync"
	"time"
)

// RateLimiter caps how often an operation may run, refilling capacity
// continuously at a fixed rate with at most one operation's worth banked.
type RateLimiter struct {
	perSec float64
	bank   float64
	last   time.Time
	mu     sync.Mutex
}

// NewRateLimiter creates a limiter allowing perMinute operations per
// minute. The first Wait returns immediately.
func NewRateLimiter(perMinute int) *RateLimiter {
	return &RateLimiter{
		perSec: float64(perMinute) / 60.0,
		bank:   1,
		last:   time.Now(),
	}
}

// Wait blocks until capacity for one operation is available or ctx is
// cancelled.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	for {
		rl.mu.Lock()
		now := time.Now()
		rl.bank += now.Sub(rl.last).Seconds() * rl.perSec
		if rl.bank > 1 {
			rl.bank = 1
		}
		rl.last = now

		if rl.bank >= 1 {
			rl.bank--
			rl.mu.Unlock()
			return nil
		}
		rl.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
}
