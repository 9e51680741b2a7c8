package util

import (
	"context"
	"time"
)

// Retry runs fn until it succeeds, giving up after maxAttempts. The wait
// between attempts starts at baseDelay and doubles each time. Returns nil
// on the first success, the context's error if cancelled mid-backoff, or
// the final attempt's error otherwise.
func Retry(ctx context.Context, maxAttempts int, baseDelay time.Duration, fn func() error) error {
	var err error
	backoff := baseDelay

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}

		// No backoff once the attempt budget is spent.
		if attempt < maxAttempts-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}
	}

	return err
}
