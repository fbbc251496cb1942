// Package backoff provides bounded exponential retry for transient RPC
// failures. One bound per invocation; callers re-evaluate preconditions
// from live state before the next attempt cycle.
package backoff

import (
	"context"
	"time"
)

// Retry runs fn up to maxRetries additional times after the first failure,
// doubling the delay between attempts. Context cancellation wins over the
// remaining attempts.
func Retry(ctx context.Context, maxRetries int, baseDelay time.Duration, fn func(context.Context) error) error {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if baseDelay <= 0 {
		baseDelay = 100 * time.Millisecond
	}

	delay := baseDelay
	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if attempt >= maxRetries {
			return err
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay *= 2
	}
}
