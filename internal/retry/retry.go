package retry

import (
	"context"
	"time"
)

// Do calls fn until it succeeds, maxRetries retries are spent, stop
// reports the error as permanent, or ctx ends. The delay doubles after
// every failed attempt.
func Do(ctx context.Context, maxRetries int, baseDelay time.Duration, stop func(error) bool, fn func(context.Context) error) error {
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
		if attempt >= maxRetries || (stop != nil && stop(err)) {
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
