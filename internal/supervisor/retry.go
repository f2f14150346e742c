package supervisor

import (
	"context"
	"time"
)

// RetryConfig bounds a Retry loop.
type RetryConfig struct {
	Attempts int           // Maximum number of times the action runs
	Interval time.Duration // Wait after each attempt
}

// RetryResult reports how a Retry loop ended.
type RetryResult struct {
	Attempts int  // Times the action ran
	Done     bool // Whether the done predicate held at the end
}

// Retry runs an idempotent action until done reports true or the attempts
// are spent. Each round checks done first, so an already satisfied goal
// runs the action zero times. After the last attempt done is checked once
// more. Context cancellation ends the loop early.
func Retry(ctx context.Context, cfg RetryConfig, action func(ctx context.Context, attempt int), done func(ctx context.Context) bool) RetryResult {
	for attempt := 1; attempt <= cfg.Attempts; attempt++ {
		if done(ctx) {
			return RetryResult{Attempts: attempt - 1, Done: true}
		}

		action(ctx, attempt)

		if !Sleep(ctx, cfg.Interval) {
			return RetryResult{Attempts: attempt, Done: false}
		}
	}

	return RetryResult{Attempts: cfg.Attempts, Done: done(ctx)}
}

// Sleep waits for d or until ctx is done. It reports whether the full
// duration elapsed.
func Sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
