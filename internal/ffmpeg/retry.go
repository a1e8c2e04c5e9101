package ffmpeg

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"
)

// RetryPolicy controls how external tool invocations are retried.
type RetryPolicy struct {
	MaxAttempts      int
	BaseDelaySeconds float64
}

// Delay returns the backoff before the given retry: base * 2^(attempt-1),
// no jitter.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	seconds := p.BaseDelaySeconds * math.Pow(2, float64(attempt-1))
	return time.Duration(seconds * float64(time.Second))
}

// Retry runs fn up to MaxAttempts times with exponential backoff. onRetry is
// invoked before each re-attempt so callers can surface retry state.
func Retry(ctx context.Context, policy RetryPolicy, step string, onRetry func(attempt int), fn func() error) error {
	attempts := policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			if onRetry != nil {
				onRetry(attempt)
			}
			slog.Warn("Retrying step", "step", step, "attempt", attempt, "max_attempts", attempts)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(policy.Delay(attempt - 1)):
			}
		}
		if lastErr = fn(); lastErr == nil {
			return nil
		}
	}
	return fmt.Errorf("%s failed after %d attempts: %w", step, attempts, lastErr)
}
