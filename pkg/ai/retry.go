package ai

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// Retry runs fn until it succeeds, returns a fatal error, or cfg.MaxRetries
// recoverable attempts are exhausted. Errors that are neither recoverable nor
// fatal are treated as recoverable. Backoff is exponential with jitter.
func Retry[T any](ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(backoffDelay(cfg, attempt)):
			case <-ctx.Done():
				return zero, ctx.Err()
			}
		}

		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		if IsFatal(err) {
			return zero, err
		}
		lastErr = err
	}
	return zero, fmt.Errorf("exhausted %d retries: %w", cfg.MaxRetries, lastErr)
}

func backoffDelay(cfg RetryConfig, attempt int) time.Duration {
	delay := float64(cfg.InitialDelay) * math.Pow(cfg.BackoffFactor, float64(attempt-1))
	if delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	if cfg.JitterPercent > 0 {
		delay += (rand.Float64() - 0.5) * 2 * delay * cfg.JitterPercent
	}
	if delay < 0 {
		delay = float64(cfg.InitialDelay)
	}
	return time.Duration(delay)
}
