package ai

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/matryer/is"
)

func fastRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:    3,
		InitialDelay:  time.Millisecond,
		MaxDelay:      5 * time.Millisecond,
		BackoffFactor: 2.0,
	}
}

func TestRetry_SucceedsAfterRecoverableErrors(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	attempts := 0
	v, err := Retry(ctx, fastRetryConfig(), func(ctx context.Context) (string, error) {
		attempts++
		if attempts < 3 {
			return "", NewRecoverableError(errors.New("overloaded"), "")
		}
		return "ok", nil
	})
	is.NoErr(err)
	is.Equal(v, "ok")
	is.Equal(attempts, 3)
}

func TestRetry_FatalStopsImmediately(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	attempts := 0
	_, err := Retry(ctx, fastRetryConfig(), func(ctx context.Context) (int, error) {
		attempts++
		return 0, NewFatalError(errors.New("bad api key"), "")
	})
	is.True(IsFatal(err))
	is.Equal(attempts, 1)
}

func TestRetry_ExhaustsRecoverableAttempts(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	attempts := 0
	_, err := Retry(ctx, fastRetryConfig(), func(ctx context.Context) (int, error) {
		attempts++
		return 0, NewRecoverableError(errors.New("timeout"), "")
	})
	is.True(err != nil)
	is.True(IsRecoverable(err)) // wrapped cause still classifiable
	is.Equal(attempts, 4)       // initial try + MaxRetries
}

func TestRetryableError_Classification(t *testing.T) {
	is := is.New(t)

	rec := NewRecoverableError(errors.New("429"), "rate limited")
	is.True(IsRecoverable(rec))
	is.True(!IsFatal(rec))
	is.Equal(rec.Error(), "rate limited")

	fatal := NewFatalError(errors.New("401"), "")
	is.True(IsFatal(fatal))
	is.Equal(fatal.Error(), "401") // falls back to the underlying error
}
