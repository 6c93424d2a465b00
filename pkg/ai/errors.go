// Package ai holds types shared by every provider capability: the
// recoverable/fatal error taxonomy, retry configuration, and the generic
// retry helper providers wrap their connection attempts in.
package ai

import (
	"errors"
	"time"
)

var (
	// ErrRecoverable marks a temporary provider failure that may succeed if
	// retried: network timeout, rate limiting, transient service error.
	ErrRecoverable = errors.New("recoverable provider error")

	// ErrFatal marks a permanent provider failure that will not succeed if
	// retried: bad API key, unsupported model, malformed request.
	ErrFatal = errors.New("fatal provider error")
)

// IsRecoverable reports whether err should be retried.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrRecoverable)
}

// IsFatal reports whether err should fail fast.
func IsFatal(err error) bool {
	return errors.Is(err, ErrFatal)
}

// RetryConfig configures backoff for recoverable errors.
type RetryConfig struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	JitterPercent float64 // 0.0-1.0
}

// DefaultRetryConfig is a sane starting point for provider calls.
var DefaultRetryConfig = RetryConfig{
	MaxRetries:    3,
	InitialDelay:  100 * time.Millisecond,
	MaxDelay:      5 * time.Second,
	BackoffFactor: 2.0,
	JitterPercent: 0.1,
}

// RetryableError wraps an underlying error with its retry classification.
// Unwrap yields ErrRecoverable or ErrFatal so errors.Is works on either.
type RetryableError struct {
	Underlying error
	Retryable  bool
	Message    string
}

func (e *RetryableError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Underlying.Error()
}

func (e *RetryableError) Unwrap() error {
	if e.Retryable {
		return ErrRecoverable
	}
	return ErrFatal
}

// NewRecoverableError wraps err as retryable.
func NewRecoverableError(err error, message string) error {
	return &RetryableError{Underlying: err, Retryable: true, Message: message}
}

// NewFatalError wraps err as permanent.
func NewFatalError(err error, message string) error {
	return &RetryableError{Underlying: err, Retryable: false, Message: message}
}
