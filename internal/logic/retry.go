package logic

import (
	"context"
	"errors"
	"time"
)

// RetryPolicy is the single retry rule applied around executor calls.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
	// Retryable decides whether a failed attempt may be retried.
	// Nil means DefaultRetryable.
	Retryable func(error) bool
}

// DefaultRetryPolicy is three attempts with 2s, 4s backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   2 * time.Second,
		Multiplier:  2,
		Retryable:   DefaultRetryable,
	}
}

// DefaultRetryable treats engine, storage, aggregation and timeout failures
// as transient. Anything else (for example a canceled context) is final.
func DefaultRetryable(err error) bool {
	var (
		ee *EngineError
		se *StorageError
		ae *AggregationError
	)
	switch {
	case err == nil:
		return false
	case errors.Is(err, context.Canceled):
		return false
	case errors.As(err, &ee), errors.As(err, &se), errors.As(err, &ae):
		return true
	case errors.Is(err, context.DeadlineExceeded):
		return true
	}
	return false
}

// Backoff returns the delay before attempt n+1 after n failed attempts
// (n >= 1): Base * Multiplier^(n-1).
func (p RetryPolicy) Backoff(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	d := float64(p.BaseDelay)
	for i := 1; i < n; i++ {
		d *= p.Multiplier
	}
	return time.Duration(d)
}

// ShouldRetry reports whether another attempt is allowed after the given
// number of failed attempts.
func (p RetryPolicy) ShouldRetry(err error, attempts int) bool {
	if attempts >= p.MaxAttempts {
		return false
	}
	retryable := p.Retryable
	if retryable == nil {
		retryable = DefaultRetryable
	}
	return retryable(err)
}
