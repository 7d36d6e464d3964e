package apperrors

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

// RetryPolicy configures backoff behaviour for recoverable errors.
type RetryPolicy struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       bool
}

// DefaultRetryPolicy matches the job queue's default retry budget.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:   3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     16 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

// Retry runs fn, retrying only while the returned error is recoverable and
// the retry budget remains. Non-recoverable errors are returned immediately,
// matching the embedding-provider and job-queue "retry recoverable kinds
// only" disposition from §4.9.
func Retry(ctx context.Context, policy RetryPolicy, fn func() error) error {
	delay := policy.InitialDelay
	var lastErr error

	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !IsRecoverable(err) || attempt >= policy.MaxRetries {
			return lastErr
		}

		wait := delay
		if policy.Jitter {
			wait = time.Duration(float64(delay) * (0.5 + rand.Float64()*0.5))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}

		delay = time.Duration(float64(delay) * policy.Multiplier)
		if delay > policy.MaxDelay {
			delay = policy.MaxDelay
		}
	}

	return fmt.Errorf("exhausted %d retries: %w", policy.MaxRetries, lastErr)
}
