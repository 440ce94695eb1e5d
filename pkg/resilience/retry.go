package resilience

import (
	"context"
	"time"
)

// RetryPolicy defines retry behavior for transient failures.
type RetryPolicy struct {
	MaxRetries int
	Backoff    time.Duration
}

func NewRetryPolicy(maxRetries int, backoff time.Duration) RetryPolicy {
	if maxRetries <= 0 {
		maxRetries = 2
	}
	if backoff <= 0 {
		backoff = 200 * time.Millisecond
	}
	return RetryPolicy{MaxRetries: maxRetries, Backoff: backoff}
}

// Do runs fn until it succeeds, retries are exhausted, or ctx expires.
// A rate-limited attempt is not retried; the caller's circuit breaker
// handles it.
func (r RetryPolicy) Do(ctx context.Context, fn func() error) error {
	var err error
	for i := 0; i <= r.MaxRetries; i++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		err = fn()
		if err == nil {
			return nil
		}
		if IsRateLimit(err) || i == r.MaxRetries {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.Backoff):
		}
	}
	return err
}
