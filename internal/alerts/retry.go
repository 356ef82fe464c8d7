package alerts

import (
	"context"
	"time"
)

// RetryPolicy makes delivery retry semantics explicit and testable in
// isolation from the call site: bounded attempts with exponential backoff.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy matches the delivery contract: up to 3 attempts,
// exponential backoff starting at 2s and capped at 10s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   2 * time.Second,
		MaxDelay:    10 * time.Second,
	}
}

// Delay returns the backoff before the given attempt (1-based; the first
// attempt runs immediately).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}
	delay := p.BaseDelay << (attempt - 2)
	if delay > p.MaxDelay || delay <= 0 {
		delay = p.MaxDelay
	}
	return delay
}

// Do runs fn until it succeeds, fails terminally, or attempts run out.
// Only transient errors are retried. The backoff sleep honors ctx
// cancellation and holds no locks while waiting.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if delay := p.Delay(attempt); delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}

		err = fn(ctx)
		if err == nil || !IsTransient(err) {
			return err
		}
	}
	return err
}
