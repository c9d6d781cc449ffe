// ABOUTME: Exponential-backoff-with-jitter retry policy for transient storage errors.
// ABOUTME: Idempotent operations retry up to 3 times before the error reaches the caller.
package retry

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

// Policy configures retry behavior for an idempotent operation.
type Policy struct {
	// MaxRetries is the number of retry attempts after the initial call.
	MaxRetries int
	// BaseDelay is the delay before the first retry.
	BaseDelay time.Duration
	// MaxDelay caps the computed delay.
	MaxDelay time.Duration
	// BackoffMultiplier controls exponential growth between attempts.
	BackoffMultiplier float64
	// Jitter randomizes the delay between 0 and the computed backoff.
	Jitter bool
	// OnRetry, if set, is invoked before each retry with the triggering
	// error, the zero-indexed attempt number, and the delay about to be
	// applied.
	OnRetry func(err error, attempt int, delay time.Duration)
}

// DefaultPolicy returns the policy spec.md §7 specifies for Storage errors:
// 3 retries, 100ms base delay, 5s cap, 2x backoff, jitter enabled.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:        3,
		BaseDelay:         100 * time.Millisecond,
		MaxDelay:          5 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            true,
	}
}

// CalculateDelay computes the delay before the given zero-indexed retry
// attempt, capped at MaxDelay and optionally jittered.
func (p Policy) CalculateDelay(attempt int) time.Duration {
	backoff := float64(p.BaseDelay) * math.Pow(p.BackoffMultiplier, float64(attempt))
	if backoff > float64(p.MaxDelay) {
		backoff = float64(p.MaxDelay)
	}
	if p.Jitter {
		backoff = rand.Float64() * backoff
	}
	return time.Duration(backoff)
}

// Retryable is implemented by errors that know whether they are worth
// retrying (internal/errs.Error satisfies this).
type Retryable interface {
	Retryable() bool
}

// Do runs fn, retrying according to p when fn returns an error whose
// Retryable() reports true (errors without that method are never retried).
// It stops early on context cancellation and returns the last error seen.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		r, ok := lastErr.(Retryable)
		if !ok || !r.Retryable() || attempt == p.MaxRetries {
			return lastErr
		}

		delay := p.CalculateDelay(attempt)
		if p.OnRetry != nil {
			p.OnRetry(lastErr, attempt, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return lastErr
}
