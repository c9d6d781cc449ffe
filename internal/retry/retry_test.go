// ABOUTME: Tests for the retry policy's attempt count and backoff timing.
// ABOUTME: Covers retryable-kind filtering so non-transient errors fail fast.
package retry

import (
	"context"
	"testing"
	"time"

	"github.com/fleetforge/fleetd/internal/errs"
)

func TestDoRetriesRetryableErrors(t *testing.T) {
	p := DefaultPolicy()
	p.BaseDelay = time.Millisecond
	p.MaxDelay = 5 * time.Millisecond

	attempts := 0
	err := Do(context.Background(), p, func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return errs.Storage(nil, "busy")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestDoDoesNotRetryNonRetryable(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), DefaultPolicy(), func(ctx context.Context) error {
		attempts++
		return errs.Conflict("handle taken")
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	if attempts != 1 {
		t.Fatalf("expected exactly 1 attempt for non-retryable error, got %d", attempts)
	}
}

func TestDoGivesUpAfterMaxRetries(t *testing.T) {
	p := DefaultPolicy()
	p.MaxRetries = 2
	p.BaseDelay = time.Millisecond
	p.MaxDelay = 2 * time.Millisecond

	attempts := 0
	err := Do(context.Background(), p, func(ctx context.Context) error {
		attempts++
		return errs.Storage(nil, "always busy")
	})
	if err == nil {
		t.Fatalf("expected error after exhausting retries")
	}
	if attempts != 3 {
		t.Fatalf("expected 1 initial + 2 retries = 3 attempts, got %d", attempts)
	}
}

func TestDoRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	attempts := 0
	err := Do(ctx, DefaultPolicy(), func(ctx context.Context) error {
		attempts++
		return errs.Storage(nil, "busy")
	})
	if err == nil {
		t.Fatalf("expected context error")
	}
	if attempts != 0 {
		t.Fatalf("expected no attempts on pre-cancelled context, got %d", attempts)
	}
}
