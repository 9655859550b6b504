// Package resilience provides the bounded retry primitive used around the
// text-generation call.
//
// The policy is an explicit attempt-wait loop with an injectable
// sleep function so tests can assert the exact wait sequence without real
// wall-clock delays. Only generation is retried; synthesis and transcription
// errors pass through to the caller unmodified.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrRetriesExhausted is returned (wrapped around the last underlying error)
// when every attempt of a [RetryPolicy.Do] call fails.
var ErrRetriesExhausted = errors.New("all retry attempts failed")

// SleepFunc waits for d or until ctx is cancelled, returning ctx.Err() in the
// latter case. Tests substitute a recording implementation.
type SleepFunc func(ctx context.Context, d time.Duration) error

// RetryPolicy is a bounded attempt count with exponential backoff.
// The zero value is usable and yields the standard 3 attempts with 1s base
// delay (waits of 1s, 2s between attempts).
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts, including the first.
	// Values below 1 mean the default of 3.
	MaxAttempts int

	// BaseDelay is the wait before the second attempt; each further wait
	// doubles. Zero means the default of 1s.
	BaseDelay time.Duration

	// Sleep is the wait implementation. Nil means a real timer-backed sleep.
	Sleep SleepFunc
}

// Do runs fn up to MaxAttempts times, waiting BaseDelay<<attempt between
// failures. name labels the operation in logs.
//
// The first nil error wins. After the final failed attempt the last error is
// returned wrapped in [ErrRetriesExhausted]. If ctx is cancelled during a
// backoff wait, Do stops early and returns the context error.
func (p RetryPolicy) Do(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 3
	}
	base := p.BaseDelay
	if base == 0 {
		base = time.Second
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			wait := base << (attempt - 1)
			slog.Warn("retrying after failure",
				"op", name,
				"attempt", attempt+1,
				"max_attempts", attempts,
				"wait", wait,
				"error", lastErr,
			)
			if err := sleep(ctx, wait); err != nil {
				return err
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
	}
	return fmt.Errorf("%w: %s: %w", ErrRetriesExhausted, name, lastErr)
}

// sleepContext is the production SleepFunc.
func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
