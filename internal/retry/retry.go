// Package retry provides an explicit exponential-backoff policy that callers
// invoke around individual operations.
package retry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"speculum/internal/logging"
	"speculum/internal/services"
)

// Policy describes how many times an operation is attempted and how long to
// wait between attempts. The zero value runs an operation exactly once.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
	MaxDelay    time.Duration
	// Retryable decides whether an error is worth another attempt. Nil means
	// services.IsRetryable.
	Retryable func(error) bool
	// Sleep waits between attempts. Nil means a context-aware timer.
	Sleep  func(context.Context, time.Duration) error
	Logger *slog.Logger
}

// Delays returns the wait before each retry (len = MaxAttempts-1).
func (p Policy) Delays() []time.Duration {
	attempts := p.attempts()
	if attempts <= 1 {
		return nil
	}
	b := p.backoff()
	out := make([]time.Duration, 0, attempts-1)
	for i := 1; i < attempts; i++ {
		d := b.NextBackOff()
		if d == backoff.Stop {
			d = p.MaxDelay
		}
		out = append(out, d)
	}
	return out
}

// Do runs fn until it succeeds, returns a non-retryable error, the attempts
// are exhausted, or ctx is done. The last error is returned wrapped with the
// attempt count.
func (p Policy) Do(ctx context.Context, operation string, fn func(context.Context) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	attempts := p.attempts()
	b := p.backoff()
	retryable := p.Retryable
	if retryable == nil {
		retryable = services.IsRetryable
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return fmt.Errorf("%s: %w (after %d attempts: %w)", operation, err, attempt-1, lastErr)
			}
			return fmt.Errorf("%s: %w", operation, err)
		}
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if attempt == attempts || !retryable(lastErr) {
			break
		}
		delay := b.NextBackOff()
		if delay == backoff.Stop {
			delay = p.MaxDelay
		}
		if p.Logger != nil {
			p.Logger.Debug("retrying operation",
				logging.String("operation", operation),
				logging.Int("attempt", attempt),
				logging.Duration("delay", delay),
				logging.Error(lastErr),
			)
		}
		if err := sleep(ctx, delay); err != nil {
			return fmt.Errorf("%s: %w (after %d attempts: %w)", operation, err, attempt, lastErr)
		}
	}
	if attempts > 1 && retryable(lastErr) {
		return fmt.Errorf("%s: giving up after %d attempts: %w", operation, attempts, lastErr)
	}
	return lastErr
}

func (p Policy) attempts() int {
	if p.MaxAttempts <= 0 {
		return 1
	}
	return p.MaxAttempts
}

func (p Policy) backoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.BaseDelay
	b.RandomizationFactor = 0
	b.Multiplier = p.Multiplier
	if b.Multiplier < 1 {
		b.Multiplier = 1
	}
	b.MaxInterval = p.MaxDelay
	if b.MaxInterval <= 0 {
		b.MaxInterval = p.BaseDelay
	}
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
