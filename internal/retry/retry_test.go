package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"speculum/internal/retry"
	"speculum/internal/services"
)

func recordingSleep(delays *[]time.Duration) func(context.Context, time.Duration) error {
	return func(ctx context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return ctx.Err()
	}
}

func TestDelaysFollowExponentialSequence(t *testing.T) {
	p := retry.Policy{MaxAttempts: 5, BaseDelay: 100 * time.Millisecond, Multiplier: 2, MaxDelay: 500 * time.Millisecond}
	assert.Equal(t, []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		500 * time.Millisecond,
	}, p.Delays())
}

func TestDoRetriesTransientErrors(t *testing.T) {
	var delays []time.Duration
	p := retry.Policy{MaxAttempts: 3, BaseDelay: 10 * time.Millisecond, Multiplier: 2, MaxDelay: time.Second, Sleep: recordingSleep(&delays)}

	calls := 0
	err := p.Do(context.Background(), "save state", func(context.Context) error {
		calls++
		if calls < 3 {
			return services.Wrap(services.ErrTransient, "state", "save", "disk busy", nil)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}, delays)
}

func TestDoStopsOnNonRetryableError(t *testing.T) {
	var delays []time.Duration
	p := retry.Policy{MaxAttempts: 5, BaseDelay: time.Millisecond, Multiplier: 2, MaxDelay: time.Second, Sleep: recordingSleep(&delays)}

	calls := 0
	err := p.Do(context.Background(), "comment", func(context.Context) error {
		calls++
		return services.Wrap(services.ErrValidation, "tracker", "comment", "bad body", nil)
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, services.ErrValidation)
	assert.Equal(t, 1, calls)
	assert.Empty(t, delays)
}

func TestDoReportsExhaustion(t *testing.T) {
	var delays []time.Duration
	p := retry.Policy{MaxAttempts: 2, Sleep: recordingSleep(&delays)}

	err := p.Do(context.Background(), "generate", func(context.Context) error {
		return services.ErrTransient
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, services.ErrTransient)
	assert.Contains(t, err.Error(), "giving up after 2 attempts")
	assert.Len(t, delays, 1)
}

func TestDoHonoursCustomPredicate(t *testing.T) {
	sentinel := errors.New("flaky")
	p := retry.Policy{
		MaxAttempts: 3,
		Retryable:   func(err error) bool { return errors.Is(err, sentinel) },
		Sleep:       func(context.Context, time.Duration) error { return nil },
	}
	calls := 0
	err := p.Do(context.Background(), "op", func(context.Context) error {
		calls++
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)
	assert.Equal(t, 3, calls)
}

func TestDoStopsWhenContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := retry.Policy{MaxAttempts: 5, Sleep: func(context.Context, time.Duration) error {
		cancel()
		return context.Canceled
	}}
	calls := 0
	err := p.Do(ctx, "op", func(context.Context) error {
		calls++
		return services.ErrTransient
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestZeroPolicyRunsOnce(t *testing.T) {
	calls := 0
	err := retry.Policy{}.Do(context.Background(), "op", func(context.Context) error {
		calls++
		return services.ErrTransient
	})
	require.ErrorIs(t, err, services.ErrTransient)
	assert.Equal(t, 1, calls)
}
