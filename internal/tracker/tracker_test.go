package tracker_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"speculum/internal/retry"
	"speculum/internal/services"
	ts "speculum/internal/testsupport"
	"speculum/internal/tracker"
)

func noSleep(context.Context, time.Duration) error { return nil }

type flakyTracker struct {
	*ts.FakeTracker
	failures int
	err      error
	calls    int
}

func (f *flakyTracker) GetIssue(ctx context.Context, number int) (tracker.Issue, error) {
	f.calls++
	if f.calls <= f.failures {
		return tracker.Issue{}, f.err
	}
	return f.FakeTracker.GetIssue(ctx, number)
}

type blockingTracker struct {
	*ts.FakeTracker
	calls int
}

func (b *blockingTracker) Comment(ctx context.Context, number int, body string) error {
	b.calls++
	<-ctx.Done()
	return ctx.Err()
}

func TestIssueHasLabelIgnoresCaseAndSpace(t *testing.T) {
	issue := tracker.Issue{Labels: []string{"Site-Monitor", " legal "}}
	assert.True(t, issue.HasLabel("site-monitor"))
	assert.True(t, issue.HasLabel("LEGAL"))
	assert.False(t, issue.HasLabel("compliance"))
}

func TestWithRetryRetriesTransientErrors(t *testing.T) {
	flaky := &flakyTracker{
		FakeTracker: ts.NewFakeTracker(tracker.Issue{Number: 3, Title: "Flaky"}),
		failures:    2,
		err:         services.Wrap(services.ErrTransient, "github", "get issue", "server error", nil),
	}
	client := tracker.WithRetry(flaky, retry.Policy{MaxAttempts: 3, Sleep: noSleep}, 0)

	issue, err := client.GetIssue(context.Background(), 3)

	require.NoError(t, err)
	assert.Equal(t, "Flaky", issue.Title)
	assert.Equal(t, 3, flaky.calls)
}

func TestWithRetryStopsOnPermanentErrors(t *testing.T) {
	flaky := &flakyTracker{
		FakeTracker: ts.NewFakeTracker(),
		failures:    5,
		err:         services.Wrap(services.ErrConfiguration, "github", "get issue", "bad credentials", nil),
	}
	client := tracker.WithRetry(flaky, retry.Policy{MaxAttempts: 3, Sleep: noSleep}, 0)

	_, err := client.GetIssue(context.Background(), 3)

	assert.ErrorIs(t, err, services.ErrConfiguration)
	assert.Equal(t, 1, flaky.calls)
}

func TestWithRetryAppliesPerAttemptTimeout(t *testing.T) {
	blocking := &blockingTracker{FakeTracker: ts.NewFakeTracker(tracker.Issue{Number: 1})}
	client := tracker.WithRetry(blocking, retry.Policy{MaxAttempts: 2, Sleep: noSleep}, 10*time.Millisecond)

	err := client.Comment(context.Background(), 1, "hello")

	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, 2, blocking.calls)
}

func TestWithRetryPassesThroughWriteOperations(t *testing.T) {
	fake := ts.NewFakeTracker(tracker.Issue{Number: 4, Assignees: []string{"bot"}})
	client := tracker.WithRetry(fake, retry.Policy{MaxAttempts: 2, Sleep: noSleep}, time.Second)
	ctx := context.Background()

	require.NoError(t, client.AddLabels(ctx, 4, "done", "reviewed"))
	require.NoError(t, client.RemoveLabels(ctx, 4, "reviewed"))
	require.NoError(t, client.Comment(ctx, 4, "summary"))
	require.NoError(t, client.EditBody(ctx, 4, "new body"))
	require.NoError(t, client.Assign(ctx, 4, "reviewer"))
	require.NoError(t, client.Unassign(ctx, 4, "bot"))

	issue := fake.Issue(4)
	assert.Equal(t, []string{"done"}, issue.Labels)
	assert.Equal(t, "new body", issue.Body)
	assert.Equal(t, []string{"reviewer"}, issue.Assignees)
	assert.Equal(t, []string{"summary"}, fake.CommentsFor(4))
}
