package tracker

import (
	"context"
	"fmt"
	"time"

	"speculum/internal/retry"
)

// Retrying wraps a Tracker so each call runs under the retry policy with a
// per-attempt timeout.
type Retrying struct {
	next    Tracker
	policy  retry.Policy
	timeout time.Duration
}

// WithRetry decorates next. A timeout <= 0 disables the per-attempt deadline.
func WithRetry(next Tracker, policy retry.Policy, timeout time.Duration) *Retrying {
	return &Retrying{next: next, policy: policy, timeout: timeout}
}

func (r *Retrying) do(ctx context.Context, op string, number int, fn func(context.Context) error) error {
	return r.policy.Do(ctx, fmt.Sprintf("tracker %s #%d", op, number), func(ctx context.Context) error {
		if r.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, r.timeout)
			defer cancel()
		}
		return fn(ctx)
	})
}

func (r *Retrying) GetIssue(ctx context.Context, number int) (Issue, error) {
	var issue Issue
	err := r.do(ctx, "get issue", number, func(ctx context.Context) error {
		var err error
		issue, err = r.next.GetIssue(ctx, number)
		return err
	})
	return issue, err
}

func (r *Retrying) AddLabels(ctx context.Context, number int, labels ...string) error {
	return r.do(ctx, "add labels", number, func(ctx context.Context) error {
		return r.next.AddLabels(ctx, number, labels...)
	})
}

func (r *Retrying) RemoveLabels(ctx context.Context, number int, labels ...string) error {
	return r.do(ctx, "remove labels", number, func(ctx context.Context) error {
		return r.next.RemoveLabels(ctx, number, labels...)
	})
}

func (r *Retrying) Comment(ctx context.Context, number int, body string) error {
	return r.do(ctx, "comment", number, func(ctx context.Context) error {
		return r.next.Comment(ctx, number, body)
	})
}

func (r *Retrying) EditBody(ctx context.Context, number int, body string) error {
	return r.do(ctx, "edit body", number, func(ctx context.Context) error {
		return r.next.EditBody(ctx, number, body)
	})
}

func (r *Retrying) Assign(ctx context.Context, number int, logins ...string) error {
	return r.do(ctx, "assign", number, func(ctx context.Context) error {
		return r.next.Assign(ctx, number, logins...)
	})
}

func (r *Retrying) Unassign(ctx context.Context, number int, logins ...string) error {
	return r.do(ctx, "unassign", number, func(ctx context.Context) error {
		return r.next.Unassign(ctx, number, logins...)
	})
}
