// Package tracker defines the issue tracker contract the processor drives and
// a retrying decorator shared by every adapter.
package tracker

import (
	"context"
	"strings"
)

// Issue is the tracker view of a work item.
type Issue struct {
	Number    int
	Title     string
	Body      string
	State     string
	URL       string
	Labels    []string
	Assignees []string
}

// HasLabel reports whether the issue carries label, ignoring case.
func (i Issue) HasLabel(label string) bool {
	for _, l := range i.Labels {
		if strings.EqualFold(strings.TrimSpace(l), strings.TrimSpace(label)) {
			return true
		}
	}
	return false
}

// Tracker is the set of issue operations processing needs.
type Tracker interface {
	GetIssue(ctx context.Context, number int) (Issue, error)
	AddLabels(ctx context.Context, number int, labels ...string) error
	RemoveLabels(ctx context.Context, number int, labels ...string) error
	Comment(ctx context.Context, number int, body string) error
	EditBody(ctx context.Context, number int, body string) error
	Assign(ctx context.Context, number int, logins ...string) error
	Unassign(ctx context.Context, number int, logins ...string) error
}
