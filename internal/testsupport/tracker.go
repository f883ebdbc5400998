package testsupport

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"speculum/internal/services"
	"speculum/internal/tracker"
)

// FakeTracker is an in-memory tracker.Tracker that records every call.
type FakeTracker struct {
	mu       sync.Mutex
	issues   map[int]*tracker.Issue
	Comments map[int][]string
	Calls    []string
	// FailOn makes the named operation ("comment", "add_labels", ...) return Err.
	FailOn map[string]error
}

var _ tracker.Tracker = (*FakeTracker)(nil)

// NewFakeTracker seeds the tracker with issues.
func NewFakeTracker(issues ...tracker.Issue) *FakeTracker {
	f := &FakeTracker{issues: map[int]*tracker.Issue{}, Comments: map[int][]string{}, FailOn: map[string]error{}}
	for _, issue := range issues {
		issue := issue
		f.issues[issue.Number] = &issue
	}
	return f
}

// Issue returns a snapshot of an issue.
func (f *FakeTracker) Issue(number int) tracker.Issue {
	f.mu.Lock()
	defer f.mu.Unlock()
	if issue, ok := f.issues[number]; ok {
		out := *issue
		out.Labels = slices.Clone(issue.Labels)
		out.Assignees = slices.Clone(issue.Assignees)
		return out
	}
	return tracker.Issue{}
}

// CommentsFor returns the comments posted on an issue.
func (f *FakeTracker) CommentsFor(number int) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.Comments[number])
}

// Fail makes op fail with err on every call.
func (f *FakeTracker) Fail(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.FailOn[op] = err
}

func (f *FakeTracker) record(op string, number int) (*tracker.Issue, error) {
	f.Calls = append(f.Calls, fmt.Sprintf("%s #%d", op, number))
	if err := f.FailOn[op]; err != nil {
		return nil, err
	}
	issue, ok := f.issues[number]
	if !ok {
		return nil, services.Wrap(services.ErrNotFound, "fake-tracker", op, fmt.Sprintf("issue #%d", number), nil)
	}
	return issue, nil
}

func (f *FakeTracker) GetIssue(_ context.Context, number int) (tracker.Issue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	issue, err := f.record("get_issue", number)
	if err != nil {
		return tracker.Issue{}, err
	}
	out := *issue
	out.Labels = slices.Clone(issue.Labels)
	out.Assignees = slices.Clone(issue.Assignees)
	return out, nil
}

func (f *FakeTracker) AddLabels(_ context.Context, number int, labels ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	issue, err := f.record("add_labels", number)
	if err != nil {
		return err
	}
	for _, l := range labels {
		if !issue.HasLabel(l) {
			issue.Labels = append(issue.Labels, l)
		}
	}
	return nil
}

func (f *FakeTracker) RemoveLabels(_ context.Context, number int, labels ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	issue, err := f.record("remove_labels", number)
	if err != nil {
		return err
	}
	issue.Labels = slices.DeleteFunc(issue.Labels, func(l string) bool {
		return slices.ContainsFunc(labels, func(r string) bool { return strings.EqualFold(l, r) })
	})
	return nil
}

func (f *FakeTracker) Comment(_ context.Context, number int, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := f.record("comment", number); err != nil {
		return err
	}
	f.Comments[number] = append(f.Comments[number], body)
	return nil
}

func (f *FakeTracker) EditBody(_ context.Context, number int, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	issue, err := f.record("edit_body", number)
	if err != nil {
		return err
	}
	issue.Body = body
	return nil
}

func (f *FakeTracker) Assign(_ context.Context, number int, logins ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	issue, err := f.record("assign", number)
	if err != nil {
		return err
	}
	for _, login := range logins {
		if !slices.Contains(issue.Assignees, login) {
			issue.Assignees = append(issue.Assignees, login)
		}
	}
	return nil
}

func (f *FakeTracker) Unassign(_ context.Context, number int, logins ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	issue, err := f.record("unassign", number)
	if err != nil {
		return err
	}
	issue.Assignees = slices.DeleteFunc(issue.Assignees, func(a string) bool { return slices.Contains(logins, a) })
	return nil
}
