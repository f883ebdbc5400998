package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"speculum/internal/services"
	"speculum/internal/tracker"
)

// unavailableTracker backs commands that never reach the tracker.
type unavailableTracker struct{}

func (unavailableTracker) err(op string) error {
	return services.WithHint(
		services.Wrap(services.ErrConfiguration, "cli", op, "tracker not available for this command", nil),
		"use the process command to talk to the tracker",
	)
}

func (u unavailableTracker) GetIssue(context.Context, int) (tracker.Issue, error) {
	return tracker.Issue{}, u.err("get issue")
}
func (u unavailableTracker) AddLabels(context.Context, int, ...string) error {
	return u.err("add labels")
}
func (u unavailableTracker) RemoveLabels(context.Context, int, ...string) error {
	return u.err("remove labels")
}
func (u unavailableTracker) Comment(context.Context, int, string) error { return u.err("comment") }
func (u unavailableTracker) EditBody(context.Context, int, string) error {
	return u.err("edit body")
}
func (u unavailableTracker) Assign(context.Context, int, ...string) error {
	return u.err("assign")
}
func (u unavailableTracker) Unassign(context.Context, int, ...string) error {
	return u.err("unassign")
}

func parseIssueNumbers(args []string) ([]int, error) {
	out := make([]int, 0, len(args))
	for _, arg := range args {
		n, err := strconv.Atoi(strings.TrimPrefix(strings.TrimSpace(arg), "#"))
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid issue number %q", arg)
		}
		out = append(out, n)
	}
	return out, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

func joinOrDash(values []string) string {
	if len(values) == 0 {
		return "-"
	}
	return strings.Join(values, ", ")
}

func describeError(err error) string {
	if err == nil {
		return ""
	}
	details := services.Details(err)
	msg := details.Message
	if msg == "" {
		msg = err.Error()
	}
	if details.Hint != "" {
		msg += " (" + details.Hint + ")"
	}
	return msg
}
