package services_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"speculum/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrExecution, "executor", "generate", "failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrExecution) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"execution error", "executor", "generate", "failed", "boom"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestDetailsExtractsCode(t *testing.T) {
	err := services.WrapCode(services.ErrConfiguration, "definitions", "load", "missing_deliverables", "no deliverables declared", nil)
	err = fmt.Errorf("refresh: %w", err)

	details := services.Details(err)
	if details.Kind != services.ErrorKindConfiguration {
		t.Fatalf("unexpected kind %q", details.Kind)
	}
	if details.Code != "missing_deliverables" {
		t.Fatalf("unexpected code %q", details.Code)
	}
	if details.Component != "definitions" || details.Operation != "load" {
		t.Fatalf("unexpected component/operation: %+v", details)
	}
}

func TestDetailsFallsBackForPlainErrors(t *testing.T) {
	details := services.Details(errors.New("plain failure"))
	if details.Kind != services.ErrorKindUnknown {
		t.Fatalf("expected unknown kind, got %q", details.Kind)
	}
	if details.Message != "plain failure" {
		t.Fatalf("unexpected message %q", details.Message)
	}
	if details.Code != string(services.ErrorKindUnknown) {
		t.Fatalf("unexpected code %q", details.Code)
	}
}

func TestWithHint(t *testing.T) {
	err := services.Wrap(services.ErrPersistence, "state", "save", "write failed", nil)
	hinted := services.WithHint(err, "check disk space")
	if services.Details(hinted).Hint != "check disk space" {
		t.Fatalf("expected hint to be attached")
	}
	if services.Details(err).Hint != "" {
		t.Fatalf("expected original error to stay unchanged")
	}
}

func TestIsRetryable(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"transient", services.Wrap(services.ErrTransient, "tracker", "comment", "502", nil), true},
		{"timeout", services.Wrap(services.ErrTimeout, "tracker", "comment", "slow", nil), true},
		{"deadline", context.DeadlineExceeded, true},
		{"canceled", context.Canceled, false},
		{"validation", services.Wrap(services.ErrValidation, "tracker", "comment", "bad", nil), false},
	}
	for _, tc := range cases {
		if got := services.IsRetryable(tc.err); got != tc.want {
			t.Fatalf("%s: IsRetryable=%v want %v", tc.name, got, tc.want)
		}
	}
}

func TestMarkerOf(t *testing.T) {
	notFound := services.Wrap(services.ErrNotFound, "tracker", "get issue", "", nil)
	if got := services.MarkerOf(notFound); got != services.ErrNotFound {
		t.Fatalf("expected not found marker, got %v", got)
	}
	if got := services.MarkerOf(errors.New("plain")); got != services.ErrExecution {
		t.Fatalf("expected execution fallback, got %v", got)
	}
	if got := services.MarkerOf(fmt.Errorf("call: %w", context.DeadlineExceeded)); got != services.ErrTimeout {
		t.Fatalf("expected timeout marker, got %v", got)
	}
}
