package services

import (
	"context"
	"errors"
	"strings"
)

var (
	ErrConfiguration = errors.New("configuration error")
	ErrPlanning      = errors.New("planning error")
	ErrExecution     = errors.New("execution error")
	ErrTimeout       = errors.New("timeout")
	ErrPersistence   = errors.New("persistence error")
	ErrValidation    = errors.New("validation error")
	ErrNotFound      = errors.New("not found")
	ErrTransient     = errors.New("transient failure")
)

// ErrorKind is the stable, log-friendly name of a marker error.
type ErrorKind string

const (
	ErrorKindConfiguration ErrorKind = "configuration"
	ErrorKindPlanning      ErrorKind = "planning"
	ErrorKindExecution     ErrorKind = "execution"
	ErrorKindTimeout       ErrorKind = "timeout"
	ErrorKindPersistence   ErrorKind = "persistence"
	ErrorKindValidation    ErrorKind = "validation"
	ErrorKindNotFound      ErrorKind = "not_found"
	ErrorKindTransient     ErrorKind = "transient"
	ErrorKindUnknown       ErrorKind = "unknown"
)

var markerKinds = []struct {
	marker error
	kind   ErrorKind
}{
	{ErrConfiguration, ErrorKindConfiguration},
	{ErrPlanning, ErrorKindPlanning},
	{ErrExecution, ErrorKindExecution},
	{ErrTimeout, ErrorKindTimeout},
	{ErrPersistence, ErrorKindPersistence},
	{ErrValidation, ErrorKindValidation},
	{ErrNotFound, ErrorKindNotFound},
	{ErrTransient, ErrorKindTransient},
}

// ServiceError carries the structured context attached by Wrap.
type ServiceError struct {
	Marker    error
	Component string
	Operation string
	Code      string
	Message   string
	Hint      string
	Cause     error
}

func (e *ServiceError) Error() string {
	parts := make([]string, 0, 5)
	if e.Marker != nil {
		parts = append(parts, e.Marker.Error())
	}
	parts = append(parts, buildDetail(e.Component, e.Operation, e.Message))
	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}
	return strings.Join(parts, ": ")
}

// Unwrap exposes both the marker and the cause to errors.Is/As.
func (e *ServiceError) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Marker != nil {
		out = append(out, e.Marker)
	}
	if e.Cause != nil {
		out = append(out, e.Cause)
	}
	return out
}

// Wrap builds an error that includes component context while tagging it with
// the provided marker for later status classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	return WrapCode(marker, component, operation, "", message, err)
}

// WrapCode is Wrap with a stable machine-readable code (e.g. "missing_deliverables").
func WrapCode(marker error, component, operation, code, message string, err error) error {
	if marker == nil {
		marker = ErrTransient
	}
	return &ServiceError{
		Marker:    marker,
		Component: strings.TrimSpace(component),
		Operation: strings.TrimSpace(operation),
		Code:      strings.TrimSpace(code),
		Message:   strings.TrimSpace(message),
		Cause:     err,
	}
}

// WithHint returns a copy of a ServiceError carrying an operator hint. Non
// service errors are returned unchanged.
func WithHint(err error, hint string) error {
	var svcErr *ServiceError
	if !errors.As(err, &svcErr) {
		return err
	}
	clone := *svcErr
	clone.Hint = strings.TrimSpace(hint)
	return &clone
}

// ErrorDetails is the flattened view of an error used for logging and state.
type ErrorDetails struct {
	Kind      ErrorKind
	Component string
	Operation string
	Code      string
	Message   string
	Hint      string
	Cause     error
}

// Details extracts structured fields from err. Errors that were not produced by
// Wrap still get a kind (from errors.Is) and a message.
func Details(err error) ErrorDetails {
	if err == nil {
		return ErrorDetails{}
	}
	details := ErrorDetails{Kind: KindOf(err)}
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		details.Component = svcErr.Component
		details.Operation = svcErr.Operation
		details.Code = svcErr.Code
		details.Message = svcErr.Message
		details.Hint = svcErr.Hint
		details.Cause = svcErr.Cause
	}
	if details.Message == "" {
		details.Message = strings.TrimSpace(err.Error())
	}
	if details.Code == "" {
		details.Code = string(details.Kind)
	}
	return details
}

// KindOf reports the marker kind carried by err.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorKindTimeout
	}
	for _, mk := range markerKinds {
		if errors.Is(err, mk.marker) {
			return mk.kind
		}
	}
	return ErrorKindUnknown
}

// MarkerOf returns the sentinel marker carried by err, or ErrExecution when
// err carries none. It lets callers re-wrap an error without changing its kind.
func MarkerOf(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	for _, mk := range markerKinds {
		if errors.Is(err, mk.marker) {
			return mk.marker
		}
	}
	return ErrExecution
}

// IsRetryable reports whether err is worth another attempt. Only transient
// failures and per-call timeouts qualify; cancellation never does.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	return errors.Is(err, ErrTransient) || errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded)
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
