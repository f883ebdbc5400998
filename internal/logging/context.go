package logging

import (
	"context"
	"log/slog"

	"speculum/internal/services"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldIssue is the standardized key for tracker issue numbers.
	FieldIssue = "issue"
	// FieldStage is the standardized key for execution stage labels.
	FieldStage = "stage"
	// FieldWorkflow is the standardized key for workflow names.
	FieldWorkflow = "workflow"
	// FieldPlanID is the standardized key for execution plan identifiers.
	FieldPlanID = "plan_id"
	// FieldCorrelationID is the standardized key for request correlation identifiers.
	FieldCorrelationID = "correlation_id"
	// FieldEventType classifies a log line for filtering (e.g. "stage_start").
	FieldEventType = "event_type"
	// FieldErrorHint suggests the operator's next step.
	FieldErrorHint = "error_hint"
	// FieldErrorKind carries services.ErrorKind.
	FieldErrorKind = "error_kind"
	// FieldErrorCode carries the stable error code.
	FieldErrorCode = "error_code"
	// FieldImpact is the user-facing consequence of a warning.
	FieldImpact = "impact"
	// FieldDecisionType names the decision being logged.
	FieldDecisionType = "decision_type"
	// FieldAlert flags warnings or anomalies that should stand out in structured logs.
	FieldAlert = "alert"
)

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 5)
	if number, ok := services.IssueNumberFromContext(ctx); ok {
		fields = append(fields, slog.Int(FieldIssue, number))
	}
	if stage, ok := services.StageFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldStage, stage))
	}
	if wf, ok := services.WorkflowFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldWorkflow, wf))
	}
	if plan, ok := services.PlanIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldPlanID, plan))
	}
	if rid, ok := services.RequestIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldCorrelationID, rid))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(Args(fields...)...)
}

// ErrorAttrs flattens an error into the standard kind/code/error attributes.
func ErrorAttrs(err error) []Attr {
	if err == nil {
		return nil
	}
	details := services.Details(err)
	attrs := []Attr{
		String(FieldErrorKind, string(details.Kind)),
		String(FieldErrorCode, details.Code),
		Error(err),
	}
	if details.Hint != "" {
		attrs = append(attrs, String(FieldErrorHint, details.Hint))
	}
	return attrs
}
