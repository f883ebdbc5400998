package services

import "context"

type contextKey string

const (
	issueKey     contextKey = "issue_number"
	stageKey     contextKey = "stage"
	workflowKey  contextKey = "workflow"
	planKey      contextKey = "plan_id"
	requestIDKey contextKey = "request_id"
)

// WithIssueNumber annotates context with the tracker issue number.
func WithIssueNumber(ctx context.Context, number int) context.Context {
	return context.WithValue(ctx, issueKey, number)
}

// IssueNumberFromContext extracts the issue number if present.
func IssueNumberFromContext(ctx context.Context) (int, bool) {
	v := ctx.Value(issueKey)
	if v == nil {
		return 0, false
	}
	switch val := v.(type) {
	case int:
		return val, true
	case int64:
		return int(val), true
	default:
		return 0, false
	}
}

// WithStage annotates context with the execution stage label (e.g. "stage-02").
func WithStage(ctx context.Context, stage string) context.Context {
	if stage == "" {
		return ctx
	}
	return context.WithValue(ctx, stageKey, stage)
}

// StageFromContext returns the stage label if present.
func StageFromContext(ctx context.Context) (string, bool) {
	v := ctx.Value(stageKey)
	if str, ok := v.(string); ok && str != "" {
		return str, true
	}
	return "", false
}

// WithWorkflow annotates context with the workflow currently executing.
func WithWorkflow(ctx context.Context, name string) context.Context {
	if name == "" {
		return ctx
	}
	return context.WithValue(ctx, workflowKey, name)
}

// WorkflowFromContext returns the workflow name if present.
func WorkflowFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(workflowKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithPlanID annotates context with the execution plan identifier.
func WithPlanID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, planKey, id)
}

// PlanIDFromContext returns the execution plan identifier if present.
func PlanIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(planKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(requestIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
