package telemetry

import (
	"context"
	"time"
)

// EventType classifies an Event.
type EventType string

const (
	EventPlanCreated      EventType = "plan_created"
	EventExecutionSummary EventType = "execution_summary"
)

// Outcome values carried by execution_summary events.
const (
	OutcomeCompleted = "completed"
	OutcomePartial   = "partial"
	OutcomeFailed    = "failed"
	OutcomePreview   = "preview"
)

// Event is one telemetry record.
type Event struct {
	Type              EventType     `json:"type"`
	Timestamp         time.Time     `json:"timestamp"`
	Issue             int           `json:"issue"`
	PlanID            string        `json:"plan_id"`
	CorrelationID     string        `json:"correlation_id,omitempty"`
	SelectionReason   string        `json:"selection_reason,omitempty"`
	StageCount        int           `json:"stage_count"`
	WorkflowCount     int           `json:"workflow_count"`
	Workflows         []string      `json:"workflows,omitempty"`
	BlockingConflicts []string      `json:"blocking_conflicts,omitempty"`
	Outcome           string        `json:"outcome,omitempty"`
	Failures          []string      `json:"failures,omitempty"`
	Duration          time.Duration `json:"duration,omitempty"`
}

// Sink receives events.
type Sink interface {
	Emit(ctx context.Context, event Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, event Event) error

// Emit calls f.
func (f SinkFunc) Emit(ctx context.Context, event Event) error {
	return f(ctx, event)
}
