package state

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"speculum/internal/planner"
	"speculum/internal/services"
)

// CodeProcessingTimeout marks an attempt closed because it went stale.
const CodeProcessingTimeout = "processing_timeout"

// CodeInvalidTransition is returned when a lifecycle move is not allowed.
const CodeInvalidTransition = "invalid_transition"

// ErrorTypeTimeout is recorded for stale attempts.
const ErrorTypeTimeout = "TimeoutError"

// Record is the persisted processing state of one issue.
type Record struct {
	IssueNumber          int        `json:"issue_number"`
	Status               Status     `json:"status"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
	StartedAt            *time.Time `json:"started_at,omitempty"`
	CompletedAt          *time.Time `json:"completed_at,omitempty"`
	WorkflowName         string     `json:"workflow_name,omitempty"`
	WorkflowNames        []string   `json:"workflow_names,omitempty"`
	CreatedFiles         []string   `json:"created_files"`
	ErrorMessage         string     `json:"error_message,omitempty"`
	ErrorType            string     `json:"error_type,omitempty"`
	ErrorCode            string     `json:"error_code,omitempty"`
	ErrorTime            *time.Time `json:"error_time,omitempty"`
	RetryCount           int        `json:"retry_count"`
	LastAttempt          *time.Time `json:"last_attempt,omitempty"`
	ClarificationMessage string     `json:"clarification_message,omitempty"`

	MultiWorkflow *planner.Summary `json:"multi_workflow_execution,omitempty"`
}

// NewRecord returns an unsaved record for issue.
func NewRecord(issue int, now time.Time) Record {
	return Record{IssueNumber: issue, CreatedAt: now, UpdatedAt: now, CreatedFiles: []string{}}
}

// Clone returns a deep copy.
func (r Record) Clone() Record {
	out := r
	out.StartedAt = cloneTime(r.StartedAt)
	out.CompletedAt = cloneTime(r.CompletedAt)
	out.ErrorTime = cloneTime(r.ErrorTime)
	out.LastAttempt = cloneTime(r.LastAttempt)
	out.WorkflowNames = slices.Clone(r.WorkflowNames)
	out.CreatedFiles = slices.Clone(r.CreatedFiles)
	if out.CreatedFiles == nil {
		out.CreatedFiles = []string{}
	}
	if r.MultiWorkflow != nil {
		summary := *r.MultiWorkflow
		summary.Stages = slices.Clone(r.MultiWorkflow.Stages)
		summary.Failures = slices.Clone(r.MultiWorkflow.Failures)
		out.MultiWorkflow = &summary
	}
	return out
}

// IsStale reports whether a PROCESSING attempt started more than timeout ago.
func (r Record) IsStale(now time.Time, timeout time.Duration) bool {
	if r.Status != StatusProcessing || timeout <= 0 {
		return false
	}
	started := r.StartedAt
	if started == nil {
		started = r.LastAttempt
	}
	if started == nil {
		return !r.UpdatedAt.IsZero() && now.Sub(r.UpdatedAt) > timeout
	}
	return now.Sub(*started) > timeout
}

// Begin opens a new attempt: any prior terminal or paused state is reset to
// PENDING, then the record moves to PROCESSING.
func (r *Record) Begin(now time.Time) error {
	if r.Status != StatusPending {
		if err := r.transition(StatusPending, now); err != nil {
			return err
		}
	}
	if err := r.transition(StatusProcessing, now); err != nil {
		return err
	}
	r.StartedAt = timePtr(now)
	r.LastAttempt = timePtr(now)
	r.CompletedAt = nil
	r.clearError()
	r.ClarificationMessage = ""
	return nil
}

// Complete closes the attempt successfully.
func (r *Record) Complete(now time.Time, workflows, files []string) error {
	if err := r.transition(StatusCompleted, now); err != nil {
		return err
	}
	r.setWorkflows(workflows)
	r.CreatedFiles = append([]string{}, files...)
	r.CompletedAt = timePtr(now)
	return nil
}

// Fail closes the attempt as ERROR with the error's kind and code.
func (r *Record) Fail(now time.Time, workflows []string, err error) error {
	if terr := r.transition(StatusError, now); terr != nil {
		return terr
	}
	r.setWorkflows(workflows)
	details := services.Details(err)
	r.ErrorMessage = details.Message
	if details.Cause != nil && !strings.Contains(details.Message, details.Cause.Error()) {
		r.ErrorMessage = fmt.Sprintf("%s: %v", details.Message, details.Cause)
	}
	r.ErrorType = errorType(details.Kind)
	r.ErrorCode = details.Code
	r.ErrorTime = timePtr(now)
	r.CompletedAt = timePtr(now)
	return nil
}

// RequestClarification closes the attempt as NEEDS_CLARIFICATION.
func (r *Record) RequestClarification(now time.Time, message string) error {
	if err := r.transition(StatusNeedsClarification, now); err != nil {
		return err
	}
	r.ClarificationMessage = strings.TrimSpace(message)
	r.CompletedAt = timePtr(now)
	return nil
}

// CloseStale ends a timed-out PROCESSING attempt as ERROR and counts it as a
// retry.
func (r *Record) CloseStale(now time.Time, timeout time.Duration) error {
	if r.Status != StatusProcessing {
		return r.transitionError(StatusError)
	}
	r.Status = StatusError
	r.UpdatedAt = now
	r.RetryCount++
	r.ErrorMessage = fmt.Sprintf("processing exceeded %s without finishing", timeout)
	r.ErrorType = ErrorTypeTimeout
	r.ErrorCode = CodeProcessingTimeout
	r.ErrorTime = timePtr(now)
	return nil
}

// Pause parks an item whose stale attempts ran out of retries.
func (r *Record) Pause(now time.Time) error {
	if r.Status != StatusError || r.ErrorCode != CodeProcessingTimeout {
		return r.transitionError(StatusPaused)
	}
	return r.transition(StatusPaused, now)
}

// Resume moves a PAUSED item back to PENDING and resets the stale counter.
func (r *Record) Resume(now time.Time) error {
	if r.Status != StatusPaused {
		return r.transitionError(StatusPending)
	}
	if err := r.transition(StatusPending, now); err != nil {
		return err
	}
	r.RetryCount = 0
	return nil
}

func (r *Record) transition(to Status, now time.Time) error {
	if !CanTransition(r.Status, to) {
		return r.transitionError(to)
	}
	r.Status = to
	r.UpdatedAt = now
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	return nil
}

func (r *Record) transitionError(to Status) error {
	from := string(r.Status)
	if from == "" {
		from = "new"
	}
	return services.WrapCode(services.ErrValidation, "state", "transition", CodeInvalidTransition,
		fmt.Sprintf("issue #%d cannot move from %s to %s", r.IssueNumber, from, to), nil)
}

func (r *Record) setWorkflows(names []string) {
	if len(names) == 0 {
		return
	}
	r.WorkflowNames = append([]string(nil), names...)
	r.WorkflowName = strings.Join(names, ", ")
}

func (r *Record) clearError() {
	r.ErrorMessage = ""
	r.ErrorType = ""
	r.ErrorCode = ""
	r.ErrorTime = nil
}

func errorType(kind services.ErrorKind) string {
	switch kind {
	case services.ErrorKindConfiguration:
		return "ConfigurationError"
	case services.ErrorKindPlanning:
		return "PlanningError"
	case services.ErrorKindExecution:
		return "ExecutionError"
	case services.ErrorKindTimeout:
		return ErrorTypeTimeout
	case services.ErrorKindPersistence:
		return "PersistenceError"
	case services.ErrorKindValidation:
		return "ValidationError"
	case services.ErrorKindNotFound:
		return "NotFoundError"
	case services.ErrorKindTransient:
		return "TransientError"
	default:
		return "UnexpectedError"
	}
}

func timePtr(t time.Time) *time.Time {
	return &t
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
