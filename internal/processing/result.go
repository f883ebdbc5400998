package processing

import (
	"time"

	"speculum/internal/naming"
	"speculum/internal/planner"
	"speculum/internal/services"
	"speculum/internal/state"
)

// Result is the closed set of outcomes Process returns.
type Result interface {
	Status() state.Status
	isResult()
}

// Completed means at least the required deliverables were produced. Outcome
// is "completed" or "partial".
type Completed struct {
	Outcome   string
	Workflows []string
	Files     []string
	Failures  []WorkflowFailure
	Summary   planner.Summary
	HandOff   HandOff
}

// NeedsClarification means no single workflow (or no workflow at all) could
// be chosen for the issue.
type NeedsClarification struct {
	Message string
}

// Failed means the attempt ended in ERROR.
type Failed struct {
	Err       error
	Workflows []string
	Files     []string
	Failures  []WorkflowFailure
	Summary   *planner.Summary
}

// InProgress means another attempt owns the issue.
type InProgress struct {
	StartedAt time.Time
}

// Paused means stale attempts exhausted the retry budget.
type Paused struct {
	RetryCount int
	Reason     string
}

// Previewed means the plan was computed but nothing ran.
type Previewed struct {
	Summary  planner.Summary
	Manifest *naming.Manifest
}

func (Completed) Status() state.Status          { return state.StatusCompleted }
func (NeedsClarification) Status() state.Status { return state.StatusNeedsClarification }
func (Failed) Status() state.Status             { return state.StatusError }
func (InProgress) Status() state.Status         { return state.StatusProcessing }
func (Paused) Status() state.Status             { return state.StatusPaused }
func (Previewed) Status() state.Status          { return state.StatusPending }

func (Completed) isResult()          {}
func (NeedsClarification) isResult() {}
func (Failed) isResult()             {}
func (InProgress) isResult()         {}
func (Paused) isResult()             {}
func (Previewed) isResult()          {}

// WorkflowFailure records one workflow that did not finish.
type WorkflowFailure struct {
	Workflow string `json:"workflow"`
	Stage    int    `json:"stage"`
	Code     string `json:"code"`
	Message  string `json:"message"`

	// Files lists deliverables the workflow wrote before it failed. They are
	// not reported as created files.
	Files []string `json:"files,omitempty"`
	Err   error    `json:"-"`
}

// HandOff is the machine-readable payload posted with a completion comment.
type HandOff struct {
	Issue     int      `json:"issue"`
	PlanID    string   `json:"plan_id"`
	Outcome   string   `json:"outcome"`
	Workflows []string `json:"workflows"`
	Files     []string `json:"files"`
	Failures  []string `json:"failures,omitempty"`
	Reviewer  string   `json:"reviewer,omitempty"`
}

// ProcessingResult is the flat view of a Result handed to callers that do
// not switch on the variant.
type ProcessingResult struct {
	Status            state.Status      `json:"status"`
	WorkflowNames     []string          `json:"workflow_names,omitempty"`
	CreatedFiles      []string          `json:"created_files,omitempty"`
	ErrorMessage      string            `json:"error_message,omitempty"`
	ClarificationText string            `json:"clarification_text,omitempty"`
	HandOff           *HandOff          `json:"hand_off,omitempty"`
	Failures          []WorkflowFailure `json:"failures,omitempty"`
}

// Summarize flattens r.
func Summarize(r Result) ProcessingResult {
	out := ProcessingResult{}
	if r == nil {
		return out
	}
	out.Status = r.Status()
	switch v := r.(type) {
	case Completed:
		out.WorkflowNames = v.Workflows
		out.CreatedFiles = v.Files
		out.Failures = v.Failures
		handOff := v.HandOff
		out.HandOff = &handOff
	case NeedsClarification:
		out.ClarificationText = v.Message
	case Failed:
		out.WorkflowNames = v.Workflows
		out.CreatedFiles = v.Files
		out.Failures = v.Failures
		if v.Err != nil {
			out.ErrorMessage = services.Details(v.Err).Message
		}
	case InProgress:
		out.ErrorMessage = "issue is already being processed"
	case Paused:
		out.ErrorMessage = v.Reason
	case Previewed:
		out.WorkflowNames = v.Summary.Workflows()
		out.CreatedFiles = v.Manifest.Paths()
	}
	return out
}
