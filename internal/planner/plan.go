package planner

import (
	"strings"

	"speculum/internal/candidates"
)

// RunMode tells the executor whether a stage's members were proven
// conflict-free.
type RunMode string

const (
	Sequential RunMode = "sequential"
	Parallel   RunMode = "parallel"
)

// RunSpec is one scheduled workflow run.
type RunSpec struct {
	Candidate candidates.Candidate
	// Slug is the deterministic sandbox name "sNN-<workflow-slug>".
	Slug string
	// Branch is "<prefix>/<workflow-slug>" when a branch prefix is configured.
	Branch string
}

// Workflow returns the workflow name.
func (r RunSpec) Workflow() string { return r.Candidate.Name() }

// Stage is one step of an execution plan.
type Stage struct {
	Index int
	Mode  RunMode
	Runs  []RunSpec
	// BlockingConflicts lists the conflict keys that forced a ready candidate
	// out of this stage.
	BlockingConflicts []string
}

// Workflows returns member names in run order.
func (s Stage) Workflows() []string {
	out := make([]string, 0, len(s.Runs))
	for _, r := range s.Runs {
		out = append(out, r.Workflow())
	}
	return out
}

// ExecutionPlan is the planner output.
type ExecutionPlan struct {
	ID                    string
	Stages                []Stage
	AllowPartialSuccess   bool
	OverallTimeoutSeconds *int
	SelectionReason       candidates.SelectionReason
	SelectionMessage      string
}

// StageCount returns the number of stages.
func (p *ExecutionPlan) StageCount() int {
	if p == nil {
		return 0
	}
	return len(p.Stages)
}

// WorkflowCount returns the number of scheduled runs.
func (p *ExecutionPlan) WorkflowCount() int {
	if p == nil {
		return 0
	}
	n := 0
	for _, s := range p.Stages {
		n += len(s.Runs)
	}
	return n
}

// Workflows returns every scheduled workflow name in execution order.
func (p *ExecutionPlan) Workflows() []string {
	if p == nil {
		return nil
	}
	out := make([]string, 0, p.WorkflowCount())
	for _, s := range p.Stages {
		out = append(out, s.Workflows()...)
	}
	return out
}

// Runs returns every RunSpec in execution order.
func (p *ExecutionPlan) Runs() []RunSpec {
	if p == nil {
		return nil
	}
	out := make([]RunSpec, 0, p.WorkflowCount())
	for _, s := range p.Stages {
		out = append(out, s.Runs...)
	}
	return out
}

// StageIndex returns the stage holding the named workflow, ignoring case.
func (p *ExecutionPlan) StageIndex(workflow string) (int, bool) {
	if p == nil {
		return 0, false
	}
	for _, s := range p.Stages {
		for _, r := range s.Runs {
			if strings.EqualFold(r.Workflow(), workflow) {
				return s.Index, true
			}
		}
	}
	return 0, false
}

// BlockingConflicts returns the union of every stage's blocking conflicts.
func (p *ExecutionPlan) BlockingConflicts() []string {
	if p == nil {
		return nil
	}
	set := map[string]struct{}{}
	for _, s := range p.Stages {
		for _, k := range s.BlockingConflicts {
			set[k] = struct{}{}
		}
	}
	return sortedKeys(set)
}

// StageSummary is the persisted view of a stage.
type StageSummary struct {
	Index             int      `json:"index"`
	Mode              RunMode  `json:"mode"`
	Workflows         []string `json:"workflows"`
	BlockingConflicts []string `json:"blocking_conflicts,omitempty"`
	Status            string   `json:"status,omitempty"`

	// Skipped names runs that never started because the plan aborted.
	Skipped []string `json:"skipped,omitempty"`
}

// Summary is the audit-friendly digest of a plan. It is what gets persisted;
// plans themselves never are.
type Summary struct {
	PlanID                string         `json:"plan_id"`
	StageCount            int            `json:"stage_count"`
	WorkflowCount         int            `json:"workflow_count"`
	SelectionReason       string         `json:"selection_reason"`
	SelectionMessage      string         `json:"selection_message,omitempty"`
	AllowPartialSuccess   bool           `json:"allow_partial_success"`
	OverallTimeoutSeconds *int           `json:"overall_timeout_seconds,omitempty"`
	Stages                []StageSummary `json:"stages"`
	Preview               bool           `json:"preview,omitempty"`
	Outcome               string         `json:"outcome,omitempty"`
	Failures              []string       `json:"failures,omitempty"`
}

// Summary builds the persisted digest.
func (p *ExecutionPlan) Summary() Summary {
	if p == nil {
		return Summary{}
	}
	s := Summary{
		PlanID:                p.ID,
		StageCount:            p.StageCount(),
		WorkflowCount:         p.WorkflowCount(),
		SelectionReason:       string(p.SelectionReason),
		SelectionMessage:      p.SelectionMessage,
		AllowPartialSuccess:   p.AllowPartialSuccess,
		OverallTimeoutSeconds: p.OverallTimeoutSeconds,
		Stages:                make([]StageSummary, 0, len(p.Stages)),
	}
	for _, st := range p.Stages {
		s.Stages = append(s.Stages, StageSummary{
			Index:             st.Index,
			Mode:              st.Mode,
			Workflows:         st.Workflows(),
			BlockingConflicts: append([]string(nil), st.BlockingConflicts...),
		})
	}
	return s
}

// Workflows returns the workflow names across all stages in order.
func (s Summary) Workflows() []string {
	var out []string
	for _, st := range s.Stages {
		out = append(out, st.Workflows...)
	}
	return out
}
