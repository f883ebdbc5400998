package processing

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"speculum/internal/definitions"
	"speculum/internal/generator"
	"speculum/internal/logging"
	"speculum/internal/naming"
	"speculum/internal/planner"
	"speculum/internal/services"
	"speculum/internal/state"
	"speculum/internal/telemetry"
	"speculum/internal/tracker"
)

// Stage statuses recorded on the persisted plan summary.
const (
	StageCompleted = "completed"
	StagePartial   = "partial"
	StageFailed    = "failed"
	StageSkipped   = "skipped"
)

type runOutcome struct {
	files   []string
	failure *WorkflowFailure
}

// execute opens the attempt, walks the stages, and closes the attempt.
func (p *Processor) execute(ctx context.Context, issue tracker.Issue, execPlan *planner.ExecutionPlan, manifest *naming.Manifest) Result {
	number := issue.Number
	started := p.now()
	summary := execPlan.Summary()
	workflows := execPlan.Workflows()

	_, err := p.store.Update(ctx, number, func(r *state.Record) error {
		if err := r.Begin(started); err != nil {
			return err
		}
		r.WorkflowNames = workflows
		r.WorkflowName = strings.Join(workflows, ", ")
		r.MultiWorkflow = &summary
		return nil
	})
	if err != nil {
		return p.fail(ctx, number, workflows, nil, nil, &summary, err)
	}
	p.recordPlan(ctx, number, summary)

	logger := logging.WithContext(ctx, p.logger)
	logger.Info("execution started",
		logging.String(logging.FieldEventType, "execution_start"),
		logging.Int("stages", execPlan.StageCount()),
		logging.Strings("workflows", workflows),
	)

	var (
		files     []string
		failures  []WorkflowFailure
		succeeded int
		aborted   error
	)
	for i, stage := range execPlan.Stages {
		if aborted != nil {
			summary.Stages[i].Status = StageSkipped
			continue
		}
		if err := ctx.Err(); err != nil {
			aborted = services.Wrap(services.MarkerOf(err), "processing", "execute", fmt.Sprintf("stopped before stage %d", stage.Index), err)
			summary.Stages[i].Status = StageSkipped
			continue
		}
		stageFailures := 0
		for j, run := range stage.Runs {
			outcome := p.runWorkflow(ctx, issue, execPlan.ID, stage, run, manifest)
			if outcome.failure == nil {
				succeeded++
				files = append(files, outcome.files...)
				continue
			}
			outcome.failure.Files = outcome.files
			stageFailures++
			failures = append(failures, *outcome.failure)
			if !execPlan.AllowPartialSuccess {
				aborted = outcome.failure.Err
				summary.Stages[i].Skipped = runNames(stage.Runs[j+1:])
				break
			}
		}
		switch {
		case stageFailures == 0:
			summary.Stages[i].Status = StageCompleted
		case stageFailures == len(stage.Runs), aborted != nil:
			summary.Stages[i].Status = StageFailed
		default:
			summary.Stages[i].Status = StagePartial
		}
	}

	summary.Failures = failureNames(failures)
	outcome := telemetry.OutcomeCompleted
	switch {
	case aborted != nil:
		outcome = telemetry.OutcomeFailed
	case len(failures) > 0 && succeeded > 0:
		outcome = telemetry.OutcomePartial
	case len(failures) > 0:
		outcome = telemetry.OutcomeFailed
		aborted = services.WrapCode(services.ErrExecution, "processing", "execute", CodeWorkflowsFail,
			fmt.Sprintf("every workflow failed: %s", strings.Join(summary.Failures, ", ")), failures[0].Err)
	}
	summary.Outcome = outcome
	p.publishSummary(ctx, number, summary, p.now().Sub(started))

	if aborted != nil {
		return p.fail(ctx, number, workflows, files, failures, &summary, aborted)
	}
	return p.complete(ctx, issue, workflows, files, failures, summary)
}

func (p *Processor) complete(ctx context.Context, issue tracker.Issue, workflows, files []string, failures []WorkflowFailure, summary planner.Summary) Result {
	ctx = context.WithoutCancel(ctx)
	now := p.now()
	_, err := p.store.Update(ctx, issue.Number, func(r *state.Record) error {
		if err := r.Complete(now, workflows, files); err != nil {
			return err
		}
		r.MultiWorkflow = &summary
		return nil
	})
	if err != nil {
		return p.fail(ctx, issue.Number, workflows, files, failures, &summary, err)
	}
	p.recordPlan(ctx, issue.Number, summary)

	handOff := HandOff{
		Issue:     issue.Number,
		PlanID:    summary.PlanID,
		Outcome:   summary.Outcome,
		Workflows: workflows,
		Files:     files,
		Failures:  summary.Failures,
		Reviewer:  p.cfg.Tracker.ReviewerLogin,
	}
	logging.WithContext(ctx, p.logger).Info("processing completed",
		logging.String(logging.FieldEventType, "processing_complete"),
		logging.String("outcome", summary.Outcome),
		logging.Int("files", len(files)),
		logging.Strings("failures", summary.Failures),
	)
	p.completionEffects(ctx, issue.Number, handOff)
	return Completed{
		Outcome:   summary.Outcome,
		Workflows: workflows,
		Files:     files,
		Failures:  failures,
		Summary:   summary,
		HandOff:   handOff,
	}
}

// runWorkflow generates every deliverable of one run. Panics inside
// collaborators become a workflow failure.
func (p *Processor) runWorkflow(ctx context.Context, issue tracker.Issue, planID string, stage planner.Stage, run planner.RunSpec, manifest *naming.Manifest) (out runOutcome) {
	name := run.Workflow()
	ctx = services.WithStage(ctx, fmt.Sprintf("stage-%d", stage.Index))
	ctx = services.WithWorkflow(ctx, name)
	logger := logging.WithContext(ctx, p.logger)
	def := run.Candidate.Definition()

	defer func() {
		if r := recover(); r != nil {
			err := services.WrapCode(services.ErrExecution, "processing", "workflow", CodePanic, fmt.Sprintf("%s panicked: %v", name, r), nil)
			logging.ErrorWithContext(logger, "workflow panicked", "workflow_panic",
				logging.String("panic", fmt.Sprint(r)),
				logging.String("stack", string(debug.Stack())),
			)
			out.failure = newFailure(name, stage.Index, err)
		}
	}()

	logger.Info("workflow started",
		logging.String(logging.FieldEventType, "workflow_start"),
		logging.String("mode", string(stage.Mode)),
		logging.String("slug", run.Slug),
	)
	item := generator.ItemContext{Issue: issue, Workflow: def, PlanID: planID, Stage: stage.Index, Now: p.now()}
	for _, spec := range deliverablesOf(def) {
		entry, ok := manifest.Entry(name, spec.Name)
		if !ok {
			out.failure = newFailure(name, stage.Index, services.Wrap(services.ErrPlanning, "processing", "workflow",
				fmt.Sprintf("no output path resolved for %s/%s", name, spec.Name), nil))
			return out
		}
		content, err := p.generate(ctx, spec, item)
		if err == nil {
			var path string
			path, err = p.writer.Write(entry.Path, content)
			if err == nil {
				out.files = append(out.files, entry.Path)
				logger.Debug("deliverable written", logging.String("deliverable", spec.Name), logging.String("path", path))
				continue
			}
		}
		if !spec.Required && len(def.Deliverables) > 1 {
			logging.WarnWithContext(logger, "optional deliverable skipped", "deliverable_skipped",
				logging.String("deliverable", spec.Name),
				logging.Error(err),
				logging.String(logging.FieldImpact, "deliverable missing from output"),
			)
			continue
		}
		out.failure = newFailure(name, stage.Index, err)
		return out
	}
	if out.failure == nil && len(out.files) == 0 {
		out.failure = newFailure(name, stage.Index, services.Wrap(services.ErrExecution, "processing", "workflow",
			fmt.Sprintf("%s produced no deliverables", name), nil))
	}
	if out.failure == nil {
		logger.Info("workflow completed",
			logging.String(logging.FieldEventType, "workflow_complete"),
			logging.Int("files", len(out.files)),
		)
	}
	return out
}

// generate tries the primary generator under the retry policy, then the
// recovery generator once.
func (p *Processor) generate(ctx context.Context, spec definitions.DeliverableSpec, item generator.ItemContext) (string, error) {
	var content string
	primaryErr := p.retry.Do(ctx, "generate "+spec.Name, func(ctx context.Context) error {
		var err error
		content, err = p.primary.Generate(ctx, spec, item)
		return err
	})
	if primaryErr == nil {
		return content, nil
	}
	logger := logging.WithContext(ctx, p.logger)
	logging.WarnWithContext(logger, "primary generator failed; trying recovery", "generation_recovery",
		logging.String("deliverable", spec.Name),
		logging.Error(primaryErr),
		logging.String(logging.FieldImpact, "deliverable will use the recovery layout"),
	)
	recovered, err := p.recovery.Generate(ctx, spec, item)
	if err != nil {
		return "", services.Wrap(services.ErrExecution, "processing", "generate",
			fmt.Sprintf("%s failed after recovery attempt (primary: %v)", spec.Name, primaryErr), err)
	}
	return recovered, nil
}

func (p *Processor) publishSummary(ctx context.Context, number int, summary planner.Summary, elapsed time.Duration) {
	var conflicts []string
	for _, st := range summary.Stages {
		conflicts = append(conflicts, st.BlockingConflicts...)
	}
	p.telemetry.Publish(ctx, telemetry.Event{
		Type:              telemetry.EventExecutionSummary,
		Issue:             number,
		PlanID:            summary.PlanID,
		StageCount:        summary.StageCount,
		WorkflowCount:     summary.WorkflowCount,
		Workflows:         summary.Workflows(),
		BlockingConflicts: conflicts,
		Outcome:           summary.Outcome,
		Failures:          summary.Failures,
		Duration:          elapsed,
	})
}

func newFailure(workflow string, stage int, err error) *WorkflowFailure {
	details := services.Details(err)
	return &WorkflowFailure{
		Workflow: workflow,
		Stage:    stage,
		Code:     details.Code,
		Message:  details.Message,
		Err:      err,
	}
}

func runNames(runs []planner.RunSpec) []string {
	if len(runs) == 0 {
		return nil
	}
	out := make([]string, 0, len(runs))
	for _, run := range runs {
		out = append(out, run.Workflow())
	}
	return out
}

func failureNames(failures []WorkflowFailure) []string {
	if len(failures) == 0 {
		return nil
	}
	out := make([]string, 0, len(failures))
	for _, f := range failures {
		out = append(out, f.Workflow)
	}
	return out
}

func deliverablesOf(def *definitions.Definition) []definitions.DeliverableSpec {
	if def == nil {
		return nil
	}
	return def.Deliverables
}
