package processing

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"speculum/internal/candidates"
	"speculum/internal/config"
	"speculum/internal/generator"
	"speculum/internal/logging"
	"speculum/internal/naming"
	"speculum/internal/planner"
	"speculum/internal/retry"
	"speculum/internal/services"
	"speculum/internal/state"
	"speculum/internal/telemetry"
	"speculum/internal/tracker"
)

// Error codes recorded on ERROR transitions raised here.
const (
	CodePanic         = "panic"
	CodeIssueFetch    = "issue_fetch"
	CodeWorkflowsFail = "workflows_failed"
	CodeDefinitions   = "definitions_unavailable"
)

// DefinitionSource is the definition snapshot the processor plans against.
type DefinitionSource interface {
	candidates.Source
	RefreshIfStale(ctx context.Context) error
}

// PlanRecorder stores plan summaries for auditing.
type PlanRecorder interface {
	RecordPlan(ctx context.Context, issue int, summary planner.Summary) error
}

// Options wires a Processor.
type Options struct {
	Config      *config.Config
	Store       *state.Store
	Definitions DefinitionSource
	Tracker     tracker.Tracker
	Generator   generator.Generator
	// Recovery is tried once after the primary generator fails. Nil means
	// generator.BasicRecovery.
	Recovery  generator.Generator
	Writer    *generator.Writer
	Telemetry *telemetry.Publisher
	Audit     PlanRecorder
	Logger    *slog.Logger
	Now       func() time.Time
	NewPlanID func() string
}

// Processor runs issues end to end.
type Processor struct {
	cfg       *config.Config
	store     *state.Store
	defs      DefinitionSource
	tracker   tracker.Tracker
	primary   generator.Generator
	recovery  generator.Generator
	writer    *generator.Writer
	telemetry *telemetry.Publisher
	audit     PlanRecorder
	logger    *slog.Logger
	now       func() time.Time
	resolver  *candidates.Resolver
	planner   *planner.Planner
	naming    *naming.Resolver
	retry     retry.Policy

	mu       sync.Mutex
	inflight map[int]struct{}
}

// New validates opts and builds a processor.
func New(opts Options) (*Processor, error) {
	switch {
	case opts.Config == nil:
		return nil, services.Wrap(services.ErrConfiguration, "processing", "init", "config is required", nil)
	case opts.Store == nil:
		return nil, services.Wrap(services.ErrConfiguration, "processing", "init", "state store is required", nil)
	case opts.Definitions == nil:
		return nil, services.Wrap(services.ErrConfiguration, "processing", "init", "definition source is required", nil)
	case opts.Tracker == nil:
		return nil, services.Wrap(services.ErrConfiguration, "processing", "init", "tracker is required", nil)
	case opts.Generator == nil:
		return nil, services.Wrap(services.ErrConfiguration, "processing", "init", "generator is required", nil)
	}
	cfg := opts.Config
	logger := logging.NewComponentLogger(opts.Logger, "processing")
	p := &Processor{
		cfg:       cfg,
		store:     opts.Store,
		defs:      opts.Definitions,
		tracker:   opts.Tracker,
		primary:   opts.Generator,
		recovery:  opts.Recovery,
		writer:    opts.Writer,
		telemetry: opts.Telemetry,
		audit:     opts.Audit,
		logger:    logger,
		now:       opts.Now,
		retry:     retry.FromConfig(cfg, logger),
		inflight:  map[int]struct{}{},
	}
	if p.recovery == nil {
		p.recovery = generator.BasicRecovery{}
	}
	if p.writer == nil {
		p.writer = generator.NewWriter(cfg.Paths.OutputDir)
	}
	if p.now == nil {
		p.now = time.Now
	}
	p.resolver = candidates.NewResolver(opts.Definitions, candidates.Options{
		RequiredLabel: cfg.Workflows.RequiredLabel,
		Logger:        opts.Logger,
	})
	p.planner = planner.New(planner.Options{
		EnableParallel:        cfg.Processing.EnableParallel,
		MaxParallel:           cfg.Processing.MaxParallel,
		AllowPartialSuccess:   cfg.Processing.AllowPartialSuccess,
		OverallTimeoutSeconds: cfg.OverallTimeout(),
		BranchPrefix:          cfg.Processing.BranchPrefix,
		Logger:                opts.Logger,
		NewID:                 opts.NewPlanID,
	})
	p.naming = naming.NewResolver(naming.Options{
		FolderTemplate: cfg.Naming.FolderTemplate,
		FilePattern:    cfg.Naming.FilePattern,
		Logger:         opts.Logger,
	})
	return p, nil
}

// Resolver exposes the candidate resolver for read-only callers such as the
// plan command.
func (p *Processor) Resolver() *candidates.Resolver { return p.resolver }

// Process runs one attempt for issue. It never panics and always persists the
// final state it reports, except for preview runs which never change an
// existing status.
func (p *Processor) Process(ctx context.Context, number int) (result Result) {
	ctx = services.WithIssueNumber(ctx, number)
	logger := logging.WithContext(ctx, p.logger)

	if !p.claim(number) {
		rec, _ := p.store.Get(number)
		return InProgress{StartedAt: startedAt(rec)}
	}
	defer p.release(number)

	defer func() {
		if r := recover(); r != nil {
			err := services.WrapCode(services.ErrExecution, "processing", "process", CodePanic, fmt.Sprintf("panic: %v", r), nil)
			logging.ErrorWithContext(logger, "processing panicked", "processing_panic",
				logging.String("panic", fmt.Sprint(r)),
				logging.String("stack", string(debug.Stack())),
			)
			result = p.fail(ctx, number, nil, nil, nil, nil, err)
		}
	}()

	if early, proceed := p.checkExisting(ctx, number); !proceed {
		return early
	}

	issue, err := p.tracker.GetIssue(ctx, number)
	if err != nil {
		err = services.WrapCode(services.MarkerOf(err), "processing", "fetch issue", CodeIssueFetch, fmt.Sprintf("issue #%d", number), err)
		if p.cfg.Processing.PreviewOnly {
			return Failed{Err: err}
		}
		return p.fail(ctx, number, nil, nil, nil, nil, err)
	}

	if err := p.defs.RefreshIfStale(ctx); err != nil {
		logging.WarnWithContext(logger, "definition refresh failed; using previous snapshot", "definitions_refresh_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "new or edited workflows may be ignored"),
		)
	}

	plan, clarification := p.selectCandidates(issue)
	if clarification != "" {
		return p.clarify(ctx, number, clarification)
	}

	execPlan, err := p.planner.Build(plan)
	if err != nil {
		return p.planFailure(ctx, number, plan, execPlan, err)
	}
	manifest, err := p.naming.Resolve(execPlan, naming.Item{Number: number, Title: issue.Title})
	if err != nil {
		return p.planFailure(ctx, number, plan, execPlan, err)
	}
	ctx = services.WithPlanID(ctx, execPlan.ID)
	p.publishPlan(ctx, number, execPlan)

	if p.cfg.Processing.PreviewOnly {
		return p.preview(ctx, number, execPlan, manifest)
	}
	return p.execute(ctx, issue, execPlan, manifest)
}

// Plan computes the execution plan and output layout for an issue without
// touching state, telemetry, or the tracker beyond reading the issue. It
// returns Previewed, NeedsClarification, or Failed.
func (p *Processor) Plan(ctx context.Context, number int) Result {
	ctx = services.WithIssueNumber(ctx, number)
	issue, err := p.tracker.GetIssue(ctx, number)
	if err != nil {
		return Failed{Err: services.WrapCode(services.MarkerOf(err), "processing", "fetch issue", CodeIssueFetch, fmt.Sprintf("issue #%d", number), err)}
	}
	if err := p.defs.RefreshIfStale(ctx); err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, p.logger), "definition refresh failed; using previous snapshot", "definitions_refresh_failed",
			logging.Error(err),
		)
	}
	plan, clarification := p.selectCandidates(issue)
	if clarification != "" {
		return NeedsClarification{Message: clarification}
	}
	execPlan, err := p.planner.Build(plan)
	if err != nil {
		return Failed{Err: err, Workflows: candidates.Names(plan.Candidates)}
	}
	manifest, err := p.naming.Resolve(execPlan, naming.Item{Number: number, Title: issue.Title})
	if err != nil {
		return Failed{Err: err, Workflows: execPlan.Workflows()}
	}
	summary := execPlan.Summary()
	summary.Preview = true
	summary.Outcome = telemetry.OutcomePreview
	return Previewed{Summary: summary, Manifest: manifest}
}

// checkExisting applies the re-entry, stale, and pause rules. It returns
// proceed=false with the result to hand back when no new attempt may start.
func (p *Processor) checkExisting(ctx context.Context, number int) (Result, bool) {
	rec, ok := p.store.Get(number)
	if !ok {
		return nil, true
	}
	now := p.now()
	switch rec.Status {
	case state.StatusPaused:
		return Paused{RetryCount: rec.RetryCount, Reason: pausedReason(rec)}, false
	case state.StatusProcessing:
		timeout := p.cfg.ProcessingTimeout()
		if !rec.IsStale(now, timeout) {
			return InProgress{StartedAt: startedAt(rec)}, false
		}
		closed, paused, err := p.closeStale(ctx, number, timeout)
		if err != nil {
			return Failed{Err: err}, false
		}
		if paused {
			return Paused{RetryCount: closed.RetryCount, Reason: pausedReason(closed)}, false
		}
	}
	return nil, true
}

// closeStale ends a timed-out attempt and pauses the item when the retry
// budget is spent.
func (p *Processor) closeStale(ctx context.Context, number int, timeout time.Duration) (state.Record, bool, error) {
	now := p.now()
	maxRetries := p.cfg.Processing.MaxStaleRetries
	paused := false
	rec, err := p.store.Update(ctx, number, func(r *state.Record) error {
		if err := r.CloseStale(now, timeout); err != nil {
			return err
		}
		if r.RetryCount >= maxRetries {
			paused = true
			return r.Pause(now)
		}
		return nil
	})
	if err != nil {
		return state.Record{}, false, err
	}
	logger := logging.WithContext(services.WithIssueNumber(ctx, number), p.logger)
	logging.WarnWithContext(logger, "stale processing attempt closed", "processing_stale",
		logging.Int("retry_count", rec.RetryCount),
		logging.Int("max_stale_retries", maxRetries),
		logging.Bool("paused", paused),
		logging.Duration("timeout", timeout),
		logging.Alert(staleAlert(paused)),
		logging.String(logging.FieldErrorHint, staleHint(paused)),
		logging.String(logging.FieldImpact, "previous attempt discarded"),
	)
	return rec, paused, nil
}

func staleAlert(paused bool) string {
	if paused {
		return "stale_retries_exhausted"
	}
	return "stale_attempt"
}

func staleHint(paused bool) string {
	if paused {
		return "investigate the stuck workflow, then run speculum resume"
	}
	return "a new attempt starts automatically"
}

func (p *Processor) selectCandidates(issue tracker.Issue) (candidates.Plan, string) {
	if p.cfg.Processing.MultiWorkflow {
		plan := p.resolver.BuildPlan(issue.Labels)
		if plan.Empty() {
			return plan, plan.Message
		}
		return plan, ""
	}
	def, msg := p.resolver.BestMatch(issue.Labels)
	if def == nil {
		return candidates.Plan{Reason: candidates.NoMatch, Message: msg}, msg
	}
	return candidates.Plan{
		Candidates: []candidates.Candidate{candidates.FromDefinition(def)},
		Reason:     candidates.SingleMatch,
		Message:    fmt.Sprintf("Selected workflow %q.", def.Name),
	}, ""
}

func (p *Processor) clarify(ctx context.Context, number int, message string) Result {
	result := NeedsClarification{Message: message}
	if p.cfg.Processing.PreviewOnly {
		return result
	}
	now := p.now()
	_, err := p.store.Update(ctx, number, func(r *state.Record) error {
		if err := r.Begin(now); err != nil {
			return err
		}
		return r.RequestClarification(now, message)
	})
	if err != nil {
		return Failed{Err: err}
	}
	logging.WithContext(ctx, p.logger).Info("issue needs clarification",
		logging.String(logging.FieldEventType, "needs_clarification"),
		logging.String("message", message),
	)
	p.clarificationEffects(ctx, number, message)
	return result
}

func (p *Processor) planFailure(ctx context.Context, number int, plan candidates.Plan, execPlan *planner.ExecutionPlan, err error) Result {
	var summary *planner.Summary
	if execPlan != nil {
		s := execPlan.Summary()
		s.Outcome = telemetry.OutcomeFailed
		summary = &s
	}
	if p.cfg.Processing.PreviewOnly {
		return Failed{Err: err, Workflows: candidates.Names(plan.Candidates), Summary: summary}
	}
	return p.fail(ctx, number, candidates.Names(plan.Candidates), nil, nil, summary, err)
}

func (p *Processor) preview(ctx context.Context, number int, execPlan *planner.ExecutionPlan, manifest *naming.Manifest) Result {
	summary := execPlan.Summary()
	summary.Preview = true
	summary.Outcome = telemetry.OutcomePreview
	for i := range summary.Stages {
		summary.Stages[i].Status = StageSkipped
	}
	p.persistPreview(ctx, number, summary)
	p.recordPlan(ctx, number, summary)
	p.telemetry.Publish(ctx, telemetry.Event{
		Type:          telemetry.EventExecutionSummary,
		Issue:         number,
		PlanID:        summary.PlanID,
		StageCount:    summary.StageCount,
		WorkflowCount: summary.WorkflowCount,
		Workflows:     summary.Workflows(),
		Outcome:       telemetry.OutcomePreview,
	})
	logging.WithContext(ctx, p.logger).Info("preview only; no workflows executed",
		logging.String(logging.FieldEventType, "plan_preview"),
		logging.Int("stages", summary.StageCount),
		logging.Strings("workflows", summary.Workflows()),
		logging.Bool("conflicts", manifest.HasConflicts()),
	)
	return Previewed{Summary: summary, Manifest: manifest}
}

// persistPreview stores the previewed plan on new or PENDING records only.
// Items that already finished, failed, or paused keep their record as is.
func (p *Processor) persistPreview(ctx context.Context, number int, summary planner.Summary) {
	logger := logging.WithContext(ctx, p.logger)
	if rec, ok := p.store.Get(number); ok && rec.Status != state.StatusPending {
		logger.Debug("preview not persisted over existing record",
			logging.String(logging.FieldEventType, "preview_persist_skipped"),
			logging.String("status", string(rec.Status)),
		)
		return
	}
	now := p.now()
	_, err := p.store.Update(ctx, number, func(r *state.Record) error {
		if r.Status != state.StatusPending {
			return nil
		}
		r.UpdatedAt = now
		r.WorkflowNames = summary.Workflows()
		r.WorkflowName = strings.Join(r.WorkflowNames, ", ")
		r.MultiWorkflow = &summary
		return nil
	})
	if err != nil {
		logging.WarnWithContext(logger, "failed to persist preview summary", "preview_persist_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "preview not visible in status output"),
		)
	}
}

// fail persists an ERROR outcome and runs the error side effects.
func (p *Processor) fail(ctx context.Context, number int, workflows, files []string, failures []WorkflowFailure, summary *planner.Summary, err error) Result {
	ctx = context.WithoutCancel(ctx)
	now := p.now()
	_, saveErr := p.store.Update(ctx, number, func(r *state.Record) error {
		if r.Status != state.StatusProcessing {
			if err := r.Begin(now); err != nil {
				return err
			}
		}
		if err := r.Fail(now, workflows, err); err != nil {
			return err
		}
		r.CreatedFiles = append([]string{}, files...)
		if summary != nil {
			r.MultiWorkflow = summary
		}
		return nil
	})
	logger := logging.WithContext(ctx, p.logger)
	attrs := append([]logging.Attr{
		logging.String(logging.FieldEventType, "processing_failed"),
		logging.Strings("workflows", workflows),
	}, logging.ErrorAttrs(err)...)
	logging.ErrorWithContext(logger, "processing failed", "processing_failed", attrs...)
	if saveErr != nil {
		logging.ErrorWithContext(logger, "failed to persist error state", "state_persist_failed", logging.ErrorAttrs(saveErr)...)
	}
	p.errorEffects(ctx, number, err)
	return Failed{Err: err, Workflows: workflows, Files: files, Failures: failures, Summary: summary}
}

func (p *Processor) publishPlan(ctx context.Context, number int, execPlan *planner.ExecutionPlan) {
	p.telemetry.Publish(ctx, telemetry.Event{
		Type:              telemetry.EventPlanCreated,
		Issue:             number,
		PlanID:            execPlan.ID,
		SelectionReason:   string(execPlan.SelectionReason),
		StageCount:        execPlan.StageCount(),
		WorkflowCount:     execPlan.WorkflowCount(),
		Workflows:         execPlan.Workflows(),
		BlockingConflicts: execPlan.BlockingConflicts(),
	})
}

func (p *Processor) recordPlan(ctx context.Context, number int, summary planner.Summary) {
	if p.audit == nil {
		return
	}
	if err := p.audit.RecordPlan(context.WithoutCancel(ctx), number, summary); err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, p.logger), "audit log write failed", "audit_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "plan missing from audit history"),
		)
	}
}

func (p *Processor) claim(number int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, busy := p.inflight[number]; busy {
		return false
	}
	p.inflight[number] = struct{}{}
	return true
}

func (p *Processor) release(number int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.inflight, number)
}

func (p *Processor) isInflight(number int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.inflight[number]
	return ok
}

func startedAt(rec state.Record) time.Time {
	if rec.StartedAt != nil {
		return *rec.StartedAt
	}
	return rec.UpdatedAt
}

func pausedReason(rec state.Record) string {
	return fmt.Sprintf("paused after %d stale attempts; run resume to retry", rec.RetryCount)
}
