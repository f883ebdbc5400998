package planner

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/google/uuid"

	"speculum/internal/candidates"
	"speculum/internal/logging"
	"speculum/internal/services"
	"speculum/internal/textutil"
)

// Planning error codes.
const (
	CodeDuplicateCandidate     = "duplicate_candidate"
	CodeUnknownDependency      = "unknown_dependency"
	CodeSelfDependency         = "self_dependency"
	CodeUnresolvedDependencies = "unresolved_dependencies"
)

// Options configures stage construction and the values copied onto plans.
type Options struct {
	EnableParallel bool
	// MaxParallel caps stage size when parallel is enabled. Values <= 0 are
	// unlimited.
	MaxParallel           int
	AllowPartialSuccess   bool
	OverallTimeoutSeconds *int
	BranchPrefix          string
	Logger                *slog.Logger
	// NewID overrides plan id generation.
	NewID func() string
}

// Planner builds execution plans.
type Planner struct {
	opts   Options
	logger *slog.Logger
}

// New constructs a planner.
func New(opts Options) *Planner {
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	opts.BranchPrefix = strings.Trim(strings.TrimSpace(opts.BranchPrefix), "/")
	return &Planner{opts: opts, logger: logging.NewComponentLogger(opts.Logger, "planner")}
}

type node struct {
	cand       candidates.Candidate
	key        string
	indegree   int
	dependents []int
}

// Build schedules the plan's candidates. On a planning error the returned plan
// carries an id and the selection fields but zero stages.
func (p *Planner) Build(plan candidates.Plan) (*ExecutionPlan, error) {
	out := &ExecutionPlan{
		ID:                    p.opts.NewID(),
		AllowPartialSuccess:   p.opts.AllowPartialSuccess,
		OverallTimeoutSeconds: p.opts.OverallTimeoutSeconds,
		SelectionReason:       plan.Reason,
		SelectionMessage:      plan.Message,
	}

	nodes, err := buildGraph(plan.Candidates)
	if err != nil {
		p.logFailure(out, err)
		return out, err
	}

	stages, leftover := p.schedule(nodes)
	if len(leftover) > 0 {
		err := services.WrapCode(services.ErrPlanning, "planner", "build", CodeUnresolvedDependencies,
			fmt.Sprintf("dependency cycle or unresolved dependencies among: %s", strings.Join(leftover, ", ")), nil)
		p.logFailure(out, err)
		return out, err
	}
	out.Stages = stages

	p.logger.Info("execution plan built",
		logging.String(logging.FieldEventType, "plan_built"),
		logging.String(logging.FieldPlanID, out.ID),
		logging.Int("stages", out.StageCount()),
		logging.Int("workflows", out.WorkflowCount()),
		logging.Strings("blocking_conflicts", out.BlockingConflicts()),
	)
	return out, nil
}

func (p *Planner) logFailure(plan *ExecutionPlan, err error) {
	attrs := append([]logging.Attr{
		logging.String(logging.FieldPlanID, plan.ID),
	}, logging.ErrorAttrs(err)...)
	logging.ErrorWithContext(p.logger, "execution planning failed", "plan_failed", attrs...)
}

func buildGraph(list []candidates.Candidate) ([]*node, error) {
	nodes := make([]*node, 0, len(list))
	index := make(map[string]int, len(list))
	for _, c := range list {
		key := c.Key()
		if _, dup := index[key]; dup {
			return nil, planningError(CodeDuplicateCandidate, fmt.Sprintf("candidate %q appears more than once", c.Name()))
		}
		index[key] = len(nodes)
		nodes = append(nodes, &node{cand: c, key: key})
	}
	for i, n := range nodes {
		for _, dep := range n.cand.Dependencies() {
			depKey := strings.ToLower(dep)
			if depKey == n.key {
				return nil, planningError(CodeSelfDependency, fmt.Sprintf("workflow %q depends on itself", n.cand.Name()))
			}
			j, ok := index[depKey]
			if !ok {
				return nil, planningError(CodeUnknownDependency,
					fmt.Sprintf("workflow %q depends on %q which is not part of this plan", n.cand.Name(), dep))
			}
			nodes[j].dependents = append(nodes[j].dependents, i)
			n.indegree++
		}
	}
	return nodes, nil
}

func planningError(code, message string) error {
	return services.WrapCode(services.ErrPlanning, "planner", "build", code, message, nil)
}

// schedule returns the stages and the names of nodes that never became ready.
func (p *Planner) schedule(nodes []*node) ([]Stage, []string) {
	ready := make([]*node, 0, len(nodes))
	for _, n := range nodes {
		if n.indegree == 0 {
			ready = append(ready, n)
		}
	}
	sortNodes(ready)

	var stages []Stage
	slugs := map[string]int{}
	processed := 0
	for len(ready) > 0 {
		stageIndex := len(stages)
		var (
			members   []*node
			deferred  []*node
			committed = map[string]struct{}{}
			blocking  = map[string]struct{}{}
		)
		for _, n := range ready {
			if len(members) == 0 {
				members = append(members, n)
				addKeys(committed, n.cand.ConflictKeys())
				continue
			}
			if !p.opts.EnableParallel {
				deferred = append(deferred, n)
				continue
			}
			if p.opts.MaxParallel > 0 && len(members) >= p.opts.MaxParallel {
				deferred = append(deferred, n)
				continue
			}
			if overlap := intersect(committed, n.cand.ConflictKeys()); len(overlap) > 0 {
				addKeys(blocking, overlap)
				deferred = append(deferred, n)
				continue
			}
			members = append(members, n)
			addKeys(committed, n.cand.ConflictKeys())
		}

		stage := Stage{
			Index:             stageIndex,
			Mode:              textutil.Ternary(len(members) > 1 && p.opts.EnableParallel, Parallel, Sequential),
			Runs:              make([]RunSpec, 0, len(members)),
			BlockingConflicts: sortedKeys(blocking),
		}
		next := deferred
		for _, m := range members {
			stage.Runs = append(stage.Runs, p.runSpec(stageIndex, m.cand, slugs))
			processed++
			for _, d := range m.dependents {
				dep := nodes[d]
				dep.indegree--
				if dep.indegree == 0 {
					next = append(next, dep)
				}
			}
		}
		stages = append(stages, stage)
		sortNodes(next)
		ready = next
	}

	if processed == len(nodes) {
		return stages, nil
	}
	var leftover []string
	for _, n := range nodes {
		if n.indegree > 0 {
			leftover = append(leftover, n.cand.Name())
		}
	}
	sort.Strings(leftover)
	return nil, leftover
}

func (p *Planner) runSpec(stage int, c candidates.Candidate, used map[string]int) RunSpec {
	wfSlug := c.Definition().Slug()
	if wfSlug == "" {
		wfSlug = textutil.SanitizeToken(c.Name())
	}
	used[wfSlug]++
	if n := used[wfSlug]; n > 1 {
		wfSlug = fmt.Sprintf("%s-%d", wfSlug, n)
	}
	spec := RunSpec{
		Candidate: c,
		Slug:      fmt.Sprintf("s%02d-%s", stage, wfSlug),
	}
	if p.opts.BranchPrefix != "" {
		spec.Branch = p.opts.BranchPrefix + "/" + wfSlug
	}
	return spec
}

func sortNodes(list []*node) {
	sort.SliceStable(list, func(i, j int) bool {
		return candidates.Less(list[i].cand, list[j].cand)
	})
}

func addKeys(set map[string]struct{}, keys []string) {
	for _, k := range keys {
		set[k] = struct{}{}
	}
}

func intersect(set map[string]struct{}, keys []string) []string {
	var out []string
	for _, k := range keys {
		if _, ok := set[k]; ok {
			out = append(out, k)
		}
	}
	return out
}

func sortedKeys(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
