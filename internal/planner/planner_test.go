package planner_test

import (
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"speculum/internal/candidates"
	"speculum/internal/planner"
	"speculum/internal/services"
	ts "speculum/internal/testsupport"
)

func cand(name string, priority int, keys []string, deps ...string) candidates.Candidate {
	return candidates.New(ts.NewDefinition(name), priority, keys, deps)
}

func plan(list ...candidates.Candidate) candidates.Plan {
	reason := candidates.MultipleMatches
	if len(list) == 1 {
		reason = candidates.SingleMatch
	}
	return candidates.Plan{Candidates: list, Reason: reason, Message: "test"}
}

func stageNames(p *planner.ExecutionPlan) [][]string {
	out := make([][]string, 0, len(p.Stages))
	for _, s := range p.Stages {
		out = append(out, s.Workflows())
	}
	return out
}

func parallelPlanner() *planner.Planner {
	return planner.New(planner.Options{EnableParallel: true})
}

func TestWorkedExampleConflictAndDependency(t *testing.T) {
	a := cand("A", 1, []string{"x"})
	b := cand("B", 1, []string{"x"})
	c := cand("C", 2, []string{"y"}, "A")

	got, err := parallelPlanner().Build(plan(c, b, a))
	require.NoError(t, err)

	assert.Equal(t, [][]string{{"A"}, {"B", "C"}}, stageNames(got))
	assert.Equal(t, planner.Sequential, got.Stages[0].Mode)
	assert.Equal(t, []string{"x"}, got.Stages[0].BlockingConflicts)
	assert.Equal(t, planner.Parallel, got.Stages[1].Mode)
	assert.Empty(t, got.Stages[1].BlockingConflicts)
	assert.Equal(t, 3, got.WorkflowCount())
}

func TestWorkedExampleSingleCandidate(t *testing.T) {
	got, err := parallelPlanner().Build(plan(cand("only", 5, nil)))
	require.NoError(t, err)
	assert.Equal(t, 1, got.StageCount())
	assert.Equal(t, 1, got.WorkflowCount())
	assert.Equal(t, planner.Sequential, got.Stages[0].Mode)
	assert.Equal(t, "s00-only", got.Stages[0].Runs[0].Slug)
	assert.Empty(t, got.Stages[0].Runs[0].Branch)
}

func TestDisjointCandidatesShareOneParallelStage(t *testing.T) {
	list := []candidates.Candidate{
		cand("alpha", 3, []string{"a"}),
		cand("beta", 1, []string{"b"}),
		cand("gamma", 2, []string{"c"}),
		cand("delta", 2, nil),
	}
	for i := 0; i < 5; i++ {
		shuffled := append([]candidates.Candidate(nil), list...)
		rand.New(rand.NewPCG(uint64(i), 7)).Shuffle(len(shuffled), func(a, b int) {
			shuffled[a], shuffled[b] = shuffled[b], shuffled[a]
		})
		got, err := parallelPlanner().Build(plan(shuffled...))
		require.NoError(t, err)
		require.Equal(t, 1, got.StageCount())
		assert.Equal(t, planner.Parallel, got.Stages[0].Mode)
		assert.Equal(t, []string{"beta", "delta", "gamma", "alpha"}, got.Stages[0].Workflows())
	}
}

func TestParallelDisabledYieldsSequentialStages(t *testing.T) {
	p := planner.New(planner.Options{EnableParallel: false})
	got, err := p.Build(plan(cand("a", 1, nil), cand("b", 2, nil)))
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"a"}, {"b"}}, stageNames(got))
	for _, s := range got.Stages {
		assert.Equal(t, planner.Sequential, s.Mode)
		assert.Empty(t, s.BlockingConflicts)
	}
}

func TestMaxParallelCapsStageSize(t *testing.T) {
	p := planner.New(planner.Options{EnableParallel: true, MaxParallel: 2})
	got, err := p.Build(plan(cand("a", 1, nil), cand("b", 1, nil), cand("c", 1, nil)))
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"a", "b"}, {"c"}}, stageNames(got))
	assert.Equal(t, planner.Sequential, got.Stages[1].Mode)
}

func TestConflictingCandidatesNeverShareStage(t *testing.T) {
	rng := rand.New(rand.NewPCG(42, 1))
	keys := []string{"k1", "k2", "k3", "k4"}
	for round := 0; round < 50; round++ {
		var list []candidates.Candidate
		n := 2 + rng.IntN(6)
		for i := 0; i < n; i++ {
			var ck []string
			for _, k := range keys {
				if rng.IntN(3) == 0 {
					ck = append(ck, k)
				}
			}
			list = append(list, cand(fmt.Sprintf("wf-%d", i), rng.IntN(3), ck))
		}
		got, err := parallelPlanner().Build(plan(list...))
		require.NoError(t, err)
		require.Equal(t, n, got.WorkflowCount())

		for _, s := range got.Stages {
			seen := map[string]string{}
			for _, r := range s.Runs {
				for _, k := range r.Candidate.ConflictKeys() {
					other, clash := seen[k]
					require.Falsef(t, clash, "stage %d holds %s and %s sharing %s", s.Index, other, r.Workflow(), k)
					seen[k] = r.Workflow()
				}
			}
		}

		largestClique := 0
		for _, k := range keys {
			count := 0
			for _, c := range list {
				if c.HasConflictKey(k) {
					count++
				}
			}
			largestClique = max(largestClique, count)
		}
		assert.GreaterOrEqual(t, got.StageCount(), largestClique)
	}
}

func TestDependencyEdgesRespectStageOrder(t *testing.T) {
	list := []candidates.Candidate{
		cand("report", 0, nil, "analysis", "capture"),
		cand("analysis", 0, nil, "capture"),
		cand("capture", 9, nil),
		cand("notify", 0, nil, "report"),
		cand("independent", 5, nil),
	}
	got, err := parallelPlanner().Build(plan(list...))
	require.NoError(t, err)

	for _, c := range list {
		child, ok := got.StageIndex(c.Name())
		require.True(t, ok)
		for _, dep := range c.Dependencies() {
			parent, ok := got.StageIndex(dep)
			require.True(t, ok)
			assert.Lessf(t, parent, child, "%s must run before %s", dep, c.Name())
		}
	}
	assert.Equal(t, [][]string{{"independent", "capture"}, {"analysis"}, {"report"}, {"notify"}}, stageNames(got))
}

func TestCyclicDependenciesFailWithZeroStages(t *testing.T) {
	got, err := parallelPlanner().Build(plan(
		cand("a", 1, nil, "c"),
		cand("b", 1, nil, "a"),
		cand("c", 1, nil, "b"),
		cand("free", 1, nil),
	))
	require.Error(t, err)
	assert.ErrorIs(t, err, services.ErrPlanning)
	assert.Equal(t, planner.CodeUnresolvedDependencies, services.Details(err).Code)
	assert.Contains(t, err.Error(), "a, b, c")
	assert.Zero(t, got.StageCount())
	assert.NotEmpty(t, got.ID)
}

func TestUnknownAndSelfDependenciesFail(t *testing.T) {
	tests := []struct {
		name string
		list []candidates.Candidate
		code string
	}{
		{"unknown", []candidates.Candidate{cand("a", 1, nil, "ghost")}, planner.CodeUnknownDependency},
		{"self", []candidates.Candidate{cand("a", 1, nil, "A")}, planner.CodeSelfDependency},
		{"duplicate", []candidates.Candidate{cand("a", 1, nil), cand("A", 2, nil)}, planner.CodeDuplicateCandidate},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := parallelPlanner().Build(plan(tc.list...))
			require.ErrorIs(t, err, services.ErrPlanning)
			assert.Equal(t, tc.code, services.Details(err).Code)
			assert.Zero(t, got.StageCount())
		})
	}
}

func TestBuildIsDeterministic(t *testing.T) {
	list := []candidates.Candidate{
		cand("Beta", 2, []string{"x"}),
		cand("alpha", 2, []string{"x", "y"}),
		cand("gamma", 1, []string{"y"}),
		cand("delta", 3, nil, "gamma"),
	}
	ids := 0
	p := planner.New(planner.Options{EnableParallel: true, NewID: func() string {
		ids++
		return fmt.Sprintf("plan-%d", ids)
	}})
	first, err := p.Build(plan(list...))
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := p.Build(plan(list...))
		require.NoError(t, err)
		assert.Equal(t, stageNames(first), stageNames(again))
		assert.Equal(t, first.Summary().Stages, again.Summary().Stages)
		assert.NotEqual(t, first.ID, again.ID)
	}
}

func TestPlanCarriesOptionsAndSelection(t *testing.T) {
	timeout := 900
	p := planner.New(planner.Options{
		EnableParallel:        true,
		AllowPartialSuccess:   true,
		OverallTimeoutSeconds: &timeout,
		BranchPrefix:          "/triage/",
	})
	in := plan(cand("Entity Extraction", 1, nil), cand("Legal Review", 2, nil))
	got, err := p.Build(in)
	require.NoError(t, err)

	assert.True(t, got.AllowPartialSuccess)
	require.NotNil(t, got.OverallTimeoutSeconds)
	assert.Equal(t, 900, *got.OverallTimeoutSeconds)
	assert.Equal(t, candidates.MultipleMatches, got.SelectionReason)
	assert.Equal(t, "test", got.SelectionMessage)

	runs := got.Runs()
	require.Len(t, runs, 2)
	assert.Equal(t, "s00-entity-extraction", runs[0].Slug)
	assert.Equal(t, "triage/entity-extraction", runs[0].Branch)
	assert.Equal(t, "triage/legal-review", runs[1].Branch)

	summary := got.Summary()
	assert.Equal(t, got.ID, summary.PlanID)
	assert.Equal(t, 1, summary.StageCount)
	assert.Equal(t, 2, summary.WorkflowCount)
	assert.Equal(t, "multiple_matches", summary.SelectionReason)
}

func TestEmptyPlanHasNoStages(t *testing.T) {
	got, err := parallelPlanner().Build(candidates.Plan{Reason: candidates.NoMatch})
	require.NoError(t, err)
	assert.Zero(t, got.StageCount())
	assert.Zero(t, got.WorkflowCount())
}
