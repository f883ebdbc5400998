package naming_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"speculum/internal/candidates"
	"speculum/internal/definitions"
	"speculum/internal/naming"
	"speculum/internal/planner"
	"speculum/internal/services"
	ts "speculum/internal/testsupport"
)

func buildPlan(t *testing.T, defs ...*definitions.Definition) *planner.ExecutionPlan {
	t.Helper()
	list := make([]candidates.Candidate, 0, len(defs))
	for _, d := range defs {
		list = append(list, candidates.FromDefinition(d))
	}
	plan, err := planner.New(planner.Options{}).Build(candidates.Plan{Candidates: list, Reason: candidates.MultipleMatches})
	require.NoError(t, err)
	return plan
}

func resolver() *naming.Resolver {
	return naming.NewResolver(naming.Options{
		FolderTemplate: "{issue_number}-{title_slug}",
		FilePattern:    "{deliverable_slug}.md",
	})
}

func TestResolveFormatsPlaceholders(t *testing.T) {
	def := ts.NewDefinition("Legal Review",
		ts.WithCategory("Compliance"),
		ts.WithOutput("{category}/{issue_number}", "{workflow_slug}-{deliverable_slug}.md"),
		ts.WithDeliverables("Risk Assessment"),
	)
	manifest, err := resolver().Resolve(buildPlan(t, def), naming.Item{Number: 42, Title: "Café Menu Changes!"})
	require.NoError(t, err)

	assert.Equal(t, []string{"compliance/42/legal-review-risk-assessment.md"}, manifest.Paths())
	assert.False(t, manifest.HasConflicts())
}

func TestResolveUsesFallbackTemplatesAndOutputFileOverride(t *testing.T) {
	def := ts.NewDefinition("Entity Extraction",
		ts.WithDeliverable(definitions.DeliverableSpec{Name: "entities", OutputFile: "{deliverable_name}.json"}),
	)
	manifest, err := resolver().Resolve(buildPlan(t, def), naming.Item{Number: 7, Title: "Site Changed"})
	require.NoError(t, err)

	assert.Equal(t, []string{"7-site-changed/summary.md", "7-site-changed/entities.json"}, manifest.PathsFor("entity extraction"))
	entry, ok := manifest.Entry("Entity Extraction", "entities")
	require.True(t, ok)
	assert.Equal(t, entry.Original, entry.Path)
}

func TestResolveSuffixesCollidingPaths(t *testing.T) {
	a := ts.NewDefinition("Alpha", ts.WithPriority(1))
	b := ts.NewDefinition("Beta", ts.WithPriority(2))
	c := ts.NewDefinition("Gamma", ts.WithPriority(3), ts.WithDeliverables("notes"))

	manifest, err := resolver().Resolve(buildPlan(t, a, b, c), naming.Item{Number: 3, Title: "Title"})
	require.NoError(t, err)

	assert.Equal(t, []string{"3-title/summary--alpha.md"}, manifest.PathsFor("Alpha"))
	assert.Equal(t, []string{"3-title/summary--beta.md"}, manifest.PathsFor("Beta"))
	assert.Equal(t, []string{"3-title/notes.md"}, manifest.PathsFor("Gamma"))

	require.Len(t, manifest.Conflicts, 1)
	group := manifest.Conflicts[0]
	assert.Equal(t, "3-title/summary.md", group.Path)
	assert.Equal(t, naming.StrategySuffix, group.Strategy)
	assert.Equal(t, []string{"3-title/summary--alpha.md", "3-title/summary--beta.md"}, group.Resolved)
}

func TestResolveSuffixAvoidsLiteralPathOfAnotherWorkflow(t *testing.T) {
	a := ts.NewDefinition("Alpha", ts.WithPriority(1))
	b := ts.NewDefinition("Beta", ts.WithPriority(2))
	c := ts.NewDefinition("Gamma", ts.WithPriority(3),
		ts.WithDeliverables(),
		ts.WithDeliverable(definitions.DeliverableSpec{Name: "digest", OutputFile: "summary--alpha.md"}),
	)

	manifest, err := resolver().Resolve(buildPlan(t, a, b, c), naming.Item{Number: 3, Title: "Title"})
	require.NoError(t, err)

	assert.Equal(t, []string{"3-title/summary--alpha.md"}, manifest.PathsFor("Gamma"))
	assert.Equal(t, []string{"3-title/summary--alpha--2.md"}, manifest.PathsFor("Alpha"))
	assert.Equal(t, []string{"3-title/summary--beta.md"}, manifest.PathsFor("Beta"))
	paths := manifest.Paths()
	seen := map[string]bool{}
	for _, p := range paths {
		assert.False(t, seen[p], "duplicate path %s", p)
		seen[p] = true
	}
}

func TestResolveNumbersRepeatedSlugsWithinGroup(t *testing.T) {
	def := ts.NewDefinition("Digest",
		ts.WithOutput("", "report.md"),
		ts.WithDeliverables("first", "second", "third"),
	)
	manifest, err := resolver().Resolve(buildPlan(t, def), naming.Item{Number: 1, Title: "x"})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"1-x/report--digest.md",
		"1-x/report--digest--2.md",
		"1-x/report--digest--3.md",
	}, manifest.PathsFor("Digest"))
}

func TestResolveUnknownPlaceholder(t *testing.T) {
	def := ts.NewDefinition("Broken", ts.WithOutput("{issue_number}/{mystery}", ""))
	_, err := resolver().Resolve(buildPlan(t, def), naming.Item{Number: 1, Title: "x"})
	require.Error(t, err)

	assert.ErrorIs(t, err, services.ErrConfiguration)
	assert.Equal(t, naming.CodeUnresolvedPlaceholder, services.Details(err).Code)
	namingErr, ok := naming.AsNamingError(err)
	require.True(t, ok)
	assert.Equal(t, &naming.NamingError{Workflow: "Broken", Field: naming.FieldFolder, Placeholder: "mystery"}, namingErr)
}

func TestResolveKeepsPathsInsideOutputRoot(t *testing.T) {
	def := ts.NewDefinition("Escape", ts.WithOutput("../../{issue_number}", "{deliverable_slug}.md"))
	manifest, err := resolver().Resolve(buildPlan(t, def), naming.Item{Number: 9, Title: "x"})
	require.NoError(t, err)
	assert.Equal(t, []string{"9/summary.md"}, manifest.Paths())
}

func TestResolveEmptyTitleFallsBack(t *testing.T) {
	manifest, err := resolver().Resolve(buildPlan(t, ts.NewDefinition("Solo")), naming.Item{Number: 5, Title: "  !!  "})
	require.NoError(t, err)
	assert.Equal(t, []string{"5-untitled/summary.md"}, manifest.Paths())
}
