package candidates

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"speculum/internal/definitions"
	"speculum/internal/logging"
)

// SelectionReason classifies how many workflows a label set selected.
type SelectionReason string

const (
	NoMatch         SelectionReason = "no_match"
	SingleMatch     SelectionReason = "single_match"
	MultipleMatches SelectionReason = "multiple_matches"
)

// Plan is the ordered candidate list for one item.
type Plan struct {
	Candidates []Candidate
	Reason     SelectionReason
	Message    string
}

// Empty reports whether the plan selected no workflows.
func (p Plan) Empty() bool { return len(p.Candidates) == 0 }

// Source supplies the current definition snapshot.
type Source interface {
	All() []*definitions.Definition
}

// Options configures a Resolver.
type Options struct {
	// RequiredLabel must be present on an item before any workflow can match.
	RequiredLabel string
	Logger        *slog.Logger
}

// Resolver matches labels to workflow definitions.
type Resolver struct {
	source        Source
	requiredLabel string
	logger        *slog.Logger
}

// NewResolver wires a resolver to a definition source.
func NewResolver(source Source, opts Options) *Resolver {
	return &Resolver{
		source:        source,
		requiredLabel: strings.TrimSpace(opts.RequiredLabel),
		logger:        logging.NewComponentLogger(opts.Logger, "candidates"),
	}
}

// RequiredLabel returns the configured baseline label.
func (r *Resolver) RequiredLabel() string { return r.requiredLabel }

// HasRequiredLabel reports whether labels contain the baseline label.
func (r *Resolver) HasRequiredLabel(labels []string) bool {
	if r.requiredLabel == "" {
		return true
	}
	return containsFold(labels, r.requiredLabel)
}

// FindMatching returns the definitions triggered by labels, ordered by
// priority then case-insensitive name. Legacy matches are dropped whenever a
// taxonomy-compliant definition also matches.
func (r *Resolver) FindMatching(labels []string) []*definitions.Definition {
	if r.source == nil || !r.HasRequiredLabel(labels) {
		return nil
	}
	var taxonomy, legacy []*definitions.Definition
	for _, def := range r.source.All() {
		if !def.MatchesAny(labels) {
			continue
		}
		if def.Legacy {
			legacy = append(legacy, def)
		} else {
			taxonomy = append(taxonomy, def)
		}
	}

	matches := legacy
	if len(taxonomy) > 0 {
		matches = taxonomy
		if len(legacy) > 0 {
			r.logger.Info("legacy workflows suppressed by taxonomy matches",
				logging.String(logging.FieldEventType, "legacy_suppressed"),
				logging.Int("suppressed", len(legacy)),
				logging.Strings("suppressed_workflows", definitionNames(legacy)),
				logging.Int("taxonomy_matches", len(taxonomy)),
			)
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		pi, pj := PriorityOf(matches[i]), PriorityOf(matches[j])
		if pi != pj {
			return pi < pj
		}
		if ki, kj := matches[i].Key(), matches[j].Key(); ki != kj {
			return ki < kj
		}
		return matches[i].Name < matches[j].Name
	})
	return matches
}

// BestMatch returns the single matching definition, or nil and a message
// explaining why no single workflow could be chosen.
func (r *Resolver) BestMatch(labels []string) (*definitions.Definition, string) {
	if !r.HasRequiredLabel(labels) {
		return nil, r.missingLabelMessage()
	}
	matches := r.FindMatching(labels)
	switch len(matches) {
	case 0:
		return nil, noMatchMessage(labels)
	case 1:
		return matches[0], ""
	default:
		return nil, fmt.Sprintf(
			"Multiple workflows match labels %s: %s. Remove the extra labels so a single workflow applies.",
			formatLabels(labels), strings.Join(definitionNames(matches), ", "))
	}
}

// BuildPlan converts the matches for labels into an ordered candidate plan.
func (r *Resolver) BuildPlan(labels []string) Plan {
	if !r.HasRequiredLabel(labels) {
		return Plan{Reason: NoMatch, Message: r.missingLabelMessage()}
	}
	matches := r.FindMatching(labels)
	list := make([]Candidate, 0, len(matches))
	for _, def := range matches {
		list = append(list, FromDefinition(def))
	}
	Sort(list)

	plan := Plan{Candidates: list}
	switch len(list) {
	case 0:
		plan.Reason = NoMatch
		plan.Message = noMatchMessage(labels)
	case 1:
		plan.Reason = SingleMatch
		plan.Message = fmt.Sprintf("Selected workflow %q.", list[0].Name())
	default:
		plan.Reason = MultipleMatches
		plan.Message = fmt.Sprintf("Selected %d workflows: %s.", len(list), strings.Join(Names(list), ", "))
	}
	r.logger.Debug("candidate plan built",
		logging.String(logging.FieldDecisionType, "workflow_selection"),
		logging.String("decision_result", string(plan.Reason)),
		logging.Strings("workflows", Names(list)),
	)
	return plan
}

func (r *Resolver) missingLabelMessage() string {
	return fmt.Sprintf("Item is missing the required %q label, so no workflow was considered.", r.requiredLabel)
}

func noMatchMessage(labels []string) string {
	return fmt.Sprintf(
		"No workflow matches labels %s. Add a workflow-specific label describing what should be produced.",
		formatLabels(labels))
}

func formatLabels(labels []string) string {
	if len(labels) == 0 {
		return "[]"
	}
	return "[" + strings.Join(labels, ", ") + "]"
}

func definitionNames(defs []*definitions.Definition) []string {
	out := make([]string, 0, len(defs))
	for _, d := range defs {
		out = append(out, d.Name)
	}
	return out
}

func containsFold(values []string, want string) bool {
	for _, v := range values {
		if strings.EqualFold(strings.TrimSpace(v), want) {
			return true
		}
	}
	return false
}
