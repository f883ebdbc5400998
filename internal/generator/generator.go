package generator

import (
	"context"
	"time"

	"speculum/internal/definitions"
	"speculum/internal/tracker"
)

// ItemContext is what a generator knows about the work in progress.
type ItemContext struct {
	Issue    tracker.Issue
	Workflow *definitions.Definition
	PlanID   string
	Stage    int
	Now      time.Time
}

// Generator renders one deliverable.
type Generator interface {
	Generate(ctx context.Context, spec definitions.DeliverableSpec, item ItemContext) (string, error)
}

// Func adapts a function to Generator.
type Func func(ctx context.Context, spec definitions.DeliverableSpec, item ItemContext) (string, error)

// Generate calls f.
func (f Func) Generate(ctx context.Context, spec definitions.DeliverableSpec, item ItemContext) (string, error) {
	return f(ctx, spec, item)
}
