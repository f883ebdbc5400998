package services_test

import (
	"context"
	"testing"

	"speculum/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithIssueNumber(ctx, 42)
	ctx = services.WithStage(ctx, "stage-01")
	ctx = services.WithWorkflow(ctx, "entity-extraction")
	ctx = services.WithPlanID(ctx, "plan-1")
	ctx = services.WithRequestID(ctx, "req-123")

	if id, ok := services.IssueNumberFromContext(ctx); !ok || id != 42 {
		t.Fatalf("unexpected issue number: %v %v", id, ok)
	}
	if stage, ok := services.StageFromContext(ctx); !ok || stage != "stage-01" {
		t.Fatalf("unexpected stage: %v %v", stage, ok)
	}
	if wf, ok := services.WorkflowFromContext(ctx); !ok || wf != "entity-extraction" {
		t.Fatalf("unexpected workflow: %v %v", wf, ok)
	}
	if plan, ok := services.PlanIDFromContext(ctx); !ok || plan != "plan-1" {
		t.Fatalf("unexpected plan id: %v %v", plan, ok)
	}
	if rid, ok := services.RequestIDFromContext(ctx); !ok || rid != "req-123" {
		t.Fatalf("unexpected request id: %v %v", rid, ok)
	}
}

func TestBlankValuesPreserveContext(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithStage(ctx, "")
	ctx = services.WithWorkflow(ctx, "")
	if _, ok := services.StageFromContext(ctx); ok {
		t.Fatal("expected no stage value")
	}
	if _, ok := services.WorkflowFromContext(ctx); ok {
		t.Fatal("expected no workflow value")
	}
	if _, ok := services.IssueNumberFromContext(ctx); ok {
		t.Fatal("expected no issue number")
	}
}
