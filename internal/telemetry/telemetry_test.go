package telemetry_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"speculum/internal/logging"
	"speculum/internal/services"
	"speculum/internal/telemetry"
)

func TestPublisherDeliversToAllSinksDespiteFailures(t *testing.T) {
	var got []telemetry.Event
	recorder := telemetry.SinkFunc(func(_ context.Context, e telemetry.Event) error {
		got = append(got, e)
		return nil
	})
	failing := telemetry.SinkFunc(func(context.Context, telemetry.Event) error { return errors.New("down") })
	panicking := telemetry.SinkFunc(func(context.Context, telemetry.Event) error { panic("boom") })

	pub := telemetry.NewPublisher(logging.NewNop(), failing, panicking, nil, recorder)
	ctx := services.WithRequestID(context.Background(), "req-1")
	pub.Publish(ctx, telemetry.Event{Type: telemetry.EventPlanCreated, PlanID: "p"})

	require.Len(t, got, 1)
	assert.Equal(t, "req-1", got[0].CorrelationID)
	assert.False(t, got[0].Timestamp.IsZero())
}

func TestNilPublisherIsSafe(t *testing.T) {
	var pub *telemetry.Publisher
	pub.Publish(context.Background(), telemetry.Event{Type: telemetry.EventPlanCreated})
}

func TestMetricsSinkCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink, err := telemetry.NewMetricsSink(reg)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, sink.Emit(ctx, telemetry.Event{
		Type:              telemetry.EventPlanCreated,
		SelectionReason:   "multiple_matches",
		StageCount:        2,
		WorkflowCount:     3,
		BlockingConflicts: []string{"x"},
	}))
	require.NoError(t, sink.Emit(ctx, telemetry.Event{
		Type:     telemetry.EventExecutionSummary,
		Outcome:  telemetry.OutcomePartial,
		Failures: []string{"B"},
	}))

	expected := `
# HELP speculum_executions_total Finished plan executions, by outcome.
# TYPE speculum_executions_total counter
speculum_executions_total{outcome="partial"} 1
# HELP speculum_plans_total Execution plans created, by selection reason.
# TYPE speculum_plans_total counter
speculum_plans_total{selection_reason="multiple_matches"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"speculum_executions_total", "speculum_plans_total"))

	path := filepath.Join(t.TempDir(), "speculum.prom")
	require.NoError(t, telemetry.WriteTextfile(path, reg))
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "speculum_blocking_conflicts_total 1")
	assert.Contains(t, string(content), "speculum_workflow_failures_total 1")
}

func TestMetricsSinkRejectsDoubleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := telemetry.NewMetricsSink(reg)
	require.NoError(t, err)
	_, err = telemetry.NewMetricsSink(reg)
	assert.Error(t, err)
}
