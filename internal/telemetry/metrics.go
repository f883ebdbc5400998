package telemetry

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsSink feeds Prometheus collectors from events.
type MetricsSink struct {
	plansTotal        *prometheus.CounterVec
	stagesPerPlan     prometheus.Histogram
	workflowsPerPlan  prometheus.Histogram
	blockingConflicts prometheus.Counter
	executionsTotal   *prometheus.CounterVec
	workflowFailures  prometheus.Counter
	executionSeconds  prometheus.Histogram
}

// NewMetricsSink registers the collectors with reg.
func NewMetricsSink(reg prometheus.Registerer) (*MetricsSink, error) {
	m := &MetricsSink{
		plansTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "speculum",
				Name:      "plans_total",
				Help:      "Execution plans created, by selection reason.",
			},
			[]string{"selection_reason"},
		),
		stagesPerPlan: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "speculum",
				Name:      "plan_stages",
				Help:      "Stages per execution plan.",
				Buckets:   []float64{0, 1, 2, 3, 5, 8},
			},
		),
		workflowsPerPlan: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "speculum",
				Name:      "plan_workflows",
				Help:      "Workflows per execution plan.",
				Buckets:   []float64{0, 1, 2, 3, 5, 8},
			},
		),
		blockingConflicts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "speculum",
				Name:      "blocking_conflicts_total",
				Help:      "Conflict keys that forced a workflow into a later stage.",
			},
		),
		executionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "speculum",
				Name:      "executions_total",
				Help:      "Finished plan executions, by outcome.",
			},
			[]string{"outcome"},
		),
		workflowFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "speculum",
				Name:      "workflow_failures_total",
				Help:      "Workflows that failed inside an execution.",
			},
		),
		executionSeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "speculum",
				Name:      "execution_duration_seconds",
				Help:      "Wall time of plan executions.",
				Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
			},
		),
	}
	for _, c := range []prometheus.Collector{
		m.plansTotal, m.stagesPerPlan, m.workflowsPerPlan, m.blockingConflicts,
		m.executionsTotal, m.workflowFailures, m.executionSeconds,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Emit updates the collectors for event.
func (m *MetricsSink) Emit(_ context.Context, event Event) error {
	switch event.Type {
	case EventPlanCreated:
		reason := event.SelectionReason
		if reason == "" {
			reason = "unknown"
		}
		m.plansTotal.WithLabelValues(reason).Inc()
		m.stagesPerPlan.Observe(float64(event.StageCount))
		m.workflowsPerPlan.Observe(float64(event.WorkflowCount))
		m.blockingConflicts.Add(float64(len(event.BlockingConflicts)))
	case EventExecutionSummary:
		outcome := event.Outcome
		if outcome == "" {
			outcome = "unknown"
		}
		m.executionsTotal.WithLabelValues(outcome).Inc()
		m.workflowFailures.Add(float64(len(event.Failures)))
		if event.Duration > 0 {
			m.executionSeconds.Observe(event.Duration.Seconds())
		}
	}
	return nil
}

// WriteTextfile dumps every metric gathered by g to path in the node
// exporter textfile format.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	return prometheus.WriteToTextfile(path, g)
}
