package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"speculum/internal/logging"
	"speculum/internal/services"
)

// Publisher delivers events to every sink. A nil Publisher drops events.
type Publisher struct {
	sinks  []Sink
	logger *slog.Logger
	now    func() time.Time
}

// NewPublisher builds a publisher; nil sinks are ignored.
func NewPublisher(logger *slog.Logger, sinks ...Sink) *Publisher {
	p := &Publisher{logger: logging.NewComponentLogger(logger, "telemetry"), now: time.Now}
	for _, s := range sinks {
		if s != nil {
			p.sinks = append(p.sinks, s)
		}
	}
	return p
}

// Publish stamps event and hands it to each sink.
func (p *Publisher) Publish(ctx context.Context, event Event) {
	if p == nil || len(p.sinks) == 0 {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = p.now().UTC()
	}
	if event.CorrelationID == "" {
		if rid, ok := services.RequestIDFromContext(ctx); ok {
			event.CorrelationID = rid
		}
	}
	for _, sink := range p.sinks {
		if err := p.emit(ctx, sink, event); err != nil {
			logging.WarnWithContext(p.logger, "telemetry sink failed", "telemetry_failed",
				logging.String("telemetry_event", string(event.Type)),
				logging.String(logging.FieldPlanID, event.PlanID),
				logging.String("sink", fmt.Sprintf("%T", sink)),
				logging.Error(err),
				logging.String(logging.FieldImpact, "event not recorded by this sink"),
			)
		}
	}
}

func (p *Publisher) emit(ctx context.Context, sink Sink, event Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sink panic: %v", r)
		}
	}()
	return sink.Emit(ctx, event)
}

// LogSink writes events as structured log lines.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink returns a sink that logs at info level.
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logging.NewComponentLogger(logger, "telemetry")}
}

// Emit logs event.
func (s *LogSink) Emit(_ context.Context, event Event) error {
	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, string(event.Type)),
		logging.Int(logging.FieldIssue, event.Issue),
		logging.String(logging.FieldPlanID, event.PlanID),
		logging.Int("stage_count", event.StageCount),
		logging.Int("workflow_count", event.WorkflowCount),
	}
	if len(event.BlockingConflicts) > 0 {
		attrs = append(attrs, logging.Strings("blocking_conflicts", event.BlockingConflicts))
	}
	if event.Outcome != "" {
		attrs = append(attrs, logging.String("outcome", event.Outcome))
	}
	if len(event.Failures) > 0 {
		attrs = append(attrs, logging.Strings("failures", event.Failures))
	}
	if event.CorrelationID != "" {
		attrs = append(attrs, logging.String(logging.FieldCorrelationID, event.CorrelationID))
	}
	s.logger.Info("telemetry event", logging.Args(attrs...)...)
	return nil
}
