package processing

import (
	"context"
	"errors"
	"fmt"

	"speculum/internal/logging"
	"speculum/internal/services"
	"speculum/internal/state"
)

// RecoveryReport lists the items RecoverStuck touched.
type RecoveryReport struct {
	Closed []int
	Paused []int
}

// Total returns the number of items closed, paused ones included.
func (r RecoveryReport) Total() int { return len(r.Closed) + len(r.Paused) }

// RecoverStuck closes every PROCESSING record this processor is not running.
// It is meant for startup, after a crash left attempts open. Items that have
// used up their stale retries are paused.
func (p *Processor) RecoverStuck(ctx context.Context) (RecoveryReport, error) {
	var report RecoveryReport
	if err := p.store.Reload(); err != nil {
		return report, err
	}
	timeout := p.cfg.ProcessingTimeout()
	var errs []error
	for _, rec := range p.store.ListByStatus(state.StatusProcessing) {
		if p.isInflight(rec.IssueNumber) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return report, services.Wrap(services.MarkerOf(err), "processing", "recover", "recovery interrupted", err)
		}
		closed, paused, err := p.closeStale(ctx, rec.IssueNumber, timeout)
		if err != nil {
			errs = append(errs, fmt.Errorf("issue #%d: %w", rec.IssueNumber, err))
			continue
		}
		if paused {
			report.Paused = append(report.Paused, closed.IssueNumber)
		} else {
			report.Closed = append(report.Closed, closed.IssueNumber)
		}
	}
	if report.Total() > 0 {
		p.logger.Info("stuck items recovered",
			logging.String(logging.FieldEventType, "recover_stuck"),
			logging.Int("closed", len(report.Closed)),
			logging.Int("paused", len(report.Paused)),
		)
	}
	return report, errors.Join(errs...)
}

// Resume moves a PAUSED item back to PENDING so the next Process call runs it.
func (p *Processor) Resume(ctx context.Context, number int) (state.Record, error) {
	ctx = services.WithIssueNumber(ctx, number)
	if _, ok := p.store.Get(number); !ok {
		return state.Record{}, services.Wrap(services.ErrNotFound, "processing", "resume", fmt.Sprintf("no state recorded for issue #%d", number), nil)
	}
	rec, err := p.store.Update(ctx, number, func(r *state.Record) error {
		return r.Resume(p.now())
	})
	if err != nil {
		return state.Record{}, err
	}
	logging.WithContext(ctx, p.logger).Info("issue resumed",
		logging.String(logging.FieldEventType, "resume"),
		logging.String("status", string(rec.Status)),
	)
	return rec, nil
}
