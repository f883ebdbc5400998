package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"speculum/internal/planner"
	"speculum/internal/retry"
	"speculum/internal/services"
	"speculum/internal/telemetry"
)

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

var busyPolicy = retry.Policy{
	MaxAttempts: busyRetryAttempts,
	BaseDelay:   busyRetryInitialBackoff,
	Multiplier:  2,
	MaxDelay:    busyRetryMaxBackoff,
	Retryable:   isSQLiteBusy,
}

// Store is the SQLite audit log.
type Store struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// PlanRecord is one row of the plans table.
type PlanRecord struct {
	PlanID    string
	Issue     int
	CreatedAt time.Time
	UpdatedAt time.Time
	Outcome   string
	Summary   planner.Summary
}

// Open initializes or connects to the audit database at path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "audit", "open", "audit database path is empty", nil)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure audit directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path, now: time.Now}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database location.
func (s *Store) Path() string {
	return s.path
}

// RecordPlan inserts or updates the summary of a plan.
func (s *Store) RecordPlan(ctx context.Context, issue int, summary planner.Summary) error {
	if strings.TrimSpace(summary.PlanID) == "" {
		return services.Wrap(services.ErrValidation, "audit", "record plan", "plan id is required", nil)
	}
	payload, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("encode plan summary: %w", err)
	}
	now := s.now().UTC().Format(time.RFC3339Nano)
	return s.exec(ctx, `
INSERT INTO plans (plan_id, issue, created_at, updated_at, selection_reason, stage_count, workflow_count, outcome, summary_json)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(plan_id) DO UPDATE SET
    updated_at = excluded.updated_at,
    stage_count = excluded.stage_count,
    workflow_count = excluded.workflow_count,
    outcome = excluded.outcome,
    summary_json = excluded.summary_json`,
		summary.PlanID, issue, now, now, summary.SelectionReason,
		summary.StageCount, summary.WorkflowCount, summary.Outcome, string(payload),
	)
}

// RecordEvent appends a telemetry event.
func (s *Store) RecordEvent(ctx context.Context, event telemetry.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	ts := event.Timestamp
	if ts.IsZero() {
		ts = s.now()
	}
	return s.exec(ctx,
		"INSERT INTO events (event_type, plan_id, issue, recorded_at, payload_json) VALUES (?, ?, ?, ?, ?)",
		string(event.Type), event.PlanID, event.Issue, ts.UTC().Format(time.RFC3339Nano), string(payload),
	)
}

// Emit implements telemetry.Sink.
func (s *Store) Emit(ctx context.Context, event telemetry.Event) error {
	return s.RecordEvent(ctx, event)
}

// RecentPlans returns up to limit plans, newest first. An issue of 0 lists
// plans for every issue.
func (s *Store) RecentPlans(ctx context.Context, issue, limit int) ([]PlanRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	query := "SELECT plan_id, issue, created_at, updated_at, outcome, summary_json FROM plans"
	args := []any{}
	if issue > 0 {
		query += " WHERE issue = ?"
		args = append(args, issue)
	}
	query += " ORDER BY created_at DESC, plan_id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query plans: %w", err)
	}
	defer rows.Close()

	var out []PlanRecord
	for rows.Next() {
		var (
			rec              PlanRecord
			created, updated string
			payload          string
		)
		if err := rows.Scan(&rec.PlanID, &rec.Issue, &created, &updated, &rec.Outcome, &payload); err != nil {
			return nil, fmt.Errorf("scan plan: %w", err)
		}
		rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		rec.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
		if err := json.Unmarshal([]byte(payload), &rec.Summary); err != nil {
			return nil, fmt.Errorf("decode plan %s: %w", rec.PlanID, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Events returns the events recorded for planID in insertion order.
func (s *Store) Events(ctx context.Context, planID string) ([]telemetry.Event, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT payload_json FROM events WHERE plan_id = ? ORDER BY id", planID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []telemetry.Event
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		var event telemetry.Event
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			return nil, fmt.Errorf("decode event: %w", err)
		}
		out = append(out, event)
	}
	return out, rows.Err()
}

// Prune deletes plans and events recorded before cutoff and returns the
// number of rows removed.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	ts := cutoff.UTC().Format(time.RFC3339Nano)
	var removed int64
	for _, query := range []string{
		"DELETE FROM events WHERE recorded_at < ?",
		"DELETE FROM plans WHERE updated_at < ?",
	} {
		var res sql.Result
		err := busyPolicy.Do(ctx, "audit prune", func(ctx context.Context) error {
			var execErr error
			res, execErr = s.db.ExecContext(ctx, query, ts)
			return execErr
		})
		if err != nil {
			return removed, fmt.Errorf("prune audit log: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil {
			removed += n
		}
	}
	return removed, nil
}

func (s *Store) exec(ctx context.Context, query string, args ...any) error {
	if ctx == nil {
		ctx = context.Background()
	}
	err := busyPolicy.Do(ctx, "audit write", func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, query, args...)
		return err
	})
	if err != nil {
		return services.Wrap(services.ErrPersistence, "audit", "write", "", err)
	}
	return nil
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}
