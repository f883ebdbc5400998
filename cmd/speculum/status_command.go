package main

import (
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"speculum/internal/audit"
	"speculum/internal/config"
	"speculum/internal/logging"
	"speculum/internal/preflight"
	"speculum/internal/state"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var (
		issue    int
		statuses []string
		limit    int
		asJSON   bool
	)
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show processing state, preflight checks, and plan history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.newLogger(cfg)
			if err != nil {
				return err
			}
			store, err := state.Open(cfg.StateFile(), state.Options{Logger: logger})
			if err != nil {
				return err
			}
			filter := make([]state.Status, 0, len(statuses))
			for _, raw := range statuses {
				status, ok := state.ParseStatus(raw)
				if !ok {
					return fmt.Errorf("unknown status %q", raw)
				}
				filter = append(filter, status)
			}

			if issue > 0 {
				return renderIssueStatus(cmd, cfg, store, issue, limit, asJSON, logger)
			}

			records := store.List()
			if len(filter) > 0 {
				records = store.ListByStatus(filter...)
			}
			if asJSON {
				return writeJSON(cmd, records)
			}

			out := cmd.OutOrStdout()
			pr := newPrinter(out)
			pr.section("Preflight")
			for _, result := range preflight.RunAll(cmd.Context(), cfg) {
				pr.line(result.Name, preflightSeverity(result), result.Detail)
			}
			fmt.Fprintln(out)

			pr.section("Issues")
			counts := store.Counts()
			for _, status := range state.AllStatuses() {
				pr.line(string(status), statusSeverity(status, counts[status]), strconv.Itoa(counts[status]))
			}
			if len(records) == 0 {
				return nil
			}
			fmt.Fprintln(out)
			renderRecords(out, records)
			return nil
		},
	}
	cmd.Flags().IntVar(&issue, "issue", 0, "Show one issue with its plan history")
	cmd.Flags().StringSliceVar(&statuses, "status", nil, "Only list issues in these statuses")
	cmd.Flags().IntVar(&limit, "limit", 5, "Plans to show with --issue")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func renderRecords(out io.Writer, records []state.Record) {
	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		note := rec.ErrorMessage
		if rec.Status == state.StatusNeedsClarification {
			note = rec.ClarificationMessage
		}
		if len(note) > 60 {
			note = note[:57] + "..."
		}
		rows = append(rows, []string{
			strconv.Itoa(rec.IssueNumber),
			string(rec.Status),
			joinOrDash(rec.WorkflowNames),
			strconv.Itoa(len(rec.CreatedFiles)),
			strconv.Itoa(rec.RetryCount),
			formatTime(rec.UpdatedAt),
			note,
		})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"Issue", "Status", "Workflows", "Files", "Retries", "Updated", "Note"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignRight},
	))
}

type issueStatus struct {
	Record state.Record       `json:"record"`
	Plans  []audit.PlanRecord `json:"plans,omitempty"`
}

func renderIssueStatus(cmd *cobra.Command, cfg *config.Config, store *state.Store, issue, limit int, asJSON bool, logger *slog.Logger) error {
	rec, ok := store.Get(issue)
	if !ok {
		return fmt.Errorf("no state recorded for issue #%d", issue)
	}
	view := issueStatus{Record: rec}
	if cfg.Telemetry.Audit {
		db, err := audit.Open(cfg.Paths.AuditDB)
		if err != nil {
			logging.WarnWithContext(logger, "audit log unavailable", "audit_unavailable", logging.Error(err))
		} else {
			defer db.Close()
			plans, err := db.RecentPlans(cmd.Context(), issue, limit)
			if err != nil {
				logging.WarnWithContext(logger, "audit query failed", "audit_query_failed", logging.Error(err))
			}
			view.Plans = plans
		}
	}
	if asJSON {
		return writeJSON(cmd, view)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Issue #%d: %s\n", rec.IssueNumber, rec.Status)
	fmt.Fprintf(out, "  Workflows:  %s\n", joinOrDash(rec.WorkflowNames))
	fmt.Fprintf(out, "  Updated:    %s\n", formatTime(rec.UpdatedAt))
	fmt.Fprintf(out, "  Retries:    %d\n", rec.RetryCount)
	if rec.ErrorMessage != "" {
		fmt.Fprintf(out, "  Error:      %s (%s %s)\n", rec.ErrorMessage, rec.ErrorType, rec.ErrorCode)
	}
	if rec.ClarificationMessage != "" {
		fmt.Fprintf(out, "  Clarify:    %s\n", rec.ClarificationMessage)
	}
	for _, f := range rec.CreatedFiles {
		fmt.Fprintf(out, "  File:       %s\n", f)
	}
	if rec.MultiWorkflow != nil {
		fmt.Fprintln(out)
		renderPlan(out, *rec.MultiWorkflow, nil)
	}
	if len(view.Plans) > 0 {
		rows := make([][]string, 0, len(view.Plans))
		for _, p := range view.Plans {
			rows = append(rows, []string{p.PlanID, formatTime(p.CreatedAt), p.Outcome, strings.Join(p.Summary.Workflows(), ", ")})
		}
		fmt.Fprintln(out, renderTable([]string{"Plan", "Created", "Outcome", "Workflows"}, rows, nil))
	}
	return nil
}
