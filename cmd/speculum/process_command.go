package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"speculum/internal/logging"
	"speculum/internal/preflight"
	"speculum/internal/processing"
)

func newProcessCommand(ctx *commandContext) *cobra.Command {
	var (
		asJSON  bool
		preview bool
	)
	cmd := &cobra.Command{
		Use:   "process <issue>...",
		Short: "Plan and run workflows for one or more issues",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			numbers, err := parseIssueNumbers(args)
			if err != nil {
				return err
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if preview {
				cfg.Processing.PreviewOnly = true
			}
			if failed := preflight.Failed(preflight.RunAll(cmd.Context(), cfg)); len(failed) > 0 {
				return fmt.Errorf("preflight failed: %s: %s", failed[0].Name, failed[0].Detail)
			}

			rt, err := ctx.openRuntime(cmd.Context(), runtimeOptions{exclusive: true, tracker: true, watch: true})
			if err != nil {
				return err
			}
			defer rt.Close()

			if report, err := rt.processor.RecoverStuck(cmd.Context()); err != nil {
				logging.WarnWithContext(rt.logger, "stuck item recovery incomplete", "recover_stuck_failed", logging.Error(err))
			} else if report.Total() > 0 {
				fmt.Fprintf(cmd.ErrOrStderr(), "Recovered %d stuck item(s)\n", report.Total())
			}

			results := make([]processing.ProcessingResult, 0, len(numbers))
			rows := make([][]string, 0, len(numbers))
			failures := 0
			for _, number := range numbers {
				if err := cmd.Context().Err(); err != nil {
					return err
				}
				result := processOne(cmd.Context(), rt, number)
				summary := processing.Summarize(result)
				results = append(results, summary)
				if _, ok := result.(processing.Failed); ok {
					failures++
				}
				rows = append(rows, []string{
					strconv.Itoa(number),
					string(summary.Status),
					joinOrDash(summary.WorkflowNames),
					strconv.Itoa(len(summary.CreatedFiles)),
					resultNote(summary),
				})
			}
			rt.pruneAudit(cmd.Context())

			if asJSON {
				if err := writeJSON(cmd, results); err != nil {
					return err
				}
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"Issue", "Status", "Workflows", "Files", "Note"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight},
				))
			}
			if failures > 0 {
				return fmt.Errorf("%d of %d issue(s) failed", failures, len(numbers))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&preview, "preview", false, "Plan only; do not generate deliverables")
	return cmd
}

// processOne applies the advisory overall timeout as a deadline.
func processOne(ctx context.Context, rt *runtime, number int) processing.Result {
	if timeout := rt.cfg.OverallTimeout(); timeout != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(*timeout)*time.Second)
		defer cancel()
	}
	return rt.processor.Process(ctx, number)
}

func resultNote(r processing.ProcessingResult) string {
	switch {
	case r.ErrorMessage != "":
		return r.ErrorMessage
	case r.ClarificationText != "":
		return r.ClarificationText
	case r.HandOff != nil && len(r.HandOff.Failures) > 0:
		return "failed: " + joinOrDash(r.HandOff.Failures)
	default:
		return ""
	}
}
