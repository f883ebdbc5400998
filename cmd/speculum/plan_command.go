package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"speculum/internal/naming"
	"speculum/internal/planner"
	"speculum/internal/processing"
)

func newPlanCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "plan <issue>",
		Short: "Show the execution plan for an issue without running it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			numbers, err := parseIssueNumbers(args)
			if err != nil {
				return err
			}
			rt, err := ctx.openRuntime(cmd.Context(), runtimeOptions{tracker: true})
			if err != nil {
				return err
			}
			defer rt.Close()

			result := rt.processor.Plan(cmd.Context(), numbers[0])
			if asJSON {
				return writeJSON(cmd, processing.Summarize(result))
			}
			out := cmd.OutOrStdout()
			switch v := result.(type) {
			case processing.Previewed:
				renderPlan(out, v.Summary, v.Manifest)
				return nil
			case processing.NeedsClarification:
				fmt.Fprintf(out, "Issue #%d needs clarification:\n  %s\n", numbers[0], v.Message)
				return nil
			case processing.Failed:
				return errors.New(describeError(v.Err))
			default:
				return fmt.Errorf("unexpected plan result %T", result)
			}
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func renderPlan(out io.Writer, summary planner.Summary, manifest *naming.Manifest) {
	fmt.Fprintf(out, "Plan %s: %d stage(s), %d workflow(s)\n", summary.PlanID, summary.StageCount, summary.WorkflowCount)
	if summary.SelectionMessage != "" {
		fmt.Fprintln(out, summary.SelectionMessage)
	}
	rows := make([][]string, 0, len(summary.Stages))
	for _, st := range summary.Stages {
		rows = append(rows, []string{
			strconv.Itoa(st.Index),
			string(st.Mode),
			joinOrDash(st.Workflows),
			joinOrDash(st.BlockingConflicts),
		})
	}
	fmt.Fprintln(out, renderTable([]string{"Stage", "Mode", "Workflows", "Blocked by"}, rows, []columnAlignment{alignRight}))

	if manifest == nil {
		return
	}
	files := make([][]string, 0)
	for _, wf := range manifest.Workflows {
		for _, entry := range wf.Entries {
			files = append(files, []string{wf.Workflow, entry.Deliverable, entry.Path})
		}
	}
	fmt.Fprintln(out, renderTable([]string{"Workflow", "Deliverable", "Path"}, files, nil))
	for _, conflict := range manifest.Conflicts {
		fmt.Fprintf(out, "Renamed colliding path %s (%s): %s\n", conflict.Path, conflict.Strategy, joinOrDash(conflict.Resolved))
	}
}
