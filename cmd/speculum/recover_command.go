package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRecoverCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "recover",
		Short: "Close attempts left in PROCESSING by an interrupted run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := ctx.openRuntime(cmd.Context(), runtimeOptions{exclusive: true})
			if err != nil {
				return err
			}
			defer rt.Close()

			report, err := rt.processor.RecoverStuck(cmd.Context())
			out := cmd.OutOrStdout()
			if report.Total() == 0 && err == nil {
				fmt.Fprintln(out, "No stuck items found")
				return nil
			}
			for _, n := range report.Closed {
				fmt.Fprintf(out, "Issue #%d: closed as error; it will be retried on the next run\n", n)
			}
			for _, n := range report.Paused {
				fmt.Fprintf(out, "Issue #%d: paused after repeated stale attempts; run speculum resume %d\n", n, n)
			}
			return err
		},
	}
}
