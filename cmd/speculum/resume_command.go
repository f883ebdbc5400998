package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func newResumeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "resume <issue>...",
		Short: "Move paused issues back to pending",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			numbers, err := parseIssueNumbers(args)
			if err != nil {
				return err
			}
			rt, err := ctx.openRuntime(cmd.Context(), runtimeOptions{exclusive: true})
			if err != nil {
				return err
			}
			defer rt.Close()

			var errs []error
			for _, number := range numbers {
				rec, err := rt.processor.Resume(cmd.Context(), number)
				if err != nil {
					errs = append(errs, fmt.Errorf("issue #%d: %s", number, describeError(err)))
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Issue #%d is now %s\n", number, rec.Status)
			}
			return errors.Join(errs...)
		},
	}
}
