package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"speculum/internal/definitions"
)

func newDefinitionsCommand(ctx *commandContext) *cobra.Command {
	var (
		asJSON bool
		watch  bool
	)
	cmd := &cobra.Command{
		Use:   "definitions",
		Short: "List the workflow definitions speculum has loaded",
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
			repo := definitions.New(cfg.Paths.DefinitionsDir, definitions.Options{
				Strict: cfg.Workflows.Strict,
				Logger: logger,
			})
			if err := repo.Refresh(cmd.Context()); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(cmd, repo.All())
			}
			renderDefinitions(out, repo)
			if !watch {
				return nil
			}

			watcher, err := definitions.NewWatcher(repo, 0, logger)
			if err != nil {
				return err
			}
			watcher.OnRefresh = func(err error) {
				if err != nil {
					fmt.Fprintf(out, "Reload failed: %s\n", describeError(err))
					return
				}
				fmt.Fprintln(out)
				renderDefinitions(out, repo)
			}
			if err := watcher.Start(cmd.Context()); err != nil {
				return err
			}
			defer watcher.Stop()
			fmt.Fprintf(out, "Watching %s; press Ctrl+C to stop\n", repo.Dir())
			<-cmd.Context().Done()
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&watch, "watch", false, "Re-list whenever a definition file changes")
	return cmd
}

func renderDefinitions(out io.Writer, repo *definitions.Repository) {
	defs := repo.All()
	rows := make([][]string, 0, len(defs))
	for _, def := range defs {
		priority := "-"
		if def.Priority != nil {
			priority = strconv.Itoa(*def.Priority)
		}
		rows = append(rows, []string{
			def.Name,
			def.Profile(),
			def.Category,
			priority,
			joinOrDash(def.TriggerLabels),
			strconv.Itoa(len(def.Deliverables)),
			joinOrDash(def.Metadata.Dependencies),
		})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"Name", "Profile", "Category", "Priority", "Triggers", "Deliverables", "Depends on"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignRight},
	))
	for _, issue := range repo.Issues() {
		fmt.Fprintf(out, "Skipped %s: %s\n", issue.Path, issue.Message)
	}
}
