package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"audiograb/internal/workspace"
)

func newSweepCommand(ctx *commandContext) *cobra.Command {
	var olderThan time.Duration
	var list bool

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Remove stale job workspaces",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			manager, err := workspace.NewManager(cfg.Paths.WorkspaceRoot)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if list {
				dirs, err := manager.List()
				if err != nil {
					return err
				}
				if len(dirs) == 0 {
					fmt.Fprintln(out, "No job workspaces")
					return nil
				}
				rows := make([][]string, 0, len(dirs))
				for _, d := range dirs {
					rows = append(rows, []string{d.JobID, d.ModTime.UTC().Format(time.RFC3339), fmt.Sprintf("%d", d.Size)})
				}
				fmt.Fprintln(out, renderTable(out, []string{"Job", "Modified", "Bytes"}, rows,
					[]columnAlignment{alignLeft, alignLeft, alignRight}))
				return nil
			}

			if err := manager.Lock(); err != nil {
				if errors.Is(err, workspace.ErrRootLocked) {
					return fmt.Errorf("a running daemon owns %s and sweeps it on its own schedule", manager.Root())
				}
				return err
			}
			defer manager.Unlock()

			age := olderThan
			if age <= 0 {
				age = cfg.StaleWorkspaceAge()
			}
			result := manager.Sweep(cmd.Context(), age)
			for _, path := range result.Removed {
				fmt.Fprintf(out, "Removed %s\n", path)
			}
			for _, failure := range result.Errors {
				fmt.Fprintf(cmd.ErrOrStderr(), "Failed to remove %s: %v\n", failure.Path, failure.Err)
			}
			fmt.Fprintf(out, "Swept %d workspace(s) older than %s\n", len(result.Removed), age)
			if len(result.Errors) > 0 {
				return fmt.Errorf("%d workspace(s) could not be removed", len(result.Errors))
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "Minimum age to remove (default: jobs.stale_workspace_minutes)")
	cmd.Flags().BoolVar(&list, "list", false, "List job workspaces without removing anything")
	return cmd
}
