package main

import (
	"github.com/rpattn/rosterscd/internal/domain"

	"github.com/spf13/cobra"
)

func newRunCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run <bucket> <object>",
		Short: "Reconcile one export into its versioned table",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.build(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			summary, runErr := a.Orchestrator.Run(cmd.Context(), domain.Trigger{Bucket: args[0], Name: args[1]})
			if err := writeJSON(cmd.OutOrStdout(), summary); err != nil {
				return err
			}
			return runErr
		},
	}
}
