package main

import (
	"github.com/spf13/cobra"
)

func newHistoryCmd(opts *globalOptions) *cobra.Command {
	var runs int

	cmd := &cobra.Command{
		Use:   "history <table> [entity_id]",
		Short: "Print an entity timeline, or the recent runs of a table",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.build(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			table := args[0]
			if len(args) == 1 {
				summaries, err := a.Runs.ListRecent(cmd.Context(), table, runs)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), summaries)
			}

			timeline, err := a.Store.History(cmd.Context(), table, args[1])
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), timeline)
		},
	}

	cmd.Flags().IntVar(&runs, "runs", 20, "Number of recent runs to list when no entity is given")
	return cmd
}
