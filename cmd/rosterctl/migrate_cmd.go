package main

import (
	"fmt"

	"github.com/rpattn/rosterscd/internal/app"

	"github.com/spf13/cobra"
)

func newMigrateCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the run audit migrations to the configured store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			version, err := app.Migrate(cfg)
			if err != nil {
				return err
			}
			logger.WithField("driver", cfg.Store.Driver).Info("migrations applied")
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "schema version %d\n", version)
			return err
		},
	}
}
