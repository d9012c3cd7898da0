package main

import (
	"github.com/rpattn/rosterscd/internal/app"
	"github.com/rpattn/rosterscd/internal/ingestion"

	"github.com/spf13/cobra"
)

func newSchemaCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the effective roster schema as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := opts.load()
			if err != nil {
				return err
			}
			schema, err := app.LoadSchema(cfg.Ingestion)
			if err != nil {
				return err
			}
			raw, err := ingestion.MarshalSchema(schema)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(raw)
			return err
		},
	}
}
