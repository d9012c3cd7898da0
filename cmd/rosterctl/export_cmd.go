package main

import (
	"fmt"
	"io"
	"os"

	"github.com/rpattn/rosterscd/internal/export"

	"github.com/spf13/cobra"
)

func newExportCmd(opts *globalOptions) *cobra.Command {
	var (
		formatName string
		outPath    string
		entityID   string
	)

	cmd := &cobra.Command{
		Use:   "export <table>",
		Short: "Write the current snapshot of a table, or one entity's history, as CSV or XLSX",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := export.ParseFormat(formatName)
			if err != nil {
				return err
			}

			a, err := opts.build(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			var w io.Writer = cmd.OutOrStdout()
			if outPath != "" {
				f, err := os.Create(outPath)
				if err != nil {
					return fmt.Errorf("create %s: %w", outPath, err)
				}
				defer f.Close()
				w = f
			}

			table := args[0]
			if entityID != "" {
				_, err = a.Exporter.ExportHistory(cmd.Context(), table, entityID, format, w)
			} else {
				_, err = a.Exporter.ExportCurrent(cmd.Context(), table, format, w)
			}
			return err
		},
	}

	cmd.Flags().StringVar(&formatName, "format", "csv", "Output format (csv, xlsx)")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Output file (default stdout)")
	cmd.Flags().StringVar(&entityID, "entity", "", "Export the history of one entity instead of the current snapshot")
	return cmd
}
