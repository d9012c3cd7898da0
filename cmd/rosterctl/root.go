package main

import (
	"fmt"

	"github.com/rpattn/rosterscd/internal/app"
	"github.com/rpattn/rosterscd/internal/config"
	"github.com/rpattn/rosterscd/internal/logging"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type globalOptions struct {
	configPath string
	logLevel   string
	store      string
	source     string
	table      string
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:          "rosterctl",
		Short:        "Load roster exports into versioned tables",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", ".", "Directory containing config.yaml")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Override log.level")
	cmd.PersistentFlags().StringVar(&opts.store, "store", "", "Override store.driver (postgres, sqlite, memory)")
	cmd.PersistentFlags().StringVar(&opts.source, "source", "", "Override source.driver (s3, file)")
	cmd.PersistentFlags().StringVar(&opts.table, "table", "", "Override store.table")

	cmd.AddCommand(
		newRunCmd(opts),
		newPlanCmd(opts),
		newMigrateCmd(opts),
		newHistoryCmd(opts),
		newSchemaCmd(opts),
		newExportCmd(opts),
	)
	return cmd
}

func (o *globalOptions) load() (config.Config, *logrus.Logger, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return config.Config{}, nil, err
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	if o.store != "" {
		cfg.Store.Driver = o.store
	}
	if o.source != "" {
		cfg.Source.Driver = o.source
	}
	if o.table != "" {
		cfg.Store.Table = o.table
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, nil, err
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger, nil
}

func (o *globalOptions) build(cmd *cobra.Command) (*app.App, error) {
	cfg, logger, err := o.load()
	if err != nil {
		return nil, err
	}
	a, err := app.Build(cmd.Context(), cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("initialise pipeline: %w", err)
	}
	return a, nil
}
