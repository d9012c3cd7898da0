// Package app wires configuration into a ready-to-run pipeline.
package app

import (
	"context"
	"fmt"

	"github.com/rpattn/rosterscd/internal/config"
	"github.com/rpattn/rosterscd/internal/db"
	"github.com/rpattn/rosterscd/internal/domain"
	"github.com/rpattn/rosterscd/internal/export"
	"github.com/rpattn/rosterscd/internal/ingestion"
	"github.com/rpattn/rosterscd/internal/metrics"
	"github.com/rpattn/rosterscd/internal/pipeline"
	"github.com/rpattn/rosterscd/internal/repository"
	"github.com/rpattn/rosterscd/internal/source"

	"github.com/sirupsen/logrus"
)

// App holds the wired components of one process.
type App struct {
	Config       config.Config
	Logger       *logrus.Logger
	Schema       domain.RosterSchema
	Store        repository.RosterRepository
	Runs         repository.RunRepository
	Logs         repository.IngestionLogRepository
	Source       source.Source
	Orchestrator *pipeline.Orchestrator
	Exporter     *export.Service

	closers []func()
}

// Build connects the configured store and source and assembles the orchestrator.
func Build(ctx context.Context, cfg config.Config, logger *logrus.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger}

	schema, err := LoadSchema(cfg.Ingestion)
	if err != nil {
		return nil, err
	}
	a.Schema = schema

	if err := a.openStore(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.openSource(ctx); err != nil {
		a.Close()
		return nil, err
	}

	loc, err := cfg.Ingestion.Location()
	if err != nil {
		a.Close()
		return nil, err
	}

	entry := logrus.NewEntry(logger)
	normalizer := ingestion.NewNormalizer(ingestion.NormalizerOptions{
		Schema:              schema,
		AllowUnknownColumns: cfg.Ingestion.AllowUnknownColumns,
		DateOrder:           ingestion.DateOrder(cfg.Ingestion.DateOrder),
		Location:            loc,
		Logger:              entry.WithField("component", "normalizer"),
	})
	service := ingestion.NewService(normalizer, ingestion.ParseOptions{
		HeaderRowIndex: cfg.Ingestion.HeaderRowIndex(),
		Sheet:          cfg.Ingestion.Sheet,
	}, entry.WithField("component", "ingestion"))

	a.Orchestrator = pipeline.New(pipeline.Dependencies{
		Source:    a.Source,
		Ingestion: service,
		Store:     a.Store,
		Runs:      a.Runs,
		Logs:      a.Logs,
	}, pipeline.Options{
		Table:    cfg.Store.Table,
		Location: loc,
		Logger:   entry.WithField("component", "pipeline"),
		Metrics:  metrics.Get(),
	})
	a.Exporter = export.NewService(a.Store, schema, entry.WithField("component", "export"))

	return a, nil
}

// LoadSchema returns the schema file's roster schema, or the built-in one.
func LoadSchema(cfg config.IngestionConfig) (domain.RosterSchema, error) {
	if cfg.SchemaFile == "" {
		return domain.DefaultRosterSchema(), nil
	}
	return ingestion.LoadSchemaFile(cfg.SchemaFile)
}

// Migrate applies the bookkeeping migrations for the configured store.
func Migrate(cfg config.Config) (uint, error) {
	switch cfg.Store.Driver {
	case "postgres":
		return db.RunMigrations(db.DriverPostgres, cfg.Database.DB().URL("postgres"))
	case "sqlite":
		return db.RunMigrations(db.DriverSQLite, cfg.Store.SQLitePath)
	default:
		return 0, nil
	}
}

func (a *App) openStore(ctx context.Context) error {
	cfg := a.Config
	if cfg.Store.Migrate {
		version, err := Migrate(cfg)
		if err != nil {
			return err
		}
		a.Logger.WithFields(logrus.Fields{"driver": cfg.Store.Driver, "version": version}).Info("migrations applied")
	}

	switch cfg.Store.Driver {
	case "postgres":
		conn, err := db.NewConnection(ctx, cfg.Database.DB())
		if err != nil {
			return err
		}
		a.closers = append(a.closers, conn.Close)
		a.Store = repository.NewPostgresRosterRepository(conn.Pool, cfg.Store.Schema, a.Schema)
		a.Runs = repository.NewRunRepository(conn.Pool)
		a.Logs = repository.NewIngestionLogRepository(conn.Pool)
	case "sqlite":
		sqlDB, err := db.OpenSQLite(cfg.Store.SQLitePath)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func() { _ = sqlDB.Close() })
		a.Store = repository.NewSQLiteRosterRepository(sqlDB, a.Schema)
		a.Runs = repository.NewSQLiteRunRepository(sqlDB)
		a.Logs = repository.NewSQLiteIngestionLogRepository(sqlDB)
	case "memory":
		a.Store = repository.NewMemoryRosterRepository(a.Schema)
		a.Runs = repository.NewMemoryRunRepository()
		a.Logs = repository.NewMemoryIngestionLogRepository()
	default:
		return fmt.Errorf("unsupported store driver %q", cfg.Store.Driver)
	}
	return nil
}

func (a *App) openSource(ctx context.Context) error {
	cfg := a.Config.Source
	switch cfg.Driver {
	case "s3":
		src, err := source.NewS3Source(ctx, source.S3Config{
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			PathStyle:       cfg.S3.PathStyle,
		})
		if err != nil {
			return err
		}
		a.Source = src
	case "file":
		a.Source = source.NewFileSource(cfg.Root)
	default:
		return fmt.Errorf("unsupported source driver %q", cfg.Driver)
	}
	return nil
}

// Close releases connections in reverse order of opening.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
