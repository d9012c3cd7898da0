package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rpattn/rosterscd/internal/domain"
	"github.com/rpattn/rosterscd/internal/ingestion"
	"github.com/rpattn/rosterscd/internal/logging"
	"github.com/rpattn/rosterscd/internal/metrics"
	"github.com/rpattn/rosterscd/internal/reconcile"
	"github.com/rpattn/rosterscd/internal/repository"
	"github.com/rpattn/rosterscd/internal/source"
	"github.com/rpattn/rosterscd/pkg/validator"

	"github.com/sirupsen/logrus"
)

// Dependencies are the collaborators of an Orchestrator.
type Dependencies struct {
	Source    source.Source
	Ingestion *ingestion.Service
	Store     repository.RosterRepository
	// Runs and Logs are optional. Without them no audit rows are written.
	Runs repository.RunRepository
	Logs repository.IngestionLogRepository
}

// Options configures an Orchestrator.
type Options struct {
	// Table pins the target table. Empty derives it from the object name.
	Table    string
	Now      func() time.Time
	Location *time.Location
	Logger   *logrus.Entry
	// Metrics is optional.
	Metrics *metrics.Metrics
}

// Orchestrator runs one read-reconcile-write cycle per trigger.
type Orchestrator struct {
	deps      Dependencies
	table     string
	now       func() time.Time
	engine    *reconcile.Engine
	validator *validator.RecordValidator
	metrics   *metrics.Metrics
	logger    *logrus.Entry
}

// Result is a run summary together with the reconciliation plan it was built from.
type Result struct {
	Summary domain.RunSummary
	Plan    reconcile.Plan
}

// New creates an Orchestrator.
func New(deps Dependencies, opts Options) *Orchestrator {
	o := &Orchestrator{
		deps:    deps,
		table:   opts.Table,
		now:     opts.Now,
		metrics: opts.Metrics,
		logger:  logging.OrNop(opts.Logger),
	}
	if o.now == nil {
		o.now = time.Now
	}

	schema := deps.Ingestion.Schema()
	o.engine = reconcile.NewEngine(reconcile.Options{
		Schema:   schema,
		Now:      o.now,
		Location: opts.Location,
		Logger:   o.logger,
	})
	o.validator = validator.NewRecordValidator(schema)
	return o
}

// Run reconciles the object named by trigger into its versioned table and appends the result.
// Per-key failures are reported in the summary and do not fail the run.
func (o *Orchestrator) Run(ctx context.Context, trigger domain.Trigger) (domain.RunSummary, error) {
	result, err := o.execute(ctx, trigger, false)
	return result.Summary, err
}

// Plan computes what Run would append without writing anything.
func (o *Orchestrator) Plan(ctx context.Context, trigger domain.Trigger) (Result, error) {
	return o.execute(ctx, trigger, true)
}

// TableFor returns the table a trigger resolves to.
func (o *Orchestrator) TableFor(trigger domain.Trigger) string {
	if o.table != "" {
		return o.table
	}
	return domain.TableNameFor(trigger.Name)
}

func (o *Orchestrator) execute(ctx context.Context, trigger domain.Trigger, dryRun bool) (Result, error) {
	summary := domain.NewRunSummary(trigger, o.TableFor(trigger), o.now())
	summary.DryRun = dryRun

	logger := o.logger.WithFields(logrus.Fields{
		"run_id": summary.RunID.String(),
		"table":  summary.Table,
		"bucket": trigger.Bucket,
		"object": trigger.Name,
	})

	if err := trigger.Validate(); err != nil {
		o.fail(ctx, logger, &summary, err)
		return Result{Summary: summary}, err
	}

	if !dryRun {
		release, err := o.deps.Store.Lock(ctx, summary.Table)
		if err != nil {
			if errors.Is(err, domain.ErrRunInProgress) {
				logger.Warn("run rejected, table is locked")
				if o.metrics != nil {
					o.metrics.LockConflict(summary.Table)
				}
			}
			err = domain.NewError(domain.KindStore, "lock "+summary.Table, err)
			o.fail(ctx, logger, &summary, err)
			return Result{Summary: summary}, err
		}
		defer release()
	}

	logger.Info("run started")

	plan, err := o.process(ctx, logger, &summary, dryRun)
	if err != nil {
		o.fail(ctx, logger, &summary, err)
		return Result{Summary: summary, Plan: plan}, err
	}

	summary.ResolveStatus()
	o.finish(ctx, logger, &summary, nil)
	return Result{Summary: summary, Plan: plan}, nil
}

func (o *Orchestrator) process(ctx context.Context, logger *logrus.Entry, summary *domain.RunSummary, dryRun bool) (reconcile.Plan, error) {
	trigger := summary.Trigger
	table := summary.Table

	object, err := o.deps.Source.Open(ctx, trigger)
	if err != nil {
		return reconcile.Plan{}, domain.NewError(domain.KindIngestion, "open "+trigger.URI(), err)
	}
	defer object.Body.Close()

	batch, err := o.deps.Ingestion.Load(ctx, ingestion.Request{FileName: trigger.Name, Data: object.Body})
	if err != nil {
		if domain.KindOf(err) == "" {
			err = domain.NewError(domain.KindIngestion, "load "+trigger.Name, err)
		}
		return reconcile.Plan{}, err
	}
	summary.Counts.RowsRead = batch.RowsRead
	summary.Counts.RowsDropped = batch.RowsDropped
	summary.Warnings = append(summary.Warnings, batch.Warnings...)
	records := o.validateRecords(summary, batch.Records)

	state, err := o.deps.Store.TableState(ctx, table)
	if err != nil {
		return reconcile.Plan{}, domain.NewError(domain.KindStore, "table state", err)
	}

	var existing []domain.EntityRecord
	switch state {
	case repository.TableNotFound:
		logger.Info("table not found, initial load")
		if !dryRun {
			if err := o.deps.Store.EnsureSchema(ctx, table); err != nil {
				return reconcile.Plan{}, domain.NewError(domain.KindStore, "create table", err)
			}
		}
	case repository.TableEmpty:
		logger.Info("table is empty, initial load")
	default:
		snapshot, err := o.deps.Store.FetchCurrent(ctx, table)
		if err != nil {
			return reconcile.Plan{}, domain.NewError(domain.KindStore, "fetch current", err)
		}
		existing = snapshot.Records
		for _, id := range snapshot.CorruptIDs {
			summary.Warnings = append(summary.Warnings, domain.DataQualityWarning{
				EntityID: id,
				Reason:   "stored history has several open versions, latest start used",
			})
		}
		if snapshot.DroppedRows > 0 {
			summary.Counts.RowsDropped += snapshot.DroppedRows
			summary.Warnings = append(summary.Warnings, domain.DataQualityWarning{
				Reason: fmt.Sprintf("%d stored rows without identifier ignored", snapshot.DroppedRows),
			})
		}
		logger.WithFields(logrus.Fields{
			"current": len(existing),
			"corrupt": len(snapshot.CorruptIDs),
		}).Debug("fetched current snapshot")
	}

	plan := o.engine.Reconcile(existing, records)
	summary.Counts.Unchanged = plan.Stats.Unchanged
	summary.Counts.AppendedNew = plan.Stats.New
	summary.Counts.AppendedChanged = plan.Stats.Changed
	summary.Counts.Skipped += plan.Stats.Skipped
	summary.KeyErrors = append(summary.KeyErrors, plan.Errors...)

	if err := o.validator.ValidateTimeline(plan.Appends).Err(); err != nil {
		return plan, domain.NewError(domain.KindReconciliation, "validate plan", err)
	}

	if dryRun || plan.Empty() {
		if dryRun {
			summary.Counts.RowsAppended = len(plan.Appends)
		}
		return plan, nil
	}

	appended, err := o.deps.Store.Append(ctx, table, plan.Appends, repository.AppendOptions{
		RunID:    summary.RunID,
		LoadedAt: o.now(),
	})
	if err != nil {
		return plan, domain.NewError(domain.KindStore, "append", err)
	}
	summary.Counts.RowsAppended = appended
	return plan, nil
}

// validateRecords checks incoming records against the schema. A record that fails
// is left out of reconciliation and reported as a key error.
func (o *Orchestrator) validateRecords(summary *domain.RunSummary, records []domain.EntityRecord) []domain.EntityRecord {
	valid := make([]domain.EntityRecord, 0, len(records))
	for _, record := range records {
		result := o.validator.ValidateRecord(record)
		for _, warning := range result.Warnings {
			summary.Warnings = append(summary.Warnings, domain.DataQualityWarning{
				Column:   warning.Field,
				EntityID: warning.EntityID,
				Reason:   warning.Message,
			})
		}
		if result.IsValid {
			valid = append(valid, record)
			continue
		}
		summary.Counts.Skipped++
		for _, verr := range result.Errors {
			summary.KeyErrors = append(summary.KeyErrors, domain.KeyError{
				EntityID: record.EntityID,
				Field:    verr.Field,
				Err:      domain.NewError(domain.KindDataQuality, "validate record", verr),
			})
		}
	}
	return valid
}

func (o *Orchestrator) fail(ctx context.Context, logger *logrus.Entry, summary *domain.RunSummary, err error) {
	summary.Status = domain.RunStatusFailed
	summary.Error = err.Error()
	logger.WithError(err).WithField("kind", domain.KindOf(err)).Error("run failed")
	o.finish(ctx, logger, summary, err)
}

func (o *Orchestrator) finish(ctx context.Context, logger *logrus.Entry, summary *domain.RunSummary, failure error) {
	summary.FinishedAt = o.now()

	if o.metrics != nil {
		o.metrics.ObserveRun(*summary)
	}

	fields := logrus.Fields{
		"status":          summary.Status,
		"rows_read":       summary.Counts.RowsRead,
		"rows_dropped":    summary.Counts.RowsDropped,
		"unchanged":       summary.Counts.Unchanged,
		"appended_new":    summary.Counts.AppendedNew,
		"appended_change": summary.Counts.AppendedChanged,
		"skipped":         summary.Counts.Skipped,
		"rows_appended":   summary.Counts.RowsAppended,
		"warnings":        len(summary.Warnings),
		"duration":        summary.FinishedAt.Sub(summary.StartedAt).String(),
	}
	if summary.DryRun {
		logger.WithFields(fields).Info("plan complete")
		return
	}
	logger.WithFields(fields).Info("run complete")

	// The audit trail is written even when the caller gave up on the run.
	auditCtx := context.WithoutCancel(ctx)
	if o.deps.Runs != nil {
		if err := o.deps.Runs.Record(auditCtx, *summary); err != nil {
			logger.WithError(err).Error("failed to record run")
		}
	}
	if o.deps.Logs != nil {
		entries := auditEntries(*summary, failure)
		if len(entries) == 0 {
			return
		}
		if err := o.deps.Logs.Record(auditCtx, entries); err != nil {
			logger.WithError(err).Error("failed to record ingestion logs")
		}
	}
}

func auditEntries(summary domain.RunSummary, failure error) []domain.IngestionLogEntry {
	entries := make([]domain.IngestionLogEntry, 0, len(summary.Warnings)+len(summary.KeyErrors)+1)
	for _, warning := range summary.Warnings {
		entries = append(entries, domain.IngestionLogFromWarning(summary, warning))
	}
	for _, keyErr := range summary.KeyErrors {
		entries = append(entries, domain.IngestionLogFromKeyError(summary, keyErr))
	}
	if failure != nil {
		kind := domain.KindOf(failure)
		if kind == "" {
			kind = domain.KindStore
		}
		entries = append(entries, domain.IngestionLogEntry{
			RunID:        summary.RunID,
			TableName:    summary.Table,
			FileName:     summary.Trigger.Name,
			Kind:         kind,
			ErrorMessage: failure.Error(),
		})
	}
	return entries
}
