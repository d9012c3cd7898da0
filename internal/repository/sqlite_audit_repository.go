package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rpattn/rosterscd/internal/domain"

	"github.com/google/uuid"
)

type sqliteIngestionLogRepository struct {
	db *sql.DB
}

// NewSQLiteIngestionLogRepository stores ingestion logs in SQLite.
func NewSQLiteIngestionLogRepository(db *sql.DB) IngestionLogRepository {
	return &sqliteIngestionLogRepository{db: db}
}

func (r *sqliteIngestionLogRepository) Record(ctx context.Context, entries []domain.IngestionLogEntry) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	for _, entry := range entries {
		if entry.ID == uuid.Nil {
			entry.ID = uuid.New()
		}
		createdAt := entry.CreatedAt
		if createdAt.IsZero() {
			createdAt = now
		}
		var rowNumber any
		if entry.RowNumber != nil {
			rowNumber = *entry.RowNumber
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO ingestion_logs (id, run_id, table_name, file_name, kind, row_number, entity_id, error_message, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			entry.ID.String(),
			entry.RunID.String(),
			entry.TableName,
			entry.FileName,
			string(entry.Kind),
			rowNumber,
			entry.EntityID,
			entry.ErrorMessage,
			createdAt.Format(time.RFC3339Nano),
		)
		if err != nil {
			return fmt.Errorf("failed to record ingestion log: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit ingestion logs: %w", err)
	}
	return nil
}

func (r *sqliteIngestionLogRepository) List(ctx context.Context, runID uuid.UUID, limit int, offset int) ([]domain.IngestionLogEntry, error) {
	if limit <= 0 {
		limit = 200
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, run_id, table_name, file_name, kind, row_number, entity_id, error_message, created_at
		 FROM ingestion_logs
		 WHERE run_id = ?
		 ORDER BY created_at, row_number
		 LIMIT ? OFFSET ?`,
		runID.String(), limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list ingestion logs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	logs := []domain.IngestionLogEntry{}
	for rows.Next() {
		var (
			entry         domain.IngestionLogEntry
			id, run, kind string
			createdAt     string
			rowNumber     sql.NullInt64
			entityID      sql.NullString
		)
		if err := rows.Scan(&id, &run, &entry.TableName, &entry.FileName, &kind, &rowNumber, &entityID, &entry.ErrorMessage, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan ingestion log: %w", err)
		}
		entry.ID, _ = uuid.Parse(id)
		entry.RunID, _ = uuid.Parse(run)
		entry.Kind = domain.ErrorKind(kind)
		if rowNumber.Valid {
			value := int(rowNumber.Int64)
			entry.RowNumber = &value
		}
		entry.EntityID = entityID.String
		entry.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate ingestion logs: %w", err)
	}
	return logs, nil
}

type sqliteRunRepository struct {
	db *sql.DB
}

// NewSQLiteRunRepository stores run summaries in SQLite.
func NewSQLiteRunRepository(db *sql.DB) RunRepository {
	return &sqliteRunRepository{db: db}
}

func (r *sqliteRunRepository) Record(ctx context.Context, summary domain.RunSummary) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO ingestion_runs (`+runColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		summary.RunID.String(),
		summary.Table,
		summary.Trigger.Bucket,
		summary.Trigger.Name,
		string(summary.Status),
		summary.DryRun,
		summary.Counts.RowsRead,
		summary.Counts.RowsDropped,
		summary.Counts.Unchanged,
		summary.Counts.AppendedNew,
		summary.Counts.AppendedChanged,
		summary.Counts.Skipped,
		summary.Counts.RowsAppended,
		summary.Error,
		summary.StartedAt.UTC().Format(time.RFC3339Nano),
		summary.FinishedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to record run %s: %w", summary.RunID, err)
	}
	return nil
}

func (r *sqliteRunRepository) Get(ctx context.Context, runID uuid.UUID) (domain.RunSummary, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM ingestion_runs WHERE id = ?`, runID.String())
	summary, err := scanSQLiteRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.RunSummary{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return domain.RunSummary{}, fmt.Errorf("failed to get run %s: %w", runID, err)
	}
	return summary, nil
}

func (r *sqliteRunRepository) ListRecent(ctx context.Context, table string, limit int) ([]domain.RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM ingestion_runs
		 WHERE (? = '' OR table_name = ?)
		 ORDER BY started_at DESC
		 LIMIT ?`,
		table, table, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	runs := []domain.RunSummary{}
	for rows.Next() {
		summary, err := scanSQLiteRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}
	return runs, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteRun(row rowScanner) (domain.RunSummary, error) {
	var (
		summary               domain.RunSummary
		id, status            string
		errorMessage          sql.NullString
		startedAt, finishedAt string
	)
	err := row.Scan(
		&id,
		&summary.Table,
		&summary.Trigger.Bucket,
		&summary.Trigger.Name,
		&status,
		&summary.DryRun,
		&summary.Counts.RowsRead,
		&summary.Counts.RowsDropped,
		&summary.Counts.Unchanged,
		&summary.Counts.AppendedNew,
		&summary.Counts.AppendedChanged,
		&summary.Counts.Skipped,
		&summary.Counts.RowsAppended,
		&errorMessage,
		&startedAt,
		&finishedAt,
	)
	if err != nil {
		return domain.RunSummary{}, err
	}
	summary.RunID, _ = uuid.Parse(id)
	summary.Status = domain.RunStatus(status)
	summary.Error = errorMessage.String
	summary.StartedAt, _ = time.Parse(time.RFC3339Nano, startedAt)
	summary.FinishedAt, _ = time.Parse(time.RFC3339Nano, finishedAt)
	summary.Warnings = []domain.DataQualityWarning{}
	summary.KeyErrors = []domain.KeyError{}
	return summary, nil
}
