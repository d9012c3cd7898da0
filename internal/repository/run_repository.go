package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/rpattn/rosterscd/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrRunNotFound is returned when no run matches the requested id.
var ErrRunNotFound = errors.New("run not found")

type runRepository struct {
	pool *pgxpool.Pool
}

// NewRunRepository wires a run summary repository backed by pgxpool.
func NewRunRepository(pool *pgxpool.Pool) RunRepository {
	return &runRepository{pool: pool}
}

const runColumns = `id, table_name, bucket, object_name, status, dry_run,
	rows_read, rows_dropped, unchanged, appended_new, appended_changed, skipped, rows_appended,
	error_message, started_at, finished_at`

func (r *runRepository) Record(ctx context.Context, summary domain.RunSummary) error {
	var errorMessage any
	if summary.Error != "" {
		errorMessage = summary.Error
	}

	_, err := r.pool.Exec(ctx,
		`INSERT INTO ingestion_runs (`+runColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		 ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			rows_read = EXCLUDED.rows_read,
			rows_dropped = EXCLUDED.rows_dropped,
			unchanged = EXCLUDED.unchanged,
			appended_new = EXCLUDED.appended_new,
			appended_changed = EXCLUDED.appended_changed,
			skipped = EXCLUDED.skipped,
			rows_appended = EXCLUDED.rows_appended,
			error_message = EXCLUDED.error_message,
			finished_at = EXCLUDED.finished_at`,
		summary.RunID,
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
		errorMessage,
		summary.StartedAt,
		summary.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record run %s: %w", summary.RunID, err)
	}
	return nil
}

func (r *runRepository) Get(ctx context.Context, runID uuid.UUID) (domain.RunSummary, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+runColumns+` FROM ingestion_runs WHERE id = $1`, runID)
	summary, err := scanRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.RunSummary{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return domain.RunSummary{}, fmt.Errorf("failed to get run %s: %w", runID, err)
	}
	return summary, nil
}

func (r *runRepository) ListRecent(ctx context.Context, table string, limit int) ([]domain.RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+runColumns+` FROM ingestion_runs
		 WHERE ($1 = '' OR table_name = $1)
		 ORDER BY started_at DESC
		 LIMIT $2`,
		table, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []domain.RunSummary{}
	for rows.Next() {
		summary, err := scanRun(rows)
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

func scanRun(row pgx.Row) (domain.RunSummary, error) {
	var (
		summary      domain.RunSummary
		status       string
		errorMessage pgtype.Text
	)
	err := row.Scan(
		&summary.RunID,
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
		&summary.StartedAt,
		&summary.FinishedAt,
	)
	if err != nil {
		return domain.RunSummary{}, err
	}
	summary.Status = domain.RunStatus(status)
	if errorMessage.Valid {
		summary.Error = errorMessage.String
	}
	summary.Warnings = []domain.DataQualityWarning{}
	summary.KeyErrors = []domain.KeyError{}
	return summary, nil
}
