package repository

import (
	"context"
	"fmt"

	"github.com/rpattn/rosterscd/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ingestionLogRepository struct {
	pool *pgxpool.Pool
}

// NewIngestionLogRepository wires a repository backed by pgxpool.
func NewIngestionLogRepository(pool *pgxpool.Pool) IngestionLogRepository {
	return &ingestionLogRepository{pool: pool}
}

func (r *ingestionLogRepository) Record(ctx context.Context, entries []domain.IngestionLogEntry) error {
	if r.pool == nil {
		return fmt.Errorf("ingestion log repository not initialized")
	}
	if len(entries) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, entry := range entries {
		if entry.ID == uuid.Nil {
			entry.ID = uuid.New()
		}

		var rowNumber any
		if entry.RowNumber != nil {
			rowNumber = *entry.RowNumber
		}
		var entityID any
		if entry.EntityID != "" {
			entityID = entry.EntityID
		}

		batch.Queue(
			`INSERT INTO ingestion_logs (id, run_id, table_name, file_name, kind, row_number, entity_id, error_message)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			entry.ID,
			entry.RunID,
			entry.TableName,
			entry.FileName,
			string(entry.Kind),
			rowNumber,
			entityID,
			entry.ErrorMessage,
		)
	}

	if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to record ingestion logs: %w", err)
	}
	return nil
}

func (r *ingestionLogRepository) List(ctx context.Context, runID uuid.UUID, limit int, offset int) ([]domain.IngestionLogEntry, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("ingestion log repository not initialized")
	}

	if limit <= 0 {
		limit = 200
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := r.pool.Query(
		ctx,
		`SELECT id, run_id, table_name, file_name, kind, row_number, entity_id, error_message, created_at
		 FROM ingestion_logs
		 WHERE run_id = $1
		 ORDER BY created_at, row_number NULLS LAST
		 LIMIT $2 OFFSET $3`,
		runID,
		limit,
		offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list ingestion logs: %w", err)
	}
	defer rows.Close()

	logs := []domain.IngestionLogEntry{}
	for rows.Next() {
		var (
			entry     domain.IngestionLogEntry
			kind      string
			rowNumber pgtype.Int4
			entityID  pgtype.Text
			createdAt pgtype.Timestamptz
		)
		if scanErr := rows.Scan(
			&entry.ID,
			&entry.RunID,
			&entry.TableName,
			&entry.FileName,
			&kind,
			&rowNumber,
			&entityID,
			&entry.ErrorMessage,
			&createdAt,
		); scanErr != nil {
			return nil, fmt.Errorf("failed to scan ingestion log: %w", scanErr)
		}

		entry.Kind = domain.ErrorKind(kind)
		if rowNumber.Valid {
			value := int(rowNumber.Int32)
			entry.RowNumber = &value
		}
		if entityID.Valid {
			entry.EntityID = entityID.String
		}
		if createdAt.Valid {
			entry.CreatedAt = createdAt.Time
		}

		logs = append(logs, entry)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate ingestion logs: %w", rowsErr)
	}

	return logs, nil
}
