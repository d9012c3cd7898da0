package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rpattn/rosterscd/internal/domain"
)

type sqliteRosterRepository struct {
	tableLocks

	db   *sql.DB
	cols []column
}

// NewSQLiteRosterRepository returns a store backed by a SQLite database.
// Dates are stored as YYYY-MM-DD text and loaded_at as RFC 3339 text.
func NewSQLiteRosterRepository(db *sql.DB, schema domain.RosterSchema) RosterRepository {
	return &sqliteRosterRepository{db: db, cols: rosterColumns(schema)}
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (r *sqliteRosterRepository) TableState(ctx context.Context, table string) (TableState, error) {
	var name string
	err := r.db.QueryRowContext(ctx, `SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return TableNotFound, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up table %s: %w", table, err)
	}

	var exists int
	if err := r.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s)`, quoteIdent(table))).Scan(&exists); err != nil {
		return "", fmt.Errorf("failed to count rows in %s: %w", table, err)
	}
	if exists == 0 {
		return TableEmpty, nil
	}
	return TableFound, nil
}

func (r *sqliteRosterRepository) EnsureSchema(ctx context.Context, table string) error {
	defs := make([]string, 0, len(r.cols)+2)
	for _, col := range r.cols {
		def := quoteIdent(col.name) + " TEXT"
		if col.name == domain.FieldEntityID || col.name == domain.FieldStartDate {
			def += " NOT NULL"
		}
		defs = append(defs, def)
	}
	defs = append(defs, quoteIdent(columnRunID)+" TEXT", quoteIdent(columnLoadedAt)+" TEXT NOT NULL")

	statements := []string{
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)", quoteIdent(table), strings.Join(defs, ",\n\t")),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s, %s)",
			quoteIdent("idx_"+table+"_entity_start"), quoteIdent(table), quoteIdent(domain.FieldEntityID), quoteIdent(domain.FieldStartDate)),
	}
	for _, stmt := range statements {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create table %s: %w", table, err)
		}
	}
	return nil
}

func (r *sqliteRosterRepository) FetchCurrent(ctx context.Context, table string) (CurrentSnapshot, error) {
	rows, err := r.selectRows(ctx, table, "")
	if err != nil {
		return CurrentSnapshot{}, err
	}
	return snapshotFromRows(rows), nil
}

func (r *sqliteRosterRepository) History(ctx context.Context, table string, entityID string) ([]domain.EntityRecord, error) {
	rows, err := r.selectRows(ctx, table, entityID)
	if err != nil {
		return nil, err
	}
	return domain.LogicalRows(rows), nil
}

func (r *sqliteRosterRepository) selectRows(ctx context.Context, table string, entityID string) ([]domain.StoredRecord, error) {
	state, err := r.TableState(ctx, table)
	if err != nil {
		return nil, err
	}
	if state == TableNotFound {
		return nil, fmt.Errorf("%w: %s", domain.ErrTableNotFound, table)
	}

	names := physicalColumns(r.cols)
	quoted := make([]string, len(names))
	for i, name := range names {
		quoted[i] = quoteIdent(name)
	}
	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(quoted, ", "), quoteIdent(table))
	var args []any
	if entityID != "" {
		query += fmt.Sprintf(" WHERE %s = ?", quoteIdent(domain.FieldEntityID))
		args = append(args, entityID)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	var out []domain.StoredRecord
	for rows.Next() {
		raw := make([]sql.NullString, len(names))
		targets := make([]any, len(names))
		for i := range raw {
			targets[i] = &raw[i]
		}
		if err := rows.Scan(targets...); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", table, err)
		}

		values := make([]any, len(r.cols))
		for i, col := range r.cols {
			if !raw[i].Valid {
				continue
			}
			if col.typ == domain.FieldTypeDate {
				ts, err := time.Parse(domain.DateLayout, raw[i].String)
				if err != nil {
					return nil, fmt.Errorf("column %s holds invalid date %q: %w", col.name, raw[i].String, err)
				}
				values[i] = ts
				continue
			}
			values[i] = raw[i].String
		}

		stored := domain.StoredRecord{EntityRecord: decodeRecord(r.cols, values)}
		stored.RunID = raw[len(r.cols)].String
		if loadedAt := raw[len(r.cols)+1]; loadedAt.Valid {
			if ts, err := time.Parse(time.RFC3339Nano, loadedAt.String); err == nil {
				stored.LoadedAt = ts
			}
		}
		out = append(out, stored)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate %s: %w", table, err)
	}
	return out, nil
}

func (r *sqliteRosterRepository) Append(ctx context.Context, table string, records []domain.EntityRecord, opts AppendOptions) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	loadedAt := opts.LoadedAt
	if loadedAt.IsZero() {
		loadedAt = time.Now()
	}

	names := physicalColumns(r.cols)
	quoted := make([]string, len(names))
	placeholders := make([]string, len(names))
	for i, name := range names {
		quoted[i] = quoteIdent(name)
		placeholders[i] = "?"
	}
	stmtText := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(table), strings.Join(quoted, ", "), strings.Join(placeholders, ", "))

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, stmtText)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare insert into %s: %w", table, err)
	}
	defer func() { _ = stmt.Close() }()

	for _, record := range records {
		values, err := encodeRecord(r.cols, record)
		if err != nil {
			return 0, err
		}
		for i, value := range values {
			if ts, ok := value.(time.Time); ok {
				values[i] = ts.Format(domain.DateLayout)
			}
		}
		values = append(values, opts.RunID.String(), loadedAt.UTC().Format(time.RFC3339Nano))
		if _, err := stmt.ExecContext(ctx, values...); err != nil {
			return 0, fmt.Errorf("failed to insert entity %s into %s: %w", record.EntityID, table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit append to %s: %w", table, err)
	}
	return len(records), nil
}
