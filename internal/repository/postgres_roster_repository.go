package repository

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
	"time"

	"github.com/rpattn/rosterscd/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

const pgUndefinedTable = "42P01"

type postgresRosterRepository struct {
	pool       *pgxpool.Pool
	schemaName string
	cols       []column
}

// NewPostgresRosterRepository wires a roster store backed by pgxpool. Tables
// live in schemaName, "public" when empty.
func NewPostgresRosterRepository(pool *pgxpool.Pool, schemaName string, schema domain.RosterSchema) RosterRepository {
	if schemaName == "" {
		schemaName = "public"
	}
	return &postgresRosterRepository{pool: pool, schemaName: schemaName, cols: rosterColumns(schema)}
}

func (r *postgresRosterRepository) ident(table string) string {
	return pgx.Identifier{r.schemaName, table}.Sanitize()
}

func (r *postgresRosterRepository) TableState(ctx context.Context, table string) (TableState, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM information_schema.tables
			WHERE table_schema = $1 AND table_name = $2
		)`,
		r.schemaName, table,
	).Scan(&exists)
	if err != nil {
		return "", fmt.Errorf("failed to look up table %s: %w", table, err)
	}
	if !exists {
		return TableNotFound, nil
	}

	var hasRows bool
	if err := r.pool.QueryRow(ctx, fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s)`, r.ident(table))).Scan(&hasRows); err != nil {
		return "", fmt.Errorf("failed to probe table %s: %w", table, err)
	}
	if !hasRows {
		return TableEmpty, nil
	}
	return TableFound, nil
}

func (r *postgresRosterRepository) EnsureSchema(ctx context.Context, table string) error {
	defs := make([]string, 0, len(r.cols)+2)
	for _, col := range r.cols {
		sqlType := "TEXT"
		if col.typ == domain.FieldTypeDate {
			sqlType = "DATE"
		}
		def := pgx.Identifier{col.name}.Sanitize() + " " + sqlType
		if col.name == domain.FieldEntityID || col.name == domain.FieldStartDate {
			def += " NOT NULL"
		}
		defs = append(defs, def)
	}
	defs = append(defs,
		pgx.Identifier{columnRunID}.Sanitize()+" TEXT",
		pgx.Identifier{columnLoadedAt}.Sanitize()+" TIMESTAMPTZ NOT NULL DEFAULT now()",
	)

	ddl := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)", r.ident(table), strings.Join(defs, ",\n\t"))
	if _, err := r.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create table %s: %w", table, err)
	}

	index := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (entity_id, start_date, loaded_at DESC)",
		pgx.Identifier{"idx_" + table + "_entity_start"}.Sanitize(), r.ident(table))
	if _, err := r.pool.Exec(ctx, index); err != nil {
		return fmt.Errorf("failed to index table %s: %w", table, err)
	}
	return nil
}

func (r *postgresRosterRepository) selectList() string {
	names := physicalColumns(r.cols)
	quoted := make([]string, len(names))
	for i, name := range names {
		quoted[i] = pgx.Identifier{name}.Sanitize()
	}
	return strings.Join(quoted, ", ")
}

// logicalQuery selects one row per (entity_id, start_date): the latest loaded,
// then the latest end date with open rows last.
func (r *postgresRosterRepository) logicalQuery(table string, where string) string {
	return fmt.Sprintf(`SELECT %[1]s FROM (
		SELECT %[1]s,
			ROW_NUMBER() OVER (
				PARTITION BY entity_id, start_date
				ORDER BY loaded_at DESC, end_date DESC NULLS LAST
			) AS logical_rank
		FROM %[2]s
		WHERE entity_id IS NOT NULL AND entity_id <> '' %[3]s
	) logical
	WHERE logical_rank = 1`, r.selectList(), r.ident(table), where)
}

func (r *postgresRosterRepository) FetchCurrent(ctx context.Context, table string) (CurrentSnapshot, error) {
	query := fmt.Sprintf(`SELECT %[1]s, open_versions FROM (
		SELECT %[1]s,
			MAX(start_date) OVER (PARTITION BY entity_id) AS latest_start,
			COUNT(*) FILTER (WHERE end_date IS NULL) OVER (PARTITION BY entity_id) AS open_versions
		FROM (%[2]s) versions
	) ranked
	WHERE start_date = latest_start
	ORDER BY entity_id`, r.selectList(), r.logicalQuery(table, ""))

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return CurrentSnapshot{}, r.wrapErr(table, "fetch current", err)
	}
	defer rows.Close()

	snapshot := CurrentSnapshot{Records: []domain.EntityRecord{}}
	for rows.Next() {
		var openVersions int64
		stored, err := r.scanRow(rows, &openVersions)
		if err != nil {
			return CurrentSnapshot{}, err
		}
		snapshot.Records = append(snapshot.Records, stored.EntityRecord)
		if openVersions > 1 {
			snapshot.CorruptIDs = append(snapshot.CorruptIDs, stored.EntityID)
		}
	}
	if err := rows.Err(); err != nil {
		return CurrentSnapshot{}, r.wrapErr(table, "fetch current", err)
	}

	var dropped int
	err = r.pool.QueryRow(ctx, fmt.Sprintf(
		`SELECT COUNT(*) FROM %s WHERE entity_id IS NULL OR entity_id = ''`, r.ident(table),
	)).Scan(&dropped)
	if err != nil {
		return CurrentSnapshot{}, r.wrapErr(table, "count rows without identifier", err)
	}
	snapshot.DroppedRows = dropped

	return snapshot, nil
}

func (r *postgresRosterRepository) History(ctx context.Context, table string, entityID string) ([]domain.EntityRecord, error) {
	query := r.logicalQuery(table, "AND entity_id = $1") + " ORDER BY start_date"
	rows, err := r.pool.Query(ctx, query, entityID)
	if err != nil {
		return nil, r.wrapErr(table, "history", err)
	}
	defer rows.Close()

	history := []domain.EntityRecord{}
	for rows.Next() {
		stored, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		history = append(history, stored.EntityRecord)
	}
	if err := rows.Err(); err != nil {
		return nil, r.wrapErr(table, "history", err)
	}
	return history, nil
}

func (r *postgresRosterRepository) scanRow(rows pgx.Rows, extra ...any) (domain.StoredRecord, error) {
	targets := make([]any, 0, len(r.cols)+2+len(extra))
	for _, col := range r.cols {
		if col.typ == domain.FieldTypeDate {
			targets = append(targets, &pgtype.Date{})
		} else {
			targets = append(targets, &pgtype.Text{})
		}
	}
	var (
		runID    pgtype.Text
		loadedAt pgtype.Timestamptz
	)
	targets = append(targets, &runID, &loadedAt)
	targets = append(targets, extra...)

	if err := rows.Scan(targets...); err != nil {
		return domain.StoredRecord{}, fmt.Errorf("failed to scan roster row: %w", err)
	}

	values := make([]any, len(r.cols))
	for i := range r.cols {
		switch target := targets[i].(type) {
		case *pgtype.Date:
			if target.Valid {
				values[i] = target.Time
			}
		case *pgtype.Text:
			if target.Valid {
				values[i] = target.String
			}
		}
	}

	stored := domain.StoredRecord{EntityRecord: decodeRecord(r.cols, values)}
	if runID.Valid {
		stored.RunID = runID.String
	}
	if loadedAt.Valid {
		stored.LoadedAt = loadedAt.Time
	}
	return stored, nil
}

func (r *postgresRosterRepository) Append(ctx context.Context, table string, records []domain.EntityRecord, opts AppendOptions) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	loadedAt := opts.LoadedAt
	if loadedAt.IsZero() {
		loadedAt = time.Now()
	}

	rows := make([][]any, 0, len(records))
	for _, record := range records {
		values, err := encodeRecord(r.cols, record)
		if err != nil {
			return 0, err
		}
		rows = append(rows, append(values, opts.RunID.String(), loadedAt))
	}

	copied, err := r.pool.CopyFrom(ctx, pgx.Identifier{r.schemaName, table}, physicalColumns(r.cols), pgx.CopyFromRows(rows))
	if err != nil {
		return 0, r.wrapErr(table, "append", err)
	}
	return int(copied), nil
}

// Lock takes a session advisory lock keyed by the table name on a dedicated
// connection, which is held until the returned release func runs.
func (r *postgresRosterRepository) Lock(ctx context.Context, table string) (func(), error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection for lock: %w", err)
	}

	key := advisoryKey(r.schemaName + "." + table)
	var locked bool
	if err := conn.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", key).Scan(&locked); err != nil {
		conn.Release()
		return nil, fmt.Errorf("failed to acquire advisory lock: %w", err)
	}
	if !locked {
		conn.Release()
		return nil, domain.ErrRunInProgress
	}

	return func() {
		_ = releaseAdvisoryLock(context.Background(), conn.Conn(), key)
		conn.Release()
	}, nil
}

// sessionConn is the part of *pgx.Conn that holds a session advisory lock.
type sessionConn interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close(ctx context.Context) error
}

// releaseAdvisoryLock unlocks key on conn. When the unlock fails the connection is
// closed, which ends the session and its locks, so the pool destroys it on release.
func releaseAdvisoryLock(ctx context.Context, conn sessionConn, key int64) error {
	var unlocked bool
	err := conn.QueryRow(ctx, "SELECT pg_advisory_unlock($1)", key).Scan(&unlocked)
	if err == nil && !unlocked {
		err = fmt.Errorf("advisory lock %d was not held", key)
	}
	if err != nil {
		if closeErr := conn.Close(ctx); closeErr != nil {
			return errors.Join(err, closeErr)
		}
		return err
	}
	return nil
}

func advisoryKey(name string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	return int64(h.Sum64())
}

func (r *postgresRosterRepository) wrapErr(table, op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUndefinedTable {
		return fmt.Errorf("%w: %s", domain.ErrTableNotFound, table)
	}
	return fmt.Errorf("failed to %s on %s: %w", op, table, err)
}
