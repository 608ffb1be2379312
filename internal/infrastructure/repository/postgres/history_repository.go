package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kirillkom/autofund-client/internal/core/domain"
)

const defaultListLimit = 20

type HistoryRepository struct {
	db *sql.DB
}

func NewHistoryRepository(db *sql.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

func OpenDB(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *HistoryRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Several clients may share one history database.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2024110701)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS analysis_history (
	task_id TEXT PRIMARY KEY,
	nif TEXT NOT NULL DEFAULT '',
	fiscal_year TEXT NOT NULL DEFAULT '',
	company_name TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	rating TEXT,
	error_message TEXT,
	created_at TIMESTAMPTZ NOT NULL,
	completed_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_analysis_history_created_at ON analysis_history(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_analysis_history_nif ON analysis_history(nif);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

// RecordTask inserts or refreshes the history row of a task. Metadata
// already stored is kept when the new entry does not carry it.
func (r *HistoryRepository) RecordTask(ctx context.Context, entry domain.HistoryEntry) error {
	if entry.TaskID == "" {
		return domain.WrapError(domain.ErrInvalidInput, "record task", errors.New("task id is required"))
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, `
INSERT INTO analysis_history (task_id, nif, fiscal_year, company_name, status, rating, error_message, created_at, completed_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT (task_id) DO UPDATE SET
	nif = COALESCE(NULLIF(EXCLUDED.nif, ''), analysis_history.nif),
	fiscal_year = COALESCE(NULLIF(EXCLUDED.fiscal_year, ''), analysis_history.fiscal_year),
	company_name = COALESCE(NULLIF(EXCLUDED.company_name, ''), analysis_history.company_name),
	status = EXCLUDED.status,
	rating = COALESCE(EXCLUDED.rating, analysis_history.rating),
	error_message = EXCLUDED.error_message,
	completed_at = COALESCE(EXCLUDED.completed_at, analysis_history.completed_at)
`,
		entry.TaskID, entry.NIF, entry.FiscalYear, entry.CompanyName, string(entry.Status),
		nullableString(entry.Rating), nullableString(entry.Error), entry.CreatedAt, entry.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("record task: %w", err)
	}
	return nil
}

func (r *HistoryRepository) ListRecent(ctx context.Context, limit int) ([]domain.HistoryEntry, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT task_id, nif, fiscal_year, company_name, status, COALESCE(rating, ''), COALESCE(error_message, ''), created_at, completed_at
FROM analysis_history
ORDER BY created_at DESC
LIMIT $1
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	out := make([]domain.HistoryEntry, 0, limit)
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan history entry: %w", err)
		}
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return out, nil
}

func (r *HistoryRepository) GetByTaskID(ctx context.Context, taskID string) (*domain.HistoryEntry, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT task_id, nif, fiscal_year, company_name, status, COALESCE(rating, ''), COALESCE(error_message, ''), created_at, completed_at
FROM analysis_history
WHERE task_id = $1
`, taskID)

	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "get history entry", fmt.Errorf("task %s", taskID))
		}
		return nil, fmt.Errorf("get history entry: %w", err)
	}
	return &entry, nil
}

type entryScanner interface {
	Scan(dest ...interface{}) error
}

func scanEntry(row entryScanner) (domain.HistoryEntry, error) {
	var entry domain.HistoryEntry
	var status string
	var completedAt sql.NullTime
	err := row.Scan(
		&entry.TaskID,
		&entry.NIF,
		&entry.FiscalYear,
		&entry.CompanyName,
		&status,
		&entry.Rating,
		&entry.Error,
		&entry.CreatedAt,
		&completedAt,
	)
	if err != nil {
		return domain.HistoryEntry{}, err
	}
	entry.Status = domain.TaskStatus(status)
	if completedAt.Valid {
		t := completedAt.Time
		entry.CompletedAt = &t
	}
	return entry, nil
}

func nullableString(v string) interface{} {
	if v == "" {
		return nil
	}
	return v
}
