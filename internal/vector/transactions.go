package vector

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/codeintel/server/internal/models"
	"github.com/codeintel/server/internal/xerrors"
)

const transactionSchema = `
CREATE TABLE IF NOT EXISTS transaction_records (
    id            text PRIMARY KEY,
    project_id    text NOT NULL,
    kind          text NOT NULL,
    files_total   integer NOT NULL,
    files_failed  integer NOT NULL,
    started_at    timestamptz NOT NULL,
    finished_at   timestamptz,
    error_message text
);

CREATE INDEX IF NOT EXISTS transaction_records_project_idx
    ON transaction_records (project_id, started_at DESC);
`

// TransactionStore persists the build-transaction history used to answer health/status queries and to
// reconcile the advisory hash manifest after a crash. It uses database/sql
// via sqlx rather than pgxpool because its access pattern is row-oriented
// struct scanning, not batched vector upserts.
type TransactionStore struct {
	db *sqlx.DB
}

// NewTransactionStore opens a database/sql connection over pgx's stdlib
// driver and ensures the transaction_records table exists.
func NewTransactionStore(ctx context.Context, connString string) (*TransactionStore, error) {
	db, err := sqlx.Open("pgx", connString)
	if err != nil {
		return nil, xerrors.DatabaseErrorf("opening transaction store: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, xerrors.DatabaseErrorf("pinging transaction store: %w", err)
	}
	if _, err := db.ExecContext(ctx, transactionSchema); err != nil {
		db.Close()
		return nil, xerrors.DatabaseErrorf("applying transaction store schema: %w", err)
	}
	return &TransactionStore{db: db}, nil
}

func (s *TransactionStore) Close() error {
	return s.db.Close()
}

type transactionRow struct {
	ID           string     `db:"id"`
	ProjectID    string     `db:"project_id"`
	Kind         string     `db:"kind"`
	FilesTotal   int        `db:"files_total"`
	FilesFailed  int        `db:"files_failed"`
	StartedAt    time.Time  `db:"started_at"`
	FinishedAt   *time.Time `db:"finished_at"`
	ErrorMessage *string    `db:"error_message"`
}

// Record inserts or replaces a TransactionRecord.
func (s *TransactionStore) Record(ctx context.Context, rec models.TransactionRecord) error {
	row := transactionRow{
		ID:          rec.ID,
		ProjectID:   rec.ProjectID,
		Kind:        rec.Kind,
		FilesTotal:  rec.FilesTotal,
		FilesFailed: rec.FilesFailed,
		StartedAt:   rec.StartedAt,
	}
	if !rec.FinishedAt.IsZero() {
		row.FinishedAt = &rec.FinishedAt
	}
	if rec.Err != "" {
		row.ErrorMessage = &rec.Err
	}

	const stmt = `
		INSERT INTO transaction_records (id, project_id, kind, files_total, files_failed, started_at, finished_at, error_message)
		VALUES (:id, :project_id, :kind, :files_total, :files_failed, :started_at, :finished_at, :error_message)
		ON CONFLICT (id) DO UPDATE SET
			files_total   = EXCLUDED.files_total,
			files_failed  = EXCLUDED.files_failed,
			finished_at   = EXCLUDED.finished_at,
			error_message = EXCLUDED.error_message`

	_, err := s.db.NamedExecContext(ctx, stmt, row)
	if err != nil {
		return xerrors.DatabaseErrorf("recording transaction %s: %w", rec.ID, err)
	}
	return nil
}

// Recent returns the most recent transactions for a project, newest first.
func (s *TransactionStore) Recent(ctx context.Context, projectID string, limit int) ([]models.TransactionRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	var rows []transactionRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, project_id, kind, files_total, files_failed, started_at, finished_at, error_message
		FROM transaction_records
		WHERE project_id = $1
		ORDER BY started_at DESC
		LIMIT $2`, projectID, limit)
	if err != nil {
		return nil, xerrors.DatabaseErrorf("listing transactions for %s: %w", projectID, err)
	}

	out := make([]models.TransactionRecord, 0, len(rows))
	for _, r := range rows {
		rec := models.TransactionRecord{
			ID:          r.ID,
			ProjectID:   r.ProjectID,
			Kind:        r.Kind,
			FilesTotal:  r.FilesTotal,
			FilesFailed: r.FilesFailed,
			StartedAt:   r.StartedAt,
		}
		if r.FinishedAt != nil {
			rec.FinishedAt = *r.FinishedAt
		}
		if r.ErrorMessage != nil {
			rec.Err = *r.ErrorMessage
		}
		out = append(out, rec)
	}
	return out, nil
}
