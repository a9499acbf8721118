package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// ProgressStore keeps the progress cursor as one row per job name.
type ProgressStore struct {
	db    DB
	table string
	job   string
}

// NewProgressStore constructs a ProgressStore over an existing pool.
func NewProgressStore(db DB, table, job string) (*ProgressStore, error) {
	if db == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "cefr_progress"
	}
	if err := ValidateTableName(table); err != nil {
		return nil, err
	}
	if job == "" {
		return nil, fmt.Errorf("job name is required")
	}
	return &ProgressStore{db: db, table: table, job: job}, nil
}

// EnsureSchema creates the progress table when it does not exist.
func (s *ProgressStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	job TEXT PRIMARY KEY,
	last_index BIGINT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`, s.table)
	if _, err := s.db.Exec(ctx, query); err != nil {
		return fmt.Errorf("create progress table: %w", err)
	}
	return nil
}

// Load returns the saved cursor for the job, or 0 when none exists.
func (s *ProgressStore) Load(ctx context.Context) (int, error) {
	query := fmt.Sprintf(`SELECT last_index FROM %s WHERE job = $1`, s.table)
	var cursor int64
	if err := s.db.QueryRow(ctx, query, s.job).Scan(&cursor); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("load progress: %w", err)
	}
	if cursor < 0 {
		return 0, nil
	}
	return int(cursor), nil
}

// Save upserts the cursor for the job.
func (s *ProgressStore) Save(ctx context.Context, cursor int) error {
	if cursor < 0 {
		return fmt.Errorf("cursor must be >= 0, got %d", cursor)
	}
	query := fmt.Sprintf(`
INSERT INTO %s (job, last_index, updated_at)
VALUES ($1, $2, now())
ON CONFLICT (job) DO UPDATE
SET last_index = EXCLUDED.last_index,
	updated_at = EXCLUDED.updated_at`, s.table)
	if _, err := s.db.Exec(ctx, query, s.job, int64(cursor)); err != nil {
		return fmt.Errorf("save progress: %w", err)
	}
	return nil
}
