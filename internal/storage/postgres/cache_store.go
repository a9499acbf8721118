package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/cefr-dataset/internal/vocab"
)

// CacheStore keeps result cache entries as rows keyed by word. Unlike the
// snapshot backend it only writes the entries that changed since the last
// flush.
type CacheStore struct {
	db    DB
	table string
}

// NewCacheStore constructs a CacheStore over an existing pool.
func NewCacheStore(db DB, table string) (*CacheStore, error) {
	if db == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "cefr_cache"
	}
	if err := ValidateTableName(table); err != nil {
		return nil, err
	}
	return &CacheStore{db: db, table: table}, nil
}

// EnsureSchema creates the cache table when it does not exist.
func (s *CacheStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	word TEXT PRIMARY KEY,
	level TEXT NOT NULL,
	definition TEXT NOT NULL DEFAULT '',
	synonyms TEXT NOT NULL DEFAULT '',
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`, s.table)
	if _, err := s.db.Exec(ctx, query); err != nil {
		return fmt.Errorf("create cache table: %w", err)
	}
	return nil
}

// Load reads every cached row.
func (s *CacheStore) Load(ctx context.Context) (map[string]vocab.Record, error) {
	query := fmt.Sprintf(`SELECT word, level, definition, synonyms FROM %s`, s.table)
	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query cache: %w", err)
	}
	defer rows.Close()

	entries := make(map[string]vocab.Record)
	for rows.Next() {
		var rec vocab.Record
		if err := rows.Scan(&rec.Word, &rec.Level, &rec.Definition, &rec.Synonyms); err != nil {
			return nil, fmt.Errorf("scan cache row: %w", err)
		}
		entries[vocab.Key(rec.Word)] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cache rows: %w", err)
	}
	return entries, nil
}

// Store upserts the changed entries in a single transaction.
func (s *CacheStore) Store(ctx context.Context, entries map[string]vocab.Record, changed []string) error {
	if len(changed) == 0 {
		return nil
	}
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin cache flush: %w", err)
	}
	query := fmt.Sprintf(`
INSERT INTO %s (word, level, definition, synonyms, updated_at)
VALUES ($1, $2, $3, $4, now())
ON CONFLICT (word) DO UPDATE
SET level = EXCLUDED.level,
	definition = EXCLUDED.definition,
	synonyms = EXCLUDED.synonyms,
	updated_at = EXCLUDED.updated_at`, s.table)

	for _, key := range changed {
		rec, ok := entries[key]
		if !ok {
			continue
		}
		if _, err := tx.Exec(ctx, query, key, rec.Level, rec.Definition, rec.Synonyms); err != nil {
			return rollback(ctx, tx, fmt.Errorf("upsert cache row %q: %w", key, err))
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit cache flush: %w", err)
	}
	return nil
}

func rollback(ctx context.Context, tx pgx.Tx, cause error) error {
	if err := tx.Rollback(ctx); err != nil {
		return fmt.Errorf("%w (rollback: %v)", cause, err)
	}
	return cause
}
