// Package postgres is the shared cache backend for multi-worker deployments
// where several builds reuse one explanation store.
package postgres

import (
	"context"
	"database/sql"
	"strings"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib"

	t "repopilot/internal/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS explanation_cache (
    fingerprint TEXT PRIMARY KEY,
    explanation TEXT NOT NULL,
    model       TEXT NOT NULL DEFAULT '',
    created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
    composite   BOOLEAN NOT NULL DEFAULT FALSE,
    truncated   BOOLEAN NOT NULL DEFAULT FALSE
)`

type Store struct {
	db *sql.DB

	schemaOnce sync.Once
	schemaErr  error
}

func New(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", strings.TrimSpace(dsn))
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	s.schemaOnce.Do(func() {
		_, s.schemaErr = s.db.ExecContext(ctx, schema)
	})
	return s.schemaErr
}

func (s *Store) Get(ctx context.Context, fp t.Fingerprint) (t.CacheEntry, bool, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return t.CacheEntry{}, false, err
	}
	var e t.CacheEntry
	row := s.db.QueryRowContext(ctx,
		`SELECT fingerprint, explanation, model, created_at, composite, truncated
		   FROM explanation_cache WHERE fingerprint = $1`, string(fp))
	err := row.Scan(&e.Fingerprint, &e.Explanation, &e.Model, &e.CreatedAt, &e.Composite, &e.Truncated)
	if err == sql.ErrNoRows {
		return t.CacheEntry{}, false, nil
	}
	if err != nil {
		return t.CacheEntry{}, false, err
	}
	return e, true, nil
}

func (s *Store) PutIfAbsent(ctx context.Context, entry t.CacheEntry) (t.CacheEntry, bool, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return t.CacheEntry{}, false, err
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO explanation_cache
		     (fingerprint, explanation, model, created_at, composite, truncated)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (fingerprint) DO NOTHING`,
		string(entry.Fingerprint), entry.Explanation, entry.Model,
		entry.CreatedAt, entry.Composite, entry.Truncated)
	if err != nil {
		return t.CacheEntry{}, false, err
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return entry, true, nil
	}
	winner, ok, err := s.Get(ctx, entry.Fingerprint)
	if err != nil || !ok {
		return entry, false, err
	}
	return winner, false, nil
}

func (s *Store) Close() error { return s.db.Close() }
