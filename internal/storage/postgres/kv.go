package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const defaultSnapshotTable = "dashboard_snapshots"

// SnapshotStore is a Postgres implementation of the snapshot store. Every
// dashboard process of a profile points at the same table, which stands in
// for the shared per-origin storage.
type SnapshotStore struct {
	db    *sql.DB
	table string
}

// Option configures the snapshot store.
type Option func(*SnapshotStore)

// WithTable overrides the table name.
func WithTable(table string) Option {
	return func(store *SnapshotStore) {
		if table != "" {
			store.table = table
		}
	}
}

// NewSnapshotStore constructs a snapshot store.
func NewSnapshotStore(db *sql.DB, opts ...Option) *SnapshotStore {
	store := &SnapshotStore{db: db, table: defaultSnapshotTable}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// Get returns the stored value, or nil when the key is absent.
func (s *SnapshotStore) Get(ctx context.Context, key string) ([]byte, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("snapshot store: nil db")
	}
	query := fmt.Sprintf(`
SELECT value
FROM %s
WHERE key = $1`, s.table)

	var value []byte
	err := s.db.QueryRowContext(ctx, query, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return value, nil
}

// Set upserts value under key, last write wins.
func (s *SnapshotStore) Set(ctx context.Context, key string, value []byte) error {
	if s == nil || s.db == nil {
		return errors.New("snapshot store: nil db")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (key, value, updated_at)
VALUES ($1, $2, $3)
ON CONFLICT (key)
DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`, s.table)

	_, err := s.db.ExecContext(ctx, query, key, value, time.Now().UTC())
	return err
}
