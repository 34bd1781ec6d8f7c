// Package state persists small per-block JSON values in SQLite so toggles
// survive a reload or restart.
package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mattjoyce/barline/internal/storage"
)

const DefaultMaxStateBytes = 64 << 10

// Store implements block.StateStore on the block_state table.
type Store struct {
	db          *sql.DB
	ownsDB      bool
	maxStateBty int
	now         func() time.Time
}

// NewStore wraps an open database. The caller keeps ownership of db.
func NewStore(db *sql.DB) *Store {
	return &Store{
		db:          db,
		maxStateBty: DefaultMaxStateBytes,
		now:         time.Now,
	}
}

// Open opens the database at path and returns a Store that closes it.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := storage.OpenSQLite(ctx, path)
	if err != nil {
		return nil, err
	}
	s := NewStore(db)
	s.ownsDB = true
	return s, nil
}

// Get returns the raw state for key, or nil if missing.
func (s *Store) Get(ctx context.Context, key string) (json.RawMessage, error) {
	if key == "" {
		return nil, fmt.Errorf("state key is empty")
	}

	var raw string
	err := s.db.QueryRowContext(ctx, "SELECT state FROM block_state WHERE block_key = ?;", key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read block state: %w", err)
	}
	if !json.Valid([]byte(raw)) {
		return nil, fmt.Errorf("stored block state is invalid JSON for key=%q", key)
	}
	return json.RawMessage(raw), nil
}

// Load decodes the state for key into v. It reports false when nothing is stored.
func (s *Store) Load(ctx context.Context, key string, v any) (bool, error) {
	raw, err := s.Get(ctx, key)
	if err != nil || raw == nil {
		return false, err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("decode block state %q: %w", key, err)
	}
	return true, nil
}

// Save replaces the state for key with v.
func (s *Store) Save(ctx context.Context, key string, v any) error {
	if key == "" {
		return fmt.Errorf("state key is empty")
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal block state: %w", err)
	}
	if len(raw) > s.maxStateBty {
		return fmt.Errorf("block state exceeds max size (%d bytes)", s.maxStateBty)
	}

	now := s.now().UTC().Format(time.RFC3339Nano)
	_, err = s.db.ExecContext(ctx, `
INSERT INTO block_state(block_key, state, updated_at)
VALUES(?, ?, ?)
ON CONFLICT(block_key) DO UPDATE SET
  state = excluded.state,
  updated_at = excluded.updated_at;
`, key, string(raw), now)
	if err != nil {
		return fmt.Errorf("upsert block state: %w", err)
	}
	return nil
}

// Delete removes the state for key.
func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM block_state WHERE block_key = ?;", key); err != nil {
		return fmt.Errorf("delete block state: %w", err)
	}
	return nil
}

// Keys lists stored keys in order.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT block_key FROM block_state ORDER BY block_key;")
	if err != nil {
		return nil, fmt.Errorf("list block state: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// Close closes the database when the Store opened it.
func (s *Store) Close() error {
	if s == nil || !s.ownsDB {
		return nil
	}
	return s.db.Close()
}
