// Package localstore is the device-local persistent store: modes,
// schedules, and a small key/value area for the active-mode snapshot
// and the cached credential. It survives process restarts; it is never
// authoritative for session state, which the engine reconciles against
// the shared store.
package localstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/anchorhq/anchor/internal/domain"
)

const (
	keyActiveMode = "active_mode"
	keyCredential = "credential"
)

const schema = `
CREATE TABLE IF NOT EXISTS modes (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    websites TEXT NOT NULL DEFAULT '[]',
    created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS schedules (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    mode_id TEXT NOT NULL,
    start_time TEXT NOT NULL,
    weekdays TEXT NOT NULL DEFAULT '[]',
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at DATETIME NOT NULL,
    updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS kv (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`

// Store is a SQLite-backed local store.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the device database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open device db: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Modes returns all modes in creation order.
func (s *Store) Modes(ctx context.Context) ([]domain.Mode, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, websites, created_at FROM modes ORDER BY rowid")
	if err != nil {
		return nil, fmt.Errorf("list modes: %w", err)
	}
	defer rows.Close()

	var modes []domain.Mode
	for rows.Next() {
		var m domain.Mode
		var websites string
		if err := rows.Scan(&m.ID, &m.Name, &websites, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan mode: %w", err)
		}
		if err := json.Unmarshal([]byte(websites), &m.Websites); err != nil {
			return nil, fmt.Errorf("unmarshal websites: %w", err)
		}
		modes = append(modes, m)
	}
	return modes, rows.Err()
}

// GetMode returns a mode by id, or domain.ErrNotFound.
func (s *Store) GetMode(ctx context.Context, id string) (*domain.Mode, error) {
	m := &domain.Mode{}
	var websites string
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, websites, created_at FROM modes WHERE id = ?", id,
	).Scan(&m.ID, &m.Name, &websites, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("mode %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get mode: %w", err)
	}
	if err := json.Unmarshal([]byte(websites), &m.Websites); err != nil {
		return nil, fmt.Errorf("unmarshal websites: %w", err)
	}
	return m, nil
}

// PutMode inserts or rewrites a mode.
func (s *Store) PutMode(ctx context.Context, mode *domain.Mode) error {
	websites, err := json.Marshal(mode.Websites)
	if err != nil {
		return fmt.Errorf("marshal websites: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO modes (id, name, websites, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET name = excluded.name, websites = excluded.websites`,
		mode.ID, mode.Name, string(websites), mode.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("put mode: %w", err)
	}
	return nil
}

// DeleteMode removes a mode by id.
func (s *Store) DeleteMode(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM modes WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete mode: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("mode %s: %w", id, domain.ErrNotFound)
	}
	return nil
}
