package localstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/anchorhq/anchor/internal/domain"
)

// ActiveMode returns the stored snapshot, or (nil, nil) when none.
func (s *Store) ActiveMode(ctx context.Context) (*domain.ActiveMode, error) {
	var mode domain.ActiveMode
	ok, err := s.getJSON(ctx, keyActiveMode, &mode)
	if err != nil || !ok {
		return nil, err
	}
	return &mode, nil
}

// SetActiveMode overwrites the snapshot.
func (s *Store) SetActiveMode(ctx context.Context, mode *domain.ActiveMode) error {
	return s.setJSON(ctx, keyActiveMode, mode)
}

// ClearActiveMode removes the snapshot.
func (s *Store) ClearActiveMode(ctx context.Context) error {
	return s.remove(ctx, keyActiveMode)
}

// Credential returns the cached credential, or (nil, nil) when signed out.
func (s *Store) Credential(ctx context.Context) (*domain.Credential, error) {
	var cred domain.Credential
	ok, err := s.getJSON(ctx, keyCredential, &cred)
	if err != nil || !ok {
		return nil, err
	}
	return &cred, nil
}

// SetCredential caches the signed-in user's credential.
func (s *Store) SetCredential(ctx context.Context, cred *domain.Credential) error {
	return s.setJSON(ctx, keyCredential, cred)
}

// ClearCredential removes the cached credential.
func (s *Store) ClearCredential(ctx context.Context) error {
	return s.remove(ctx, keyCredential)
}

func (s *Store) getJSON(ctx context.Context, key string, dst any) (bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM kv WHERE key = ?", key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("get %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(value), dst); err != nil {
		return false, fmt.Errorf("unmarshal %s: %w", key, err)
	}
	return true, nil
}

func (s *Store) setJSON(ctx context.Context, key string, v any) error {
	value, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO kv (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, string(value),
	)
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

func (s *Store) remove(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM kv WHERE key = ?", key); err != nil {
		return fmt.Errorf("remove %s: %w", key, err)
	}
	return nil
}
