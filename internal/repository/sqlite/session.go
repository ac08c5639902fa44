package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/anchorhq/anchor/internal/domain"
)

// SessionRepository implements domain.SessionRepository using SQLite.
// The website list is stored as a JSON array in a TEXT column.
type SessionRepository struct {
	db *sql.DB
}

// NewSessionRepository creates a new SQLite-backed SessionRepository.
func NewSessionRepository(db *DB) *SessionRepository {
	return &SessionRepository{db: db.SqlDB}
}

const sessionColumns = `id, user_id, mode_id, mode_name, websites, active, started_at, stopped_at, created_at`

func (r *SessionRepository) Insert(ctx context.Context, session *domain.Session) error {
	now := time.Now().UTC()
	if session.StartedAt.IsZero() {
		session.StartedAt = now
	}

	websites, err := json.Marshal(session.Websites)
	if err != nil {
		return fmt.Errorf("marshal websites: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO blocking_sessions (`+sessionColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		session.ID, session.UserID, session.ModeID, session.ModeName,
		string(websites), session.Active, session.StartedAt, session.StoppedAt, now,
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}

	session.CreatedAt = now
	return nil
}

func (r *SessionRepository) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM blocking_sessions WHERE id = ?`, id)
	session, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	return session, nil
}

func (r *SessionRepository) GetActiveByUser(ctx context.Context, userID int64) (*domain.Session, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM blocking_sessions
		 WHERE user_id = ? AND active = 1
		 ORDER BY started_at DESC LIMIT 1`, userID)
	session, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get active session: %w", err)
	}
	return session, nil
}

func (r *SessionRepository) ListActiveByUser(ctx context.Context, userID int64) ([]domain.Session, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM blocking_sessions
		 WHERE user_id = ? AND active = 1
		 ORDER BY started_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list active sessions: %w", err)
	}
	defer rows.Close()

	var sessions []domain.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, *session)
	}
	return sessions, rows.Err()
}

func (r *SessionRepository) DeactivateAllByUser(ctx context.Context, userID int64, stoppedAt time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE blocking_sessions SET active = 0, stopped_at = ?
		 WHERE user_id = ? AND active = 1`,
		stoppedAt.UTC(), userID,
	)
	if err != nil {
		return 0, fmt.Errorf("deactivate sessions: %w", err)
	}
	return result.RowsAffected()
}

func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM blocking_sessions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*domain.Session, error) {
	s := &domain.Session{}
	var websites string
	if err := row.Scan(&s.ID, &s.UserID, &s.ModeID, &s.ModeName, &websites,
		&s.Active, &s.StartedAt, &s.StoppedAt, &s.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(websites), &s.Websites); err != nil {
		return nil, fmt.Errorf("unmarshal websites: %w", err)
	}
	return s, nil
}
