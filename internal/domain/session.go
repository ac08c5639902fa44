package domain

import (
	"context"
	"time"
)

// Session is the shared record of an active blocking period. The mode
// name and website list are denormalized: they are a snapshot taken at
// activation time, not a live link to the mode.
//
// At most one session per user should have Active=true. The invariant
// is enforced by the device-side engine (deactivate-then-insert), not
// by the store, so concurrent starts from two devices can leave extra
// active rows behind; readers resolve this by taking the most recently
// started row.
type Session struct {
	ID        string     `json:"id"`
	UserID    int64      `json:"user_id"`
	ModeID    string     `json:"mode_id"`
	ModeName  string     `json:"mode_name"`
	Websites  []string   `json:"websites"`
	Active    bool       `json:"active"`
	StartedAt time.Time  `json:"started_at"`
	StoppedAt *time.Time `json:"stopped_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// SessionRepository defines persistence operations for blocking sessions.
type SessionRepository interface {
	Insert(ctx context.Context, session *Session) error
	GetByID(ctx context.Context, id string) (*Session, error)
	// GetActiveByUser returns the most recently started active session
	// for the user, or ErrNotFound when there is none.
	GetActiveByUser(ctx context.Context, userID int64) (*Session, error)
	ListActiveByUser(ctx context.Context, userID int64) ([]Session, error)
	// DeactivateAllByUser marks every active session of the user inactive
	// with the given stop timestamp and returns how many rows changed.
	DeactivateAllByUser(ctx context.Context, userID int64, stoppedAt time.Time) (int64, error)
	Delete(ctx context.Context, id string) error
}
