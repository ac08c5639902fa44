package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/anchorhq/anchor/internal/domain"
)

// SessionService owns session rows and publishes change events for
// every mutation. Insert and Deactivate are deliberately separate
// primitives: the device engine performs its deactivate-then-insert
// sequence as two calls with no transaction around them, and the
// resulting race under concurrent starts is resolved by readers taking
// the most recently started active row.
type SessionService struct {
	sessions domain.SessionRepository
	hub      *FeedHub
}

// NewSessionService creates a new SessionService.
func NewSessionService(sessions domain.SessionRepository, hub *FeedHub) *SessionService {
	return &SessionService{sessions: sessions, hub: hub}
}

// Active returns the user's most recently started active session.
func (s *SessionService) Active(ctx context.Context, userID int64) (*domain.Session, error) {
	return s.sessions.GetActiveByUser(ctx, userID)
}

// Insert stores a new active session for the user and publishes an
// insert event. The mode snapshot comes from the caller; the server
// never resolves mode ids, modes live on devices.
func (s *SessionService) Insert(ctx context.Context, userID int64, session *domain.Session) (*domain.Session, error) {
	if session.ModeID == "" || session.ModeName == "" {
		return nil, fmt.Errorf("%w: mode id and name are required", domain.ErrValidation)
	}
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	session.UserID = userID
	session.Active = true
	session.StoppedAt = nil

	if err := s.sessions.Insert(ctx, session); err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}

	s.hub.Publish(userID, domain.ChangeEvent{Kind: domain.ChangeInsert, After: session})
	return session, nil
}

// Deactivate marks every active session of the user inactive with a
// stop timestamp and publishes an update event per affected row.
// Returns the number of rows deactivated.
func (s *SessionService) Deactivate(ctx context.Context, userID int64) (int, error) {
	before, err := s.sessions.ListActiveByUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("list active sessions: %w", err)
	}
	if len(before) == 0 {
		return 0, nil
	}

	stoppedAt := time.Now().UTC()
	if _, err := s.sessions.DeactivateAllByUser(ctx, userID, stoppedAt); err != nil {
		return 0, fmt.Errorf("deactivate sessions: %w", err)
	}

	for i := range before {
		prev := before[i]
		next := prev
		next.Active = false
		next.StoppedAt = &stoppedAt
		s.hub.Publish(userID, domain.ChangeEvent{Kind: domain.ChangeUpdate, Before: &prev, After: &next})
	}
	return len(before), nil
}

// Delete removes a session owned by the user and publishes a delete
// event. Normal stop flows never delete rows; this is the cascade path
// for account or mode removal.
func (s *SessionService) Delete(ctx context.Context, userID int64, id string) error {
	session, err := s.sessions.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if session.UserID != userID {
		return domain.ErrUnauthorized
	}

	if err := s.sessions.Delete(ctx, id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return err
		}
		return fmt.Errorf("delete session: %w", err)
	}

	s.hub.Publish(userID, domain.ChangeEvent{Kind: domain.ChangeDelete, Before: session})
	return nil
}
