// Package listener maintains the device's subscription to the session
// change feed and drives a reconciliation sync on every event.
package listener

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/anchorhq/anchor/internal/agent/engine"
	"github.com/anchorhq/anchor/internal/domain"
)

// Subscription is a live change-feed connection.
type Subscription interface {
	Close() error
}

// Feed opens change-feed subscriptions. The transport authenticates
// with the cached credential, so the subscription is scoped to the
// signed-in user.
type Feed interface {
	Subscribe(ctx context.Context, onEvent func(domain.ChangeEvent)) (Subscription, error)
}

// Syncer is the engine surface the listener drives.
type Syncer interface {
	Sync(ctx context.Context, reason string) (engine.SyncOutcome, error)
}

// Manager keeps exactly one subscription alive, keyed by user id. When
// the signed-in user changes the old subscription is torn down before a
// new one is opened; stale subscriptions for a previous user must never
// be left running.
type Manager struct {
	feed   Feed
	syncer Syncer
	log    *slog.Logger

	mu      sync.Mutex
	current Subscription
	userID  int64
}

// NewManager creates a Manager over the given feed and syncer.
func NewManager(feed Feed, syncer Syncer, log *slog.Logger) *Manager {
	return &Manager{feed: feed, syncer: syncer, log: log}
}

// EnsureSubscribed makes sure a subscription for the user is running.
// If one already exists for the same user it is kept, unless force is
// set (used after manual re-authentication flows). Subscribing for a
// different user tears the previous subscription down first.
func (m *Manager) EnsureSubscribed(ctx context.Context, userID int64, force bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil && m.userID == userID && !force {
		return nil
	}
	m.teardownLocked()

	sub, err := m.feed.Subscribe(ctx, m.onEvent)
	if err != nil {
		return fmt.Errorf("subscribe change feed: %w", err)
	}

	m.current = sub
	m.userID = userID
	m.log.Info("change feed subscribed", "user_id", userID, "forced", force)
	return nil
}

// Teardown closes the current subscription, if any.
func (m *Manager) Teardown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.teardownLocked()
}

// Subscribed reports whether a subscription is active and for which user.
func (m *Manager) Subscribed() (int64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.userID, m.current != nil
}

func (m *Manager) teardownLocked() {
	if m.current == nil {
		return
	}
	if err := m.current.Close(); err != nil {
		m.log.Warn("close change feed", "error", err, "user_id", m.userID)
	}
	m.current = nil
	m.userID = 0
}

func (m *Manager) onEvent(ev domain.ChangeEvent) {
	// Events carry the row payloads, but the engine re-fetches the
	// authoritative state itself; the event is only the wake-up.
	if _, err := m.syncer.Sync(context.Background(), "realtime:"+string(ev.Kind)); err != nil {
		m.log.Warn("realtime sync", "error", err, "kind", ev.Kind)
	}
}
