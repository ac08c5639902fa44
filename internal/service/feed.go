package service

import (
	"log/slog"
	"sync"

	"github.com/anchorhq/anchor/internal/domain"
)

// subscriberBuffer is the per-subscriber channel depth. A subscriber
// that falls further behind than this loses events; agents recover on
// their next full sync, so dropping is safe.
const subscriberBuffer = 16

// FeedHub fans session change events out to per-user subscribers.
// Publishing never blocks.
type FeedHub struct {
	mu   sync.RWMutex
	subs map[int64]map[chan domain.ChangeEvent]struct{}
}

// NewFeedHub creates an empty hub.
func NewFeedHub() *FeedHub {
	return &FeedHub{subs: make(map[int64]map[chan domain.ChangeEvent]struct{})}
}

// Subscribe registers a new subscriber for the user's events. The
// returned cancel function unregisters the subscriber and closes the
// channel; it is safe to call more than once.
func (h *FeedHub) Subscribe(userID int64) (<-chan domain.ChangeEvent, func()) {
	ch := make(chan domain.ChangeEvent, subscriberBuffer)

	h.mu.Lock()
	if h.subs[userID] == nil {
		h.subs[userID] = make(map[chan domain.ChangeEvent]struct{})
	}
	h.subs[userID][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs[userID], ch)
			if len(h.subs[userID]) == 0 {
				delete(h.subs, userID)
			}
			h.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Publish delivers the event to every subscriber of the user. Full
// subscriber channels are skipped.
func (h *FeedHub) Publish(userID int64, ev domain.ChangeEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.subs[userID] {
		select {
		case ch <- ev:
		default:
			slog.Warn("feed subscriber lagging, dropping event", "user_id", userID, "kind", ev.Kind)
		}
	}
}

// Subscribers reports the number of active subscribers for a user.
func (h *FeedHub) Subscribers(userID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[userID])
}
