package remote

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/anchorhq/anchor/internal/agent/listener"
	"github.com/anchorhq/anchor/internal/domain"
)

// Subscribe opens the change feed WebSocket and delivers each event to
// onEvent from a background goroutine until the connection drops or the
// subscription is closed. There is no automatic reconnect; the caller
// re-subscribes through the listener manager.
func (c *Client) Subscribe(ctx context.Context, onEvent func(domain.ChangeEvent)) (listener.Subscription, error) {
	token, err := c.token(ctx)
	if err != nil {
		return nil, err
	}

	url := wsURL(c.baseURL) + "/api/feed"
	header := http.Header{"Authorization": []string{"Bearer " + token}}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, domain.ErrUnauthenticated
		}
		return nil, err
	}

	sub := &feedSubscription{conn: conn}
	go sub.readLoop(onEvent)
	return sub, nil
}

type feedSubscription struct {
	conn      *websocket.Conn
	closeOnce sync.Once
	closed    bool
	mu        sync.Mutex
}

func (s *feedSubscription) readLoop(onEvent func(domain.ChangeEvent)) {
	for {
		var ev domain.ChangeEvent
		if err := s.conn.ReadJSON(&ev); err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if !closed {
				slog.Warn("change feed read", "error", err)
			}
			return
		}
		onEvent(ev)
	}
}

func (s *feedSubscription) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		err = s.conn.Close()
	})
	return err
}

func wsURL(base string) string {
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://")
	default:
		return base
	}
}
