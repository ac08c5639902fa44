package remote_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/anchorhq/anchor/internal/agent/remote"
	"github.com/anchorhq/anchor/internal/domain"
)

type staticCreds struct {
	cred *domain.Credential
}

func (s *staticCreds) Credential(ctx context.Context) (*domain.Credential, error) {
	return s.cred, nil
}

func signedIn() *staticCreds {
	return &staticCreds{cred: &domain.Credential{UserID: 1, Token: "tok"}}
}

func TestLogin(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/auth/login", r.URL.Path)

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "user@example.com", body["email"])

		json.NewEncoder(w).Encode(map[string]any{"token": "signed-token", "user_id": 7})
	}))
	defer srv.Close()

	client := remote.NewClient(srv.URL, &staticCreds{})
	cred, err := client.Login(context.Background(), "user@example.com", "password123")
	require.NoError(t, err)
	require.Equal(t, int64(7), cred.UserID)
	require.Equal(t, "signed-token", cred.Token)
}

func TestLoginRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]string{"error": "invalid email or password"})
	}))
	defer srv.Close()

	client := remote.NewClient(srv.URL, &staticCreds{})
	_, err := client.Login(context.Background(), "user@example.com", "wrong")
	require.ErrorIs(t, err, domain.ErrUnauthenticated)
}

func TestQueryActive(t *testing.T) {
	started := time.Now().UTC().Truncate(time.Second)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		require.Equal(t, "/api/sessions/active", r.URL.Path)
		json.NewEncoder(w).Encode(domain.Session{
			ID: "s1", ModeID: "m1", ModeName: "Focus",
			Websites: []string{"youtube.com"}, Active: true, StartedAt: started,
		})
	}))
	defer srv.Close()

	client := remote.NewClient(srv.URL, signedIn())
	session, err := client.QueryActive(context.Background())
	require.NoError(t, err)
	require.Equal(t, "s1", session.ID)
	require.Equal(t, []string{"youtube.com"}, session.Websites)
	require.True(t, session.StartedAt.Equal(started))
}

func TestQueryActiveStatusMapping(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusNotFound, domain.ErrNotFound},
		{http.StatusUnauthorized, domain.ErrUnauthenticated},
		{http.StatusConflict, domain.ErrConflict},
	}
	for _, tc := range cases {
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
			}))
			defer srv.Close()

			client := remote.NewClient(srv.URL, signedIn())
			_, err := client.QueryActive(context.Background())
			require.ErrorIs(t, err, tc.want)
		})
	}
}

func TestQueryActiveWithoutCredential(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("request should not reach the server")
	}))
	defer srv.Close()

	client := remote.NewClient(srv.URL, &staticCreds{})
	_, err := client.QueryActive(context.Background())
	require.ErrorIs(t, err, domain.ErrUnauthenticated)
}

func TestInsertSendsSnapshot(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/sessions", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(domain.Session{ID: "s1", Active: true})
	}))
	defer srv.Close()

	client := remote.NewClient(srv.URL, signedIn())
	session := &domain.Session{
		ID: "s1", ModeID: "m1", ModeName: "Focus",
		Websites: []string{"youtube.com"}, StartedAt: time.Now().UTC(),
	}
	require.NoError(t, client.Insert(context.Background(), session))
	require.Equal(t, "m1", got["mode_id"])
	require.Equal(t, "Focus", got["mode_name"])
	require.NotEmpty(t, got["started_at"])
}

func TestDeactivateActive(t *testing.T) {
	var called bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		require.Equal(t, "/api/sessions/deactivate", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]int{"deactivated": 1})
	}))
	defer srv.Close()

	client := remote.NewClient(srv.URL, signedIn())
	require.NoError(t, client.DeactivateActive(context.Background()))
	require.True(t, called)
}

func TestDeleteSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodDelete, r.Method)
		require.Equal(t, "/api/sessions/s1", r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client := remote.NewClient(srv.URL, signedIn())
	require.NoError(t, client.DeleteSession(context.Background(), "s1"))
}

func TestSubscribeDeliversEvents(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/feed", r.URL.Path)
		require.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		conn.WriteJSON(domain.ChangeEvent{Kind: domain.ChangeInsert, After: &domain.Session{ID: "s1"}})
		// Hold the connection open until the client closes it.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	client := remote.NewClient(srv.URL, signedIn())

	var mu sync.Mutex
	var events []domain.ChangeEvent
	sub, err := client.Subscribe(context.Background(), func(ev domain.ChangeEvent) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	})
	require.NoError(t, err)
	defer sub.Close()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(events) == 1
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, domain.ChangeInsert, events[0].Kind)
	require.Equal(t, "s1", events[0].After.ID)
}

func TestSubscribeUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := remote.NewClient(srv.URL, signedIn())
	_, err := client.Subscribe(context.Background(), func(domain.ChangeEvent) {})
	require.ErrorIs(t, err, domain.ErrUnauthenticated)
}

func TestSubscribeWithoutCredential(t *testing.T) {
	client := remote.NewClient("http://127.0.0.1:0", &staticCreds{})
	_, err := client.Subscribe(context.Background(), func(domain.ChangeEvent) {})
	if !errors.Is(err, domain.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}
