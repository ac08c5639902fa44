package ctlapi_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/anchorhq/anchor/internal/agent/ctlapi"
	"github.com/anchorhq/anchor/internal/agent/engine"
	"github.com/anchorhq/anchor/internal/agent/listener"
	"github.com/anchorhq/anchor/internal/agent/localstore"
	"github.com/anchorhq/anchor/internal/agent/remote"
	"github.com/anchorhq/anchor/internal/agent/rules"
	"github.com/anchorhq/anchor/internal/domain"
)

// stubBackend fakes just enough of the anchord API for the agent stack.
func stubBackend(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"token": "tok", "user_id": 7})
	})
	mux.HandleFunc("GET /api/sessions/active", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": "no active session"})
	})
	mux.HandleFunc("POST /api/sessions", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(domain.Session{ID: "s1", Active: true})
	})
	mux.HandleFunc("POST /api/sessions/deactivate", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]int{"deactivated": 1})
	})
	mux.HandleFunc("GET /api/feed", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newAgentServer(t *testing.T) (*httptest.Server, *localstore.Store) {
	t.Helper()
	backend := stubBackend(t)

	store, err := localstore.Open(filepath.Join(t.TempDir(), "agent.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	client := remote.NewClient(backend.URL, store)
	eng := engine.New(store, client, rules.NewMemorySink(), log)
	lm := listener.NewManager(client, eng, log)
	t.Cleanup(lm.Teardown)

	mux := http.NewServeMux()
	ctlapi.New(eng, store, client, lm, log).Routes(mux)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, store
}

func call(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func createMode(t *testing.T, srv *httptest.Server, name string, websites ...string) domain.Mode {
	t.Helper()
	resp := call(t, http.MethodPost, srv.URL+"/v1/modes", map[string]any{
		"name": name, "websites": websites,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decode[domain.Mode](t, resp)
}

func TestHealthz(t *testing.T) {
	srv, _ := newAgentServer(t)

	resp := call(t, http.MethodGet, srv.URL+"/v1/healthz", nil)
	body := decode[map[string]any](t, resp)
	require.Equal(t, "ok", body["status"])
	require.Equal(t, false, body["subscribed"])
}

func TestModeLifecycle(t *testing.T) {
	srv, _ := newAgentServer(t)

	mode := createMode(t, srv, "Focus", "youtube.com")
	require.NotEmpty(t, mode.ID)

	resp := call(t, http.MethodGet, srv.URL+"/v1/modes", nil)
	modes := decode[[]domain.Mode](t, resp)
	require.Len(t, modes, 1)

	resp = call(t, http.MethodPut, srv.URL+"/v1/modes/"+mode.ID, map[string]any{
		"name": "Deep Focus", "websites": []string{"youtube.com", "reddit.com"},
	})
	updated := decode[domain.Mode](t, resp)
	require.Equal(t, "Deep Focus", updated.Name)
	require.Len(t, updated.Websites, 2)

	resp = call(t, http.MethodDelete, srv.URL+"/v1/modes/"+mode.ID, nil)
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = call(t, http.MethodDelete, srv.URL+"/v1/modes/"+mode.ID, nil)
	resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCreateModeValidation(t *testing.T) {
	srv, _ := newAgentServer(t)

	resp := call(t, http.MethodPost, srv.URL+"/v1/modes", map[string]any{"name": ""})
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSessionStartStop(t *testing.T) {
	srv, _ := newAgentServer(t)
	mode := createMode(t, srv, "Focus", "youtube.com")
	other := createMode(t, srv, "Other", "reddit.com")

	resp := call(t, http.MethodPost, srv.URL+"/v1/session/start", map[string]any{"mode_id": mode.ID})
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = call(t, http.MethodGet, srv.URL+"/v1/session", nil)
	status := decode[map[string]any](t, resp)
	require.Equal(t, true, status["active"])

	// A different mode conflicts without override.
	resp = call(t, http.MethodPost, srv.URL+"/v1/session/start", map[string]any{"mode_id": other.ID})
	resp.Body.Close()
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	// And wins with it.
	resp = call(t, http.MethodPost, srv.URL+"/v1/session/start", map[string]any{
		"mode_id": other.ID, "override": true,
	})
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = call(t, http.MethodPost, srv.URL+"/v1/session/stop", nil)
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = call(t, http.MethodGet, srv.URL+"/v1/session", nil)
	status = decode[map[string]any](t, resp)
	require.Equal(t, false, status["active"])
}

func TestStartUnknownMode(t *testing.T) {
	srv, _ := newAgentServer(t)

	resp := call(t, http.MethodPost, srv.URL+"/v1/session/start", map[string]any{"mode_id": "nope"})
	resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSyncWithoutUser(t *testing.T) {
	srv, _ := newAgentServer(t)

	resp := call(t, http.MethodPost, srv.URL+"/v1/sync", nil)
	body := decode[map[string]string](t, resp)
	require.Equal(t, "no_user", body["outcome"])
}

func TestLoginSubscribesAndLogoutTearsDown(t *testing.T) {
	srv, store := newAgentServer(t)

	resp := call(t, http.MethodPost, srv.URL+"/v1/login", map[string]string{
		"email": "user@example.com", "password": "password123",
	})
	body := decode[map[string]any](t, resp)
	require.Equal(t, float64(7), body["user_id"])

	cred, err := store.Credential(t.Context())
	require.NoError(t, err)
	require.NotNil(t, cred)
	require.Equal(t, int64(7), cred.UserID)

	resp = call(t, http.MethodGet, srv.URL+"/v1/healthz", nil)
	health := decode[map[string]any](t, resp)
	require.Equal(t, true, health["subscribed"])

	resp = call(t, http.MethodPost, srv.URL+"/v1/logout", nil)
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	cred, err = store.Credential(t.Context())
	require.NoError(t, err)
	require.Nil(t, cred)

	resp = call(t, http.MethodGet, srv.URL+"/v1/healthz", nil)
	health = decode[map[string]any](t, resp)
	require.Equal(t, false, health["subscribed"])
}

func TestSubscriptionRequiresCredential(t *testing.T) {
	srv, _ := newAgentServer(t)

	resp := call(t, http.MethodPost, srv.URL+"/v1/subscription", map[string]any{"force": false})
	resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestScheduleLifecycle(t *testing.T) {
	srv, _ := newAgentServer(t)
	mode := createMode(t, srv, "Focus", "youtube.com")

	resp := call(t, http.MethodPost, srv.URL+"/v1/schedules", map[string]any{
		"name": "Morning", "mode_id": mode.ID, "start_time": "09:00", "weekdays": []int{1, 2, 3},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	schedule := decode[domain.Schedule](t, resp)
	require.True(t, schedule.Enabled)

	resp = call(t, http.MethodPost, srv.URL+"/v1/schedules/"+schedule.ID+"/toggle", map[string]any{
		"enabled": false,
	})
	toggled := decode[domain.Schedule](t, resp)
	require.False(t, toggled.Enabled)

	resp = call(t, http.MethodGet, srv.URL+"/v1/schedules", nil)
	schedules := decode[[]domain.Schedule](t, resp)
	require.Len(t, schedules, 1)

	resp = call(t, http.MethodDelete, srv.URL+"/v1/schedules/"+schedule.ID, nil)
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestCreateScheduleValidation(t *testing.T) {
	srv, _ := newAgentServer(t)
	mode := createMode(t, srv, "Focus", "youtube.com")

	resp := call(t, http.MethodPost, srv.URL+"/v1/schedules", map[string]any{
		"name": "Bad", "mode_id": mode.ID, "start_time": "9am", "weekdays": []int{1},
	})
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
