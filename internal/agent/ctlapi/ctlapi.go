// Package ctlapi is the agent's local control surface: the JSON API the
// CLI (and any future popup UI) drives mode, session, and schedule
// operations through.
package ctlapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/anchorhq/anchor/internal/agent/engine"
	"github.com/anchorhq/anchor/internal/agent/listener"
	"github.com/anchorhq/anchor/internal/agent/localstore"
	"github.com/anchorhq/anchor/internal/agent/remote"
	"github.com/anchorhq/anchor/internal/domain"
)

// API wires the engine and its collaborators to HTTP.
type API struct {
	eng      *engine.Engine
	store    *localstore.Store
	client   *remote.Client
	listener *listener.Manager
	log      *slog.Logger
}

// New creates the control API.
func New(eng *engine.Engine, store *localstore.Store, client *remote.Client, lm *listener.Manager, log *slog.Logger) *API {
	return &API{eng: eng, store: store, client: client, listener: lm, log: log}
}

// Routes registers all control endpoints on the mux.
func (a *API) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/healthz", a.handleHealthz)

	mux.HandleFunc("POST /v1/login", a.handleLogin)
	mux.HandleFunc("POST /v1/logout", a.handleLogout)

	mux.HandleFunc("GET /v1/modes", a.handleListModes)
	mux.HandleFunc("POST /v1/modes", a.handleCreateMode)
	mux.HandleFunc("PUT /v1/modes/{id}", a.handleUpdateMode)
	mux.HandleFunc("DELETE /v1/modes/{id}", a.handleDeleteMode)

	mux.HandleFunc("GET /v1/session", a.handleActiveSession)
	mux.HandleFunc("POST /v1/session/start", a.handleStart)
	mux.HandleFunc("POST /v1/session/stop", a.handleStop)
	mux.HandleFunc("POST /v1/sync", a.handleSync)
	mux.HandleFunc("POST /v1/subscription", a.handleSubscription)

	mux.HandleFunc("GET /v1/schedules", a.handleListSchedules)
	mux.HandleFunc("POST /v1/schedules", a.handleCreateSchedule)
	mux.HandleFunc("PUT /v1/schedules/{id}", a.handleUpdateSchedule)
	mux.HandleFunc("POST /v1/schedules/{id}/toggle", a.handleToggleSchedule)
	mux.HandleFunc("DELETE /v1/schedules/{id}", a.handleDeleteSchedule)
}

func (a *API) handleHealthz(w http.ResponseWriter, r *http.Request) {
	userID, subscribed := a.listener.Subscribed()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"subscribed": subscribed,
		"user_id":    userID,
	})
}

// writeJSON sends a JSON response with the given status code and data.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("write JSON response", "error", err)
	}
}

// writeError maps domain errors to status codes and sends a JSON error.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthenticated), errors.Is(err, domain.ErrUnauthorized):
		status = http.StatusUnauthorized
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// readJSON decodes the request body into the given destination.
func readJSON(r *http.Request, dst any) error {
	return json.NewDecoder(r.Body).Decode(dst)
}

func badRequest(w http.ResponseWriter) {
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
}
