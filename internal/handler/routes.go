package handler

import (
	"net/http"

	"github.com/anchorhq/anchor/internal/service"
)

// RegisterRoutes sets up all HTTP routes on the given mux.
func RegisterRoutes(mux *http.ServeMux, auth *service.AuthService, sessions *service.SessionService, hub *service.FeedHub) {
	mux.HandleFunc("GET /healthz", HandleHealthz)

	mux.HandleFunc("POST /api/auth/register", HandleRegister(auth))
	mux.HandleFunc("POST /api/auth/login", HandleLogin(auth))

	mux.Handle("GET /api/sessions/active", RequireAuth(auth, HandleActiveSession(sessions)))
	mux.Handle("POST /api/sessions", RequireAuth(auth, HandleInsertSession(sessions)))
	mux.Handle("POST /api/sessions/deactivate", RequireAuth(auth, HandleDeactivateSessions(sessions)))
	mux.Handle("DELETE /api/sessions/{id}", RequireAuth(auth, HandleDeleteSession(sessions)))

	mux.Handle("GET /api/feed", RequireAuth(auth, HandleFeed(hub)))
}
