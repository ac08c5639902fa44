package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/anchorhq/anchor/internal/domain"
	"github.com/anchorhq/anchor/internal/service"
)

// HandleActiveSession returns the caller's most recent active session.
func HandleActiveSession(sessions *service.SessionService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := UserFromContext(r.Context())

		session, err := sessions.Active(r.Context(), user.ID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				writeError(w, http.StatusNotFound, "no active session")
				return
			}
			slog.Error("get active session", "error", err, "user_id", user.ID)
			writeError(w, http.StatusInternalServerError, "failed to load session")
			return
		}

		writeJSON(w, http.StatusOK, session)
	}
}

// HandleInsertSession stores a new active session row.
func HandleInsertSession(sessions *service.SessionService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := UserFromContext(r.Context())

		var req insertSessionRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		session := &domain.Session{
			ID:       req.ID,
			ModeID:   req.ModeID,
			ModeName: req.ModeName,
			Websites: req.Websites,
		}
		if req.StartedAt != "" {
			startedAt, err := time.Parse(time.RFC3339, req.StartedAt)
			if err != nil {
				writeError(w, http.StatusBadRequest, "started_at must be RFC 3339")
				return
			}
			session.StartedAt = startedAt
		}

		session, err := sessions.Insert(r.Context(), user.ID, session)
		if err != nil {
			if errors.Is(err, domain.ErrValidation) {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			slog.Error("insert session", "error", err, "user_id", user.ID)
			writeError(w, http.StatusInternalServerError, "failed to store session")
			return
		}

		writeJSON(w, http.StatusCreated, session)
	}
}

// HandleDeactivateSessions marks all of the caller's active rows inactive.
func HandleDeactivateSessions(sessions *service.SessionService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := UserFromContext(r.Context())

		n, err := sessions.Deactivate(r.Context(), user.ID)
		if err != nil {
			slog.Error("deactivate sessions", "error", err, "user_id", user.ID)
			writeError(w, http.StatusInternalServerError, "failed to deactivate sessions")
			return
		}

		writeJSON(w, http.StatusOK, deactivateResponse{Deactivated: n})
	}
}

// HandleDeleteSession removes a session owned by the caller.
func HandleDeleteSession(sessions *service.SessionService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := UserFromContext(r.Context())
		id := r.PathValue("id")

		if err := sessions.Delete(r.Context(), user.ID, id); err != nil {
			switch {
			case errors.Is(err, domain.ErrNotFound):
				writeError(w, http.StatusNotFound, "session not found")
			case errors.Is(err, domain.ErrUnauthorized):
				writeError(w, http.StatusForbidden, "not your session")
			default:
				slog.Error("delete session", "error", err, "user_id", user.ID, "session_id", id)
				writeError(w, http.StatusInternalServerError, "failed to delete session")
			}
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}
