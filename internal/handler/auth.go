package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/anchorhq/anchor/internal/domain"
	"github.com/anchorhq/anchor/internal/service"
)

// HandleRegister creates a new user account.
func HandleRegister(auth *service.AuthService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req registerRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		user, err := auth.Register(r.Context(), req.Email, req.DisplayName, req.Password)
		if err != nil {
			switch {
			case errors.Is(err, domain.ErrValidation):
				writeError(w, http.StatusBadRequest, err.Error())
			case errors.Is(err, domain.ErrDuplicateEmail):
				writeError(w, http.StatusConflict, "email already registered")
			default:
				slog.Error("register user", "error", err)
				writeError(w, http.StatusInternalServerError, "registration failed")
			}
			return
		}

		writeJSON(w, http.StatusCreated, map[string]any{"user_id": user.ID})
	}
}

// HandleLogin verifies credentials and returns a signed token.
func HandleLogin(auth *service.AuthService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		user, token, err := auth.Login(r.Context(), req.Email, req.Password)
		if err != nil {
			if errors.Is(err, domain.ErrUnauthorized) {
				writeError(w, http.StatusUnauthorized, "invalid email or password")
				return
			}
			slog.Error("login user", "error", err)
			writeError(w, http.StatusInternalServerError, "login failed")
			return
		}

		writeJSON(w, http.StatusOK, loginResponse{Token: token, UserID: user.ID})
	}
}
