package ctlapi

import (
	"net/http"

	"github.com/anchorhq/anchor/internal/agent/engine"
	"github.com/anchorhq/anchor/internal/domain"
)

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := readJSON(r, &req); err != nil {
		badRequest(w)
		return
	}

	cred, err := a.client.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := a.store.SetCredential(r.Context(), cred); err != nil {
		writeError(w, err)
		return
	}

	// A fresh credential means a possibly different user: force a new
	// subscription and converge immediately.
	if err := a.listener.EnsureSubscribed(r.Context(), cred.UserID, true); err != nil {
		a.log.Warn("subscribe after login", "error", err)
	}
	if _, err := a.eng.Sync(r.Context(), "login"); err != nil {
		a.log.Warn("sync after login", "error", err)
	}

	writeJSON(w, http.StatusOK, map[string]any{"user_id": cred.UserID})
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	a.listener.Teardown()
	if err := a.store.ClearCredential(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleListModes(w http.ResponseWriter, r *http.Request) {
	modes, err := a.eng.Modes(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if modes == nil {
		modes = []domain.Mode{}
	}
	writeJSON(w, http.StatusOK, modes)
}

func (a *API) handleCreateMode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string   `json:"name"`
		Websites []string `json:"websites"`
	}
	if err := readJSON(r, &req); err != nil {
		badRequest(w)
		return
	}

	mode, err := a.eng.CreateMode(r.Context(), req.Name, req.Websites)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, mode)
}

func (a *API) handleUpdateMode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string   `json:"name"`
		Websites []string `json:"websites"`
	}
	if err := readJSON(r, &req); err != nil {
		badRequest(w)
		return
	}

	mode, err := a.eng.UpdateMode(r.Context(), r.PathValue("id"), req.Name, req.Websites)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mode)
}

func (a *API) handleDeleteMode(w http.ResponseWriter, r *http.Request) {
	if err := a.eng.DeleteMode(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleActiveSession(w http.ResponseWriter, r *http.Request) {
	active, err := a.eng.ActiveMode(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if active == nil {
		writeJSON(w, http.StatusOK, map[string]any{"active": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"active": true, "mode": active})
}

func (a *API) handleStart(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ModeID   string `json:"mode_id"`
		Override bool   `json:"override"`
	}
	if err := readJSON(r, &req); err != nil {
		badRequest(w)
		return
	}

	if err := a.eng.Start(r.Context(), req.ModeID, req.Override); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleStop(w http.ResponseWriter, r *http.Request) {
	if err := a.eng.Stop(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleSync(w http.ResponseWriter, r *http.Request) {
	outcome, err := a.eng.Sync(r.Context(), "manual")
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"outcome": string(outcome)})
}

func (a *API) handleSubscription(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Force bool `json:"force"`
	}
	if err := readJSON(r, &req); err != nil {
		badRequest(w)
		return
	}

	cred, err := a.store.Credential(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if cred == nil {
		writeError(w, domain.ErrUnauthenticated)
		return
	}

	if err := a.listener.EnsureSubscribed(r.Context(), cred.UserID, req.Force); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleListSchedules(w http.ResponseWriter, r *http.Request) {
	schedules, err := a.eng.Schedules(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if schedules == nil {
		schedules = []domain.Schedule{}
	}
	writeJSON(w, http.StatusOK, schedules)
}

type scheduleRequest struct {
	Name      string `json:"name"`
	ModeID    string `json:"mode_id"`
	StartTime string `json:"start_time"`
	Weekdays  []int  `json:"weekdays"`
}

func (r scheduleRequest) input() engine.ScheduleInput {
	return engine.ScheduleInput{
		Name:      r.Name,
		ModeID:    r.ModeID,
		StartTime: r.StartTime,
		Weekdays:  r.Weekdays,
	}
}

func (a *API) handleCreateSchedule(w http.ResponseWriter, r *http.Request) {
	var req scheduleRequest
	if err := readJSON(r, &req); err != nil {
		badRequest(w)
		return
	}

	schedule, err := a.eng.CreateSchedule(r.Context(), req.input())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, schedule)
}

func (a *API) handleUpdateSchedule(w http.ResponseWriter, r *http.Request) {
	var req scheduleRequest
	if err := readJSON(r, &req); err != nil {
		badRequest(w)
		return
	}

	schedule, err := a.eng.UpdateSchedule(r.Context(), r.PathValue("id"), req.input())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, schedule)
}

func (a *API) handleToggleSchedule(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := readJSON(r, &req); err != nil {
		badRequest(w)
		return
	}

	schedule, err := a.eng.ToggleSchedule(r.Context(), r.PathValue("id"), req.Enabled)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, schedule)
}

func (a *API) handleDeleteSchedule(w http.ResponseWriter, r *http.Request) {
	if err := a.eng.DeleteSchedule(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
