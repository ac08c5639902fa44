package handler

// registerRequest is the body of POST /api/auth/register.
type registerRequest struct {
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Password    string `json:"password"`
}

// loginRequest is the body of POST /api/auth/login.
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// loginResponse carries the signed token the agent caches locally.
type loginResponse struct {
	Token  string `json:"token"`
	UserID int64  `json:"user_id"`
}

// insertSessionRequest is the mode snapshot the device sends when a
// blocking session starts.
type insertSessionRequest struct {
	ID        string   `json:"id"`
	ModeID    string   `json:"mode_id"`
	ModeName  string   `json:"mode_name"`
	Websites  []string `json:"websites"`
	StartedAt string   `json:"started_at,omitempty"`
}

// deactivateResponse reports how many rows a deactivate touched.
type deactivateResponse struct {
	Deactivated int `json:"deactivated"`
}
