package domain

import "time"

// Mode is a user-authored named list of website patterns to block.
// Modes live in the device's local store, not in the shared backend;
// sessions carry a snapshot of the mode they were started from.
type Mode struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Websites  []string  `json:"websites"`
	CreatedAt time.Time `json:"created_at"`
}

// ActiveMode is the device-local snapshot of what this device believes
// is currently blocking. It is not authoritative; the engine reconciles
// it against the shared session record.
type ActiveMode struct {
	ModeID    string    `json:"mode_id"`
	Name      string    `json:"name"`
	Websites  []string  `json:"websites"`
	StartedAt time.Time `json:"started_at"`
}

// Credential is the cached authentication state of a device.
type Credential struct {
	UserID int64  `json:"user_id"`
	Token  string `json:"token"`
}
