package domain

import "time"

// Schedule is a recurring rule that auto-starts a mode at a time of day
// on selected weekdays (0=Sunday .. 6=Saturday). StartTime is "HH:MM"
// in the device's local time; the trigger matches the exact minute.
type Schedule struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	ModeID    string    `json:"mode_id"`
	StartTime string    `json:"start_time"`
	Weekdays  []int     `json:"weekdays"`
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
