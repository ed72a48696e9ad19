package seo

import "time"

// Alert reports a failed scheduled task.
type Alert struct {
	Task    TaskName  `json:"task"`
	Trigger Trigger   `json:"trigger"`
	RunID   string    `json:"run_id,omitempty"`
	Message string    `json:"message"`
	Error   string    `json:"error,omitempty"`
	At      time.Time `json:"at"`
}
