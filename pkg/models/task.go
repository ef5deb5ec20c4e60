package models

import "time"

// RunningTask is the API view of an in-flight agent run, as returned
// by the active-agents listing.
type RunningTask struct {
	MessageID string    `json:"message_id"`
	ChatID    string    `json:"chat_id"`
	StartedAt time.Time `json:"started_at"`
	Watchers  int       `json:"watchers"`
	Completed bool      `json:"completed"`
	Error     string    `json:"error,omitempty"`
}
