package models

import "time"

// MessageRole identifies who authored a message.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// MessageStatus tracks an assistant message through its lifecycle.
// User messages are created completed.
type MessageStatus string

const (
	StatusPending     MessageStatus = "pending"
	StatusProcessing  MessageStatus = "processing"
	StatusCompleted   MessageStatus = "completed"
	StatusFailed      MessageStatus = "failed"
	StatusInterrupted MessageStatus = "interrupted"
)

// Chat is a conversation container for message pairs.
type Chat struct {
	ID        string    `json:"id"`
	Title     string    `json:"title,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Message is one turn in a chat. Assistant messages own an event log
// keyed by their id; Content holds the final response text once the
// run completes.
type Message struct {
	ID               string        `json:"id"`
	ChatID           string        `json:"chat_id"`
	Role             MessageRole   `json:"role"`
	Status           MessageStatus `json:"status"`
	Content          string        `json:"content,omitempty"`
	Error            string        `json:"error,omitempty"`
	ProcessingTimeMS int64         `json:"processing_time_ms,omitempty"`
	Metadata         []byte        `json:"-"` // raw JSON, opaque to the core
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// EventRecord is a persisted stream event row. Payload is the full
// event JSON as written; Seq and EventID are denormalized for ordered
// reads and idempotent appends.
type EventRecord struct {
	MessageID string    `json:"message_id"`
	ChatID    string    `json:"chat_id"`
	Seq       uint64    `json:"seq"`
	EventID   string    `json:"event_id"`
	Type      EventType `json:"type"`
	TS        time.Time `json:"ts"`
	Payload   []byte    `json:"payload"`
}
