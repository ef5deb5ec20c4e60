package api

import (
	"encoding/json"

	"github.com/rupeshksingh/deepagents/pkg/models"
)

// MessageCreatedResponse is returned when a turn is accepted.
type MessageCreatedResponse struct {
	MessageID     string `json:"message_id"`
	UserMessageID string `json:"user_message_id"`
	ChatID        string `json:"chat_id"`
	StreamURL     string `json:"stream_url"`
}

// ChatResponse is a chat with its message count.
type ChatResponse struct {
	*models.Chat
	MessageCount int `json:"message_count"`
}

// MessagesResponse is a page of chat history.
type MessagesResponse struct {
	ChatID   string            `json:"chat_id"`
	Messages []*models.Message `json:"messages"`
	Limit    int               `json:"limit"`
	Offset   int               `json:"offset"`
}

// EventsResponse is an event log replay.
type EventsResponse struct {
	MessageID string            `json:"message_id"`
	Events    []json.RawMessage `json:"events"`
}

// ActiveAgentsResponse lists in-flight agent runs.
type ActiveAgentsResponse struct {
	Count  int                  `json:"count"`
	Agents []models.RunningTask `json:"agents"`
}
