// Package models defines the shared data model: the v2 stream event
// schema, chat/message records, and API view types.
package models

import "time"

// EventSchemaVersion is the current stream event schema version.
const EventSchemaVersion = 2

// EventType identifies the kind of a stream event.
type EventType string

// Stream event types.
const (
	EventTypeStart         EventType = "start"
	EventTypeThinking      EventType = "thinking"
	EventTypePlan          EventType = "plan"
	EventTypeToolStart     EventType = "tool_start"
	EventTypeToolEnd       EventType = "tool_end"
	EventTypeSubagentStart EventType = "subagent_start"
	EventTypeSubagentEnd   EventType = "subagent_end"
	EventTypeContentStart  EventType = "content_start"
	EventTypeContent       EventType = "content"
	EventTypeContentEnd    EventType = "content_end"
	EventTypeStatus        EventType = "status"
	EventTypeEnd           EventType = "end"
	EventTypeError         EventType = "error"
)

// Terminal reports whether t closes a message's event log.
// Exactly one terminal event exists per completed message, always at
// the highest sequence number.
func (t EventType) Terminal() bool {
	return t == EventTypeEnd || t == EventTypeError
}

// End event status values.
const (
	EndStatusCompleted   = "completed"
	EndStatusInterrupted = "interrupted"
	EndStatusError       = "error"
)

// Tool call result status values (ToolEnd.Status).
const (
	ToolStatusOK    = "ok"
	ToolStatusError = "error"
)

// Plan item status values.
const (
	PlanItemPending    = "pending"
	PlanItemInProgress = "in_progress"
	PlanItemCompleted  = "completed"
	PlanItemCancelled  = "cancelled"
)

// Agent context values (StreamEvent.AgentType).
const (
	AgentTypeMain     = "main"
	AgentTypeSubagent = "subagent"
)

// TimestampLayout renders timestamps as ISO-8601 UTC with millisecond
// precision, the canonical `ts` encoding of the v2 schema.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// FormatTimestamp renders t in the canonical `ts` encoding.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ParseTimestamp parses a canonical `ts` value. It also accepts full
// RFC3339 for events that predate the fixed-width encoding.
func ParseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(TimestampLayout, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

// PlanItem is a single step in a plan event.
type PlanItem struct {
	ID     string `json:"id"`
	Text   string `json:"text"`
	Status string `json:"status"` // pending, in_progress, completed, cancelled
}

// StreamEvent is one observable step of agent execution (v2 schema).
//
// The struct is a flat union: every event carries the shared envelope
// (v, type, id, ts, seq, message_id, chat_id) and only the fields its
// type uses; all type-specific fields are omitempty so the wire JSON
// stays compact.
//
// Partial events (produced by the agent through the emitter) leave ID,
// TS and Seq zero; the robust writer allocates the sequence number,
// stamps the timestamp, and normalizes the id before persistence.
type StreamEvent struct {
	V    int       `json:"v"`
	Type EventType `json:"type"`
	ID   string    `json:"id,omitempty"` // {unix_ms}_{seq:04d}_{rand8hex}, doubles as SSE Last-Event-ID
	TS   string    `json:"ts,omitempty"` // ISO-8601 UTC, millisecond precision
	Seq  uint64    `json:"seq,omitempty"`

	MessageID string `json:"message_id,omitempty"`
	ChatID    string `json:"chat_id,omitempty"`
	Status    string `json:"status,omitempty"`

	// Agent context: main vs subagent attribution.
	AgentType    string `json:"agent_type,omitempty"`
	AgentID      string `json:"agent_id,omitempty"`
	ParentCallID string `json:"parent_call_id,omitempty"`

	// plan
	Items []PlanItem `json:"items,omitempty"`

	// tool_start / tool_end
	CallID        string `json:"call_id,omitempty"`
	Name          string `json:"name,omitempty"`
	ArgsSummary   string `json:"args_summary,omitempty"`
	ArgsDisplay   string `json:"args_display,omitempty"`
	ResultSummary string `json:"result_summary,omitempty"`
	MS            int64  `json:"ms,omitempty"`

	// subagent_start
	SubagentDescription string `json:"subagent_description,omitempty"`

	// thinking / status / content
	Text string `json:"text,omitempty"`
	MD   string `json:"md,omitempty"`

	// end
	MSTotal   int64 `json:"ms_total,omitempty"`
	ToolCalls int   `json:"tool_calls,omitempty"`

	// error
	Error string `json:"error,omitempty"`
}

// NewStartEvent creates a partial start event.
func NewStartEvent(messageID, chatID string) StreamEvent {
	return StreamEvent{
		V:         EventSchemaVersion,
		Type:      EventTypeStart,
		MessageID: messageID,
		ChatID:    chatID,
		Status:    "processing",
	}
}

// NewThinkingEvent creates a partial thinking event.
func NewThinkingEvent(text, agentType, agentID string) StreamEvent {
	return StreamEvent{
		V:         EventSchemaVersion,
		Type:      EventTypeThinking,
		Text:      text,
		AgentType: agentType,
		AgentID:   agentID,
	}
}

// NewPlanEvent creates a partial plan event.
func NewPlanEvent(items []PlanItem) StreamEvent {
	return StreamEvent{
		V:     EventSchemaVersion,
		Type:  EventTypePlan,
		Items: items,
	}
}

// NewToolStartEvent creates a partial tool_start event.
func NewToolStartEvent(callID, name, argsSummary, argsDisplay string) StreamEvent {
	return StreamEvent{
		V:           EventSchemaVersion,
		Type:        EventTypeToolStart,
		CallID:      callID,
		Name:        name,
		ArgsSummary: argsSummary,
		ArgsDisplay: argsDisplay,
	}
}

// NewToolEndEvent creates a partial tool_end event.
func NewToolEndEvent(callID, name, status string, ms int64, resultSummary string) StreamEvent {
	return StreamEvent{
		V:             EventSchemaVersion,
		Type:          EventTypeToolEnd,
		CallID:        callID,
		Name:          name,
		Status:        status,
		MS:            ms,
		ResultSummary: resultSummary,
	}
}

// NewSubagentStartEvent creates a partial subagent_start event.
func NewSubagentStartEvent(agentID, parentCallID, description string) StreamEvent {
	return StreamEvent{
		V:                   EventSchemaVersion,
		Type:                EventTypeSubagentStart,
		AgentType:           AgentTypeSubagent,
		AgentID:             agentID,
		ParentCallID:        parentCallID,
		SubagentDescription: description,
	}
}

// NewSubagentEndEvent creates a partial subagent_end event.
func NewSubagentEndEvent(agentID, parentCallID string, ms int64) StreamEvent {
	return StreamEvent{
		V:            EventSchemaVersion,
		Type:         EventTypeSubagentEnd,
		AgentType:    AgentTypeSubagent,
		AgentID:      agentID,
		ParentCallID: parentCallID,
		MS:           ms,
	}
}

// NewContentStartEvent creates a partial content_start event.
func NewContentStartEvent(agentType, agentID string) StreamEvent {
	return StreamEvent{
		V:         EventSchemaVersion,
		Type:      EventTypeContentStart,
		AgentType: agentType,
		AgentID:   agentID,
	}
}

// NewContentEvent creates a partial content event carrying a markdown chunk.
func NewContentEvent(md string) StreamEvent {
	return StreamEvent{
		V:    EventSchemaVersion,
		Type: EventTypeContent,
		MD:   md,
	}
}

// NewContentEndEvent creates a partial content_end event.
func NewContentEndEvent(agentType, agentID string) StreamEvent {
	return StreamEvent{
		V:         EventSchemaVersion,
		Type:      EventTypeContentEnd,
		AgentType: agentType,
		AgentID:   agentID,
	}
}

// NewStatusEvent creates a partial status event. Heartbeats use this
// type; md may carry a JSON-encoded interrupt record for
// human-in-the-loop pauses.
func NewStatusEvent(text, md string) StreamEvent {
	return StreamEvent{
		V:    EventSchemaVersion,
		Type: EventTypeStatus,
		Text: text,
		MD:   md,
	}
}

// NewEndEvent creates a partial end event.
func NewEndEvent(status string, msTotal int64, toolCalls int) StreamEvent {
	return StreamEvent{
		V:         EventSchemaVersion,
		Type:      EventTypeEnd,
		Status:    status,
		MSTotal:   msTotal,
		ToolCalls: toolCalls,
	}
}

// NewErrorEvent creates a partial error event.
func NewErrorEvent(message string) StreamEvent {
	return StreamEvent{
		V:     EventSchemaVersion,
		Type:  EventTypeError,
		Error: message,
	}
}
