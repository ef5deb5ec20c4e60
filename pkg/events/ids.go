// Package events implements the event pipeline between the agent and
// the store: the emitter handoff queue, the robust writer, the stream
// watcher, and the event id codec.
package events

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewEventID builds a globally unique event id of the form
// {unix_ms}_{seq:04d}_{rand8hex}. The embedded seq makes the id usable
// as a resume cursor (SSE Last-Event-ID); the random suffix
// disambiguates ids minted in the same millisecond.
func NewEventID(ts time.Time, seq uint64) string {
	u := uuid.New()
	return fmt.Sprintf("%d_%04d_%x", ts.UnixMilli(), seq, u[:4])
}

// ParseSeq extracts the sequence number from an event id. Only the
// second underscore-separated field matters, so ids from older schema
// versions with extra trailing fields still parse.
func ParseSeq(eventID string) (uint64, error) {
	parts := strings.Split(eventID, "_")
	if len(parts) < 2 {
		return 0, fmt.Errorf("malformed event id %q", eventID)
	}
	seq, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed seq in event id %q: %w", eventID, err)
	}
	return seq, nil
}

// ResolveCursor turns a client-supplied resume token into a sequence
// cursor. Accepts a full event id, a bare integer seq, or empty.
// Malformed input resolves to 0 (stream from the beginning): a stale
// or garbled cursor should degrade to a full replay, not an error.
func ResolveCursor(token string) uint64 {
	if token == "" {
		return 0
	}
	if seq, err := strconv.ParseUint(token, 10, 64); err == nil {
		return seq
	}
	if seq, err := ParseSeq(token); err == nil {
		return seq
	}
	return 0
}
