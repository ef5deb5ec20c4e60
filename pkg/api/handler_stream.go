package api

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rupeshksingh/deepagents/pkg/events"
)

// sseRetryMillis is the reconnect delay hint sent in the stream preamble.
const sseRetryMillis = 3000

// StreamMessage serves the live event stream over SSE. Reconnecting
// clients resume from the Last-Event-ID header (which wins over the
// ?since query param); a malformed cursor replays from the beginning.
// Disconnecting only unregisters the watcher; the run is untouched.
func (s *Server) StreamMessage(c *gin.Context) {
	chatID := c.Param("chatID")
	messageID := c.Param("messageID")

	msg, err := s.messages.Get(c.Request.Context(), messageID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	if msg.ChatID != chatID {
		c.JSON(http.StatusNotFound, gin.H{"error": "resource not found"})
		return
	}

	cursorToken := c.GetHeader("Last-Event-ID")
	if cursorToken == "" {
		cursorToken = c.Query("since")
	}
	since := events.ResolveCursor(cursorToken)
	if cursorToken != "" && since == 0 {
		slog.Info("Unparseable stream cursor, replaying from start",
			"message_id", messageID, "cursor", cursorToken)
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming unsupported"})
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	watcherID, registered := s.tasks.RegisterWatcher(messageID)
	if registered {
		defer s.tasks.UnregisterWatcher(messageID, watcherID)
	}

	slog.Info("SSE stream opened", "message_id", messageID, "chat_id", chatID, "since", since)

	fmt.Fprintf(c.Writer, "retry: %d\n\n", sseRetryMillis)
	flusher.Flush()

	for rec := range s.streamer.Stream(c.Request.Context(), messageID, since) {
		fmt.Fprintf(c.Writer, "event: %s\n", rec.Type)
		fmt.Fprintf(c.Writer, "id: %s\n", rec.EventID)
		fmt.Fprintf(c.Writer, "data: %s\n\n", rec.Payload)
		flusher.Flush()
	}

	slog.Info("SSE stream closed", "message_id", messageID)
}
