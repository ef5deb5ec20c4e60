package api

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rupeshksingh/deepagents/pkg/events"
	"github.com/rupeshksingh/deepagents/pkg/models"
	"github.com/rupeshksingh/deepagents/pkg/registry"
)

// CreateMessage persists the user/assistant turn and starts the agent
// run. The run is owned by the registry; the response returns
// immediately with the stream URL.
func (s *Server) CreateMessage(c *gin.Context) {
	chatID := c.Param("chatID")

	var req CreateMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "content is required"})
		return
	}

	userMsg, assistantMsg, err := s.messages.CreateTurn(c.Request.Context(), chatID, req.Content)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	s.tasks.Start(registry.Invocation{
		MessageID: assistantMsg.ID,
		ChatID:    chatID,
		Prompt:    req.Content,
	}, s.agent)

	c.JSON(http.StatusCreated, MessageCreatedResponse{
		MessageID:     assistantMsg.ID,
		UserMessageID: userMsg.ID,
		ChatID:        chatID,
		StreamURL:     streamURL(chatID, assistantMsg.ID),
	})
}

// ResumeMessage answers a human-in-the-loop interrupt. The interrupted
// message's log stays intact; the continuation runs as a fresh
// assistant message with its own event log.
func (s *Server) ResumeMessage(c *gin.Context) {
	chatID := c.Param("chatID")
	messageID := c.Param("messageID")

	var req ResumeRequest
	if err := c.ShouldBindJSON(&req); err != nil || !resumeActions[req.Action] {
		c.JSON(http.StatusBadRequest, gin.H{"error": "action must be one of accept, edit, respond, ignore"})
		return
	}

	msg, err := s.messages.Get(c.Request.Context(), messageID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	if msg.ChatID != chatID {
		c.JSON(http.StatusNotFound, gin.H{"error": "resource not found"})
		return
	}
	if msg.Status != models.StatusInterrupted {
		c.JSON(http.StatusConflict, gin.H{"error": "message is not awaiting input"})
		return
	}

	resumed, err := s.messages.CreateAssistant(c.Request.Context(), chatID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	s.tasks.Start(registry.Invocation{
		MessageID:     resumed.ID,
		ChatID:        chatID,
		ResumeOf:      messageID,
		ResumeAction:  req.Action,
		ResumePayload: req.Payload,
	}, s.agent)

	c.JSON(http.StatusCreated, MessageCreatedResponse{
		MessageID: resumed.ID,
		ChatID:    chatID,
		StreamURL: streamURL(chatID, resumed.ID),
	})
}

// ListEvents replays a message's event log, optionally from a cursor.
// The cursor accepts a full event id or a bare seq.
func (s *Server) ListEvents(c *gin.Context) {
	messageID := c.Param("messageID")

	if _, err := s.messages.Get(c.Request.Context(), messageID); err != nil {
		respondServiceError(c, err)
		return
	}

	since := events.ResolveCursor(c.Query("since"))
	records, err := s.events.ReadSince(c.Request.Context(), messageID, since, 0)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	payloads := make([]json.RawMessage, 0, len(records))
	for _, rec := range records {
		payloads = append(payloads, json.RawMessage(rec.Payload))
	}

	c.JSON(http.StatusOK, EventsResponse{MessageID: messageID, Events: payloads})
}

// ActiveAgents lists in-flight runs.
func (s *Server) ActiveAgents(c *gin.Context) {
	all := s.tasks.List(c.Query("chat_id"))
	agents := make([]models.RunningTask, 0, len(all))
	for _, task := range all {
		if !task.Completed {
			agents = append(agents, task)
		}
	}

	c.JSON(http.StatusOK, ActiveAgentsResponse{Count: len(agents), Agents: agents})
}

// AbortAgent cancels a running task. The terminal event is still
// written by the executor.
func (s *Server) AbortAgent(c *gin.Context) {
	messageID := c.Param("messageID")

	if !s.tasks.Abort(messageID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no running task for message"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"message_id": messageID, "status": "aborting"})
}
