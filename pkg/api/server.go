// Package api exposes the HTTP surface: chat and message management,
// the SSE stream endpoint, event replay, and health.
package api

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rupeshksingh/deepagents/pkg/database"
	"github.com/rupeshksingh/deepagents/pkg/models"
	"github.com/rupeshksingh/deepagents/pkg/registry"
)

// ChatStore is the chat persistence surface the server uses.
type ChatStore interface {
	Create(ctx context.Context, title string) (*models.Chat, error)
	Get(ctx context.Context, chatID string) (*models.Chat, error)
	MessageCount(ctx context.Context, chatID string) (int, error)
}

// MessageStore is the message persistence surface the server uses.
type MessageStore interface {
	CreateTurn(ctx context.Context, chatID, userContent string) (*models.Message, *models.Message, error)
	CreateAssistant(ctx context.Context, chatID string) (*models.Message, error)
	Get(ctx context.Context, messageID string) (*models.Message, error)
	List(ctx context.Context, chatID string, limit, offset int) ([]*models.Message, error)
}

// EventReader is the replay surface the server uses.
type EventReader interface {
	ReadSince(ctx context.Context, messageID string, sinceSeq uint64, limit int) ([]models.EventRecord, error)
}

// TaskRegistry is the agent task surface the server uses.
type TaskRegistry interface {
	Start(inv registry.Invocation, agent registry.AgentFunc) bool
	IsRunning(messageID string) bool
	List(chatID string) []models.RunningTask
	ActiveCount() int
	RegisterWatcher(messageID string) (string, bool)
	UnregisterWatcher(messageID, watcherID string)
	Abort(messageID string) bool
}

// Streamer turns the event log into a live per-consumer stream.
type Streamer interface {
	Stream(ctx context.Context, messageID string, sinceSeq uint64) <-chan models.EventRecord
}

// Server is the API server.
type Server struct {
	db       *sql.DB
	chats    ChatStore
	messages MessageStore
	events   EventReader
	tasks    TaskRegistry
	streamer Streamer
	agent    registry.AgentFunc
}

// NewServer creates a new API server. db may be nil in tests; the
// health endpoint then skips the database check.
func NewServer(db *sql.DB, chats ChatStore, messages MessageStore, events EventReader,
	tasks TaskRegistry, streamer Streamer, agent registry.AgentFunc) *Server {
	return &Server{
		db:       db,
		chats:    chats,
		messages: messages,
		events:   events,
		tasks:    tasks,
		streamer: streamer,
		agent:    agent,
	}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	apiGroup := r.Group("/api")
	{
		apiGroup.GET("/health", s.Health)

		apiGroup.POST("/chats", s.CreateChat)
		apiGroup.GET("/chats/:chatID", s.GetChat)
		apiGroup.GET("/chats/:chatID/messages", s.ListMessages)
		apiGroup.POST("/chats/:chatID/messages", s.CreateMessage)
		apiGroup.GET("/chats/:chatID/messages/:messageID/stream", s.StreamMessage)
		apiGroup.POST("/chats/:chatID/messages/:messageID/resume", s.ResumeMessage)

		apiGroup.GET("/messages/:messageID/events", s.ListEvents)

		apiGroup.GET("/agents/active", s.ActiveAgents)
		apiGroup.POST("/agents/:messageID/abort", s.AbortAgent)
	}

	return r
}

// Health returns liveness plus database health.
func (s *Server) Health(c *gin.Context) {
	if s.db == nil {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	dbHealth, err := database.Health(ctx, s.db)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":   "unhealthy",
			"database": dbHealth,
			"error":    err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   "healthy",
		"database": dbHealth,
	})
}

// streamURL builds the SSE path for a message.
func streamURL(chatID, messageID string) string {
	return fmt.Sprintf("/api/chats/%s/messages/%s/stream", chatID, messageID)
}
