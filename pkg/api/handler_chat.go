package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// CreateChat creates a new chat container.
func (s *Server) CreateChat(c *gin.Context) {
	var req CreateChatRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	chat, err := s.chats.Create(c.Request.Context(), req.Title)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, chat)
}

// GetChat returns chat details including its message count.
func (s *Server) GetChat(c *gin.Context) {
	chatID := c.Param("chatID")

	chat, err := s.chats.Get(c.Request.Context(), chatID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	count, err := s.chats.MessageCount(c.Request.Context(), chatID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, ChatResponse{Chat: chat, MessageCount: count})
}

// ListMessages returns a page of chat history.
func (s *Server) ListMessages(c *gin.Context) {
	chatID := c.Param("chatID")

	if _, err := s.chats.Get(c.Request.Context(), chatID); err != nil {
		respondServiceError(c, err)
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	messages, err := s.messages.List(c.Request.Context(), chatID, limit, offset)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, MessagesResponse{
		ChatID:   chatID,
		Messages: messages,
		Limit:    limit,
		Offset:   offset,
	})
}
