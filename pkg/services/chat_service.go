package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rupeshksingh/deepagents/pkg/models"
)

// ChatService manages chat containers.
type ChatService struct {
	db *sql.DB
}

// NewChatService creates a new ChatService
func NewChatService(db *sql.DB) *ChatService {
	return &ChatService{db: db}
}

// Create creates a new chat.
func (s *ChatService) Create(ctx context.Context, title string) (*models.Chat, error) {
	chat := &models.Chat{
		ID:    uuid.NewString(),
		Title: title,
	}

	err := s.db.QueryRowContext(ctx,
		`INSERT INTO chats (id, title) VALUES ($1, $2)
		 RETURNING created_at, updated_at`,
		chat.ID, chat.Title,
	).Scan(&chat.CreatedAt, &chat.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat: %w", err)
	}

	return chat, nil
}

// Get retrieves a chat by id.
func (s *ChatService) Get(ctx context.Context, chatID string) (*models.Chat, error) {
	if chatID == "" {
		return nil, NewValidationError("chat_id", "required")
	}

	chat := &models.Chat{ID: chatID}
	err := s.db.QueryRowContext(ctx,
		`SELECT title, created_at, updated_at FROM chats WHERE id = $1`, chatID,
	).Scan(&chat.Title, &chat.CreatedAt, &chat.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get chat %s: %w", chatID, err)
	}

	return chat, nil
}

// MessageCount returns the number of messages in a chat.
func (s *ChatService) MessageCount(ctx context.Context, chatID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE chat_id = $1`, chatID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count messages for chat %s: %w", chatID, err)
	}
	return count, nil
}

// Touch bumps a chat's updated_at, marking recent activity.
func (s *ChatService) Touch(ctx context.Context, chatID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE chats SET updated_at = $2 WHERE id = $1`, chatID, at)
	if err != nil {
		return fmt.Errorf("failed to touch chat %s: %w", chatID, err)
	}
	return nil
}
