package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/rupeshksingh/deepagents/pkg/models"
)

// MessageService manages message rows. Assistant message status
// transitions (processing, completed, failed, interrupted) are driven
// by the executor on a background-derived context.
type MessageService struct {
	db *sql.DB
}

// NewMessageService creates a new MessageService
func NewMessageService(db *sql.DB) *MessageService {
	return &MessageService{db: db}
}

// CreateTurn persists a user message and its paired assistant
// placeholder in one transaction. The assistant message starts in
// status pending; the executor flips it to processing when the run
// begins. Returns both messages.
func (s *MessageService) CreateTurn(ctx context.Context, chatID, userContent string) (*models.Message, *models.Message, error) {
	if chatID == "" {
		return nil, nil, NewValidationError("chat_id", "required")
	}
	if userContent == "" {
		return nil, nil, NewValidationError("content", "required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// Chat must exist; surface a clean not-found instead of an FK error.
	var exists bool
	if err := tx.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM chats WHERE id = $1)`, chatID).Scan(&exists); err != nil {
		return nil, nil, fmt.Errorf("failed to check chat %s: %w", chatID, err)
	}
	if !exists {
		return nil, nil, ErrNotFound
	}

	userMsg := &models.Message{
		ID:      uuid.NewString(),
		ChatID:  chatID,
		Role:    models.RoleUser,
		Status:  models.StatusCompleted,
		Content: userContent,
	}
	err = tx.QueryRowContext(ctx,
		`INSERT INTO messages (id, chat_id, role, status, content)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING created_at, updated_at`,
		userMsg.ID, userMsg.ChatID, string(userMsg.Role), string(userMsg.Status), userMsg.Content,
	).Scan(&userMsg.CreatedAt, &userMsg.UpdatedAt)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create user message: %w", err)
	}

	assistantMsg := &models.Message{
		ID:     uuid.NewString(),
		ChatID: chatID,
		Role:   models.RoleAssistant,
		Status: models.StatusPending,
	}
	err = tx.QueryRowContext(ctx,
		`INSERT INTO messages (id, chat_id, role, status)
		 VALUES ($1, $2, $3, $4)
		 RETURNING created_at, updated_at`,
		assistantMsg.ID, assistantMsg.ChatID, string(assistantMsg.Role), string(assistantMsg.Status),
	).Scan(&assistantMsg.CreatedAt, &assistantMsg.UpdatedAt)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create assistant message: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE chats SET updated_at = now() WHERE id = $1`, chatID); err != nil {
		return nil, nil, fmt.Errorf("failed to touch chat %s: %w", chatID, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("failed to commit turn: %w", err)
	}

	return userMsg, assistantMsg, nil
}

// CreateAssistant persists a standalone assistant placeholder, used
// when resuming an interrupted run as a fresh message.
func (s *MessageService) CreateAssistant(ctx context.Context, chatID string) (*models.Message, error) {
	if chatID == "" {
		return nil, NewValidationError("chat_id", "required")
	}

	msg := &models.Message{
		ID:     uuid.NewString(),
		ChatID: chatID,
		Role:   models.RoleAssistant,
		Status: models.StatusPending,
	}
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO messages (id, chat_id, role, status)
		 VALUES ($1, $2, $3, $4)
		 RETURNING created_at, updated_at`,
		msg.ID, msg.ChatID, string(msg.Role), string(msg.Status),
	).Scan(&msg.CreatedAt, &msg.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create assistant message: %w", err)
	}

	return msg, nil
}

// Get retrieves a message by id.
func (s *MessageService) Get(ctx context.Context, messageID string) (*models.Message, error) {
	if messageID == "" {
		return nil, NewValidationError("message_id", "required")
	}

	msg := &models.Message{ID: messageID}
	var role, status string
	err := s.db.QueryRowContext(ctx,
		`SELECT chat_id, role, status, content, error, processing_time_ms, created_at, updated_at
		 FROM messages WHERE id = $1`, messageID,
	).Scan(&msg.ChatID, &role, &status, &msg.Content, &msg.Error, &msg.ProcessingTimeMS, &msg.CreatedAt, &msg.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message %s: %w", messageID, err)
	}
	msg.Role = models.MessageRole(role)
	msg.Status = models.MessageStatus(status)

	return msg, nil
}

// List returns a page of a chat's messages in creation order.
func (s *MessageService) List(ctx context.Context, chatID string, limit, offset int) ([]*models.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, role, status, content, error, processing_time_ms, created_at, updated_at
		 FROM messages
		 WHERE chat_id = $1
		 ORDER BY created_at ASC, id ASC
		 LIMIT $2 OFFSET $3`,
		chatID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages for chat %s: %w", chatID, err)
	}
	defer rows.Close()

	var messages []*models.Message
	for rows.Next() {
		msg := &models.Message{ChatID: chatID}
		var role, status string
		if err := rows.Scan(&msg.ID, &role, &status, &msg.Content, &msg.Error,
			&msg.ProcessingTimeMS, &msg.CreatedAt, &msg.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		msg.Role = models.MessageRole(role)
		msg.Status = models.MessageStatus(status)
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate message rows: %w", err)
	}

	return messages, nil
}

// MarkProcessing transitions a message to processing.
func (s *MessageService) MarkProcessing(_ context.Context, messageID string) error {
	return s.updateStatus(messageID, models.StatusProcessing, "", "", 0)
}

// Complete finalizes a successful run: status, final content, timing.
func (s *MessageService) Complete(_ context.Context, messageID, content string, processingTimeMS int64) error {
	return s.updateStatus(messageID, models.StatusCompleted, content, "", processingTimeMS)
}

// Fail finalizes a failed run.
func (s *MessageService) Fail(_ context.Context, messageID, errMsg string, processingTimeMS int64) error {
	return s.updateStatus(messageID, models.StatusFailed, "", errMsg, processingTimeMS)
}

// Interrupt marks a run paused for human input.
func (s *MessageService) Interrupt(_ context.Context, messageID, content string, processingTimeMS int64) error {
	return s.updateStatus(messageID, models.StatusInterrupted, content, "", processingTimeMS)
}

// updateStatus runs on a background-derived context: message status is
// part of the run's durable outcome and must land even when the
// triggering request is gone.
func (s *MessageService) updateStatus(messageID string, status models.MessageStatus, content, errMsg string, processingTimeMS int64) error {
	writeCtx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	res, err := s.db.ExecContext(writeCtx,
		`UPDATE messages
		 SET status = $2,
		     content = CASE WHEN $3 <> '' THEN $3 ELSE content END,
		     error = $4,
		     processing_time_ms = CASE WHEN $5 > 0 THEN $5 ELSE processing_time_ms END,
		     updated_at = now()
		 WHERE id = $1`,
		messageID, string(status), content, errMsg, processingTimeMS)
	if err != nil {
		return fmt.Errorf("failed to update message %s to %s: %w", messageID, status, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}

	return nil
}
