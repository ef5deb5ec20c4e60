package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/rupeshksingh/deepagents/pkg/models"
)

// pgUniqueViolation is the PostgreSQL error code for unique_violation.
const pgUniqueViolation = "23505"

// writeTimeout bounds persistence statements. Writes run on a fresh
// background-derived context so a disconnected caller can never abort
// an in-flight insert.
const writeTimeout = 5 * time.Second

// EventService is the durable event store: atomic sequence allocation,
// append-only writes, and ordered reads for catch-up and replay.
type EventService struct {
	db *sql.DB
}

// NewEventService creates a new EventService
func NewEventService(db *sql.DB) *EventService {
	return &EventService{db: db}
}

// AllocateSeq atomically allocates the next sequence number for a
// message. The first allocation returns 1. The single-statement upsert
// serializes concurrent allocators on the counter row lock, so no two
// callers ever observe the same value.
func (s *EventService) AllocateSeq(_ context.Context, messageID string) (uint64, error) {
	if messageID == "" {
		return 0, NewValidationError("message_id", "required")
	}

	writeCtx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	var seq uint64
	err := s.db.QueryRowContext(writeCtx,
		`INSERT INTO message_counters (message_id, next_seq)
		 VALUES ($1, 1)
		 ON CONFLICT (message_id)
		 DO UPDATE SET next_seq = message_counters.next_seq + 1
		 RETURNING next_seq`,
		messageID,
	).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("failed to allocate seq for message %s: %w", messageID, err)
	}

	return seq, nil
}

// Append inserts one event row. Returns ErrConflict when the
// (message_id, seq) slot or the (message_id, event_id) pair is already
// taken; the caller treats the latter as an idempotent duplicate.
func (s *EventService) Append(_ context.Context, rec models.EventRecord) error {
	if rec.MessageID == "" {
		return NewValidationError("message_id", "required")
	}
	if rec.Seq == 0 {
		return NewValidationError("seq", "must be positive")
	}

	writeCtx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	_, err := s.db.ExecContext(writeCtx,
		`INSERT INTO message_events (message_id, chat_id, seq, event_id, type, ts, payload)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.MessageID, rec.ChatID, rec.Seq, rec.EventID, string(rec.Type), rec.TS, rec.Payload,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return fmt.Errorf("event %s seq %d: %w", rec.EventID, rec.Seq, ErrConflict)
		}
		return fmt.Errorf("failed to append event for message %s: %w", rec.MessageID, err)
	}

	return nil
}

// ReadSince returns events for a message with seq > sinceSeq, ordered
// by seq ascending. limit <= 0 means no limit.
func (s *EventService) ReadSince(ctx context.Context, messageID string, sinceSeq uint64, limit int) ([]models.EventRecord, error) {
	query := `SELECT message_id, chat_id, seq, event_id, type, ts, payload
		 FROM message_events
		 WHERE message_id = $1 AND seq > $2
		 ORDER BY seq ASC`
	args := []any{messageID, sinceSeq}
	if limit > 0 {
		query += ` LIMIT $3`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to read events for message %s: %w", messageID, err)
	}
	defer rows.Close()

	var records []models.EventRecord
	for rows.Next() {
		var rec models.EventRecord
		var typ string
		if err := rows.Scan(&rec.MessageID, &rec.ChatID, &rec.Seq, &rec.EventID, &typ, &rec.TS, &rec.Payload); err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}
		rec.Type = models.EventType(typ)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate event rows: %w", err)
	}

	return records, nil
}

// ReadAll returns the full event log for a message in seq order.
func (s *EventService) ReadAll(ctx context.Context, messageID string) ([]models.EventRecord, error) {
	return s.ReadSince(ctx, messageID, 0, 0)
}

// CountEvents returns the number of persisted events for a message.
func (s *EventService) CountEvents(ctx context.Context, messageID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM message_events WHERE message_id = $1`, messageID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count events for message %s: %w", messageID, err)
	}
	return count, nil
}

// CleanupExpired deletes events older than ttl, plus counters whose
// message no longer has any events. A zero ttl disables pruning.
func (s *EventService) CleanupExpired(ctx context.Context, ttl time.Duration) (int64, error) {
	if ttl <= 0 {
		return 0, nil
	}

	cutoff := time.Now().Add(-ttl)
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM message_events WHERE ts < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup expired events: %w", err)
	}
	deleted, _ := res.RowsAffected()

	if deleted > 0 {
		_, err = s.db.ExecContext(ctx,
			`DELETE FROM message_counters mc
			 WHERE NOT EXISTS (
			     SELECT 1 FROM message_events me WHERE me.message_id = mc.message_id
			 )`)
		if err != nil {
			return deleted, fmt.Errorf("failed to cleanup orphaned counters: %w", err)
		}
	}

	return deleted, nil
}

// DeleteMessageEvents removes the full event log and counter for a
// message. Debug/admin helper.
func (s *EventService) DeleteMessageEvents(ctx context.Context, messageID string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM message_events WHERE message_id = $1`, messageID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete events for message %s: %w", messageID, err)
	}
	deleted, _ := res.RowsAffected()

	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM message_counters WHERE message_id = $1`, messageID); err != nil {
		return deleted, fmt.Errorf("failed to delete counter for message %s: %w", messageID, err)
	}

	return deleted, nil
}
