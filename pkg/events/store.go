package events

import (
	"context"

	"github.com/rupeshksingh/deepagents/pkg/models"
)

// Store is the durable event store surface the pipeline depends on.
// services.EventService is the production implementation; tests supply
// in-memory fakes.
type Store interface {
	// AllocateSeq atomically allocates the next sequence number for a
	// message; the first allocation returns 1.
	AllocateSeq(ctx context.Context, messageID string) (uint64, error)

	// Append inserts one event row; returns services.ErrConflict when
	// the seq slot or event id is already taken.
	Append(ctx context.Context, rec models.EventRecord) error

	// ReadSince returns events with seq > sinceSeq in seq order.
	// limit <= 0 means no limit.
	ReadSince(ctx context.Context, messageID string, sinceSeq uint64, limit int) ([]models.EventRecord, error)
}
