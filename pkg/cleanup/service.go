// Package cleanup provides data retention and cleanup services.
package cleanup

import (
	"context"
	"log/slog"
	"time"

	"github.com/rupeshksingh/deepagents/pkg/config"
)

// TaskCollector is the registry surface the cleanup loop drives.
type TaskCollector interface {
	GC(maxAge time.Duration) int
}

// EventPruner is the event store surface the cleanup loop drives.
type EventPruner interface {
	CleanupExpired(ctx context.Context, ttl time.Duration) (int64, error)
}

// Service periodically enforces retention policies:
//   - Collects finished agent tasks past the registry GC horizon
//   - Prunes stream events past their TTL (when a TTL is set)
//
// All operations are idempotent.
type Service struct {
	config   *config.RetentionConfig
	registry TaskCollector
	events   EventPruner

	cancel context.CancelFunc
	done   chan struct{}
}

// NewService creates a new cleanup service.
func NewService(cfg *config.RetentionConfig, registry TaskCollector, events EventPruner) *Service {
	return &Service{
		config:   cfg,
		registry: registry,
		events:   events,
	}
}

// Start launches the background cleanup loop.
func (s *Service) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	slog.Info("Cleanup service started",
		"registry_gc_max_age", s.config.RegistryGCMaxAge,
		"event_ttl", s.config.EventTTL,
		"interval", s.config.CleanupInterval)
}

// Stop signals the cleanup loop to exit and waits for it to finish.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	slog.Info("Cleanup service stopped")
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	s.runAll(ctx)

	ticker := time.NewTicker(s.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runAll(ctx)
		}
	}
}

func (s *Service) runAll(ctx context.Context) {
	s.collectTasks()
	s.pruneEvents(ctx)
}

func (s *Service) collectTasks() {
	removed := s.registry.GC(s.config.RegistryGCMaxAge)
	if removed > 0 {
		slog.Info("Collected finished agent tasks", "removed", removed)
	}
}

func (s *Service) pruneEvents(_ context.Context) {
	if s.config.EventTTL <= 0 {
		return
	}
	deleted, err := s.events.CleanupExpired(context.Background(), s.config.EventTTL)
	if err != nil {
		slog.Warn("Event pruning failed", "error", err)
		return
	}
	if deleted > 0 {
		slog.Info("Pruned expired stream events", "deleted", deleted)
	}
}
