package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/rupeshksingh/deepagents/pkg/config"
	"github.com/rupeshksingh/deepagents/pkg/models"
)

// RunChecker reports whether an agent run is currently active for a
// message. The task registry implements this.
type RunChecker interface {
	IsRunning(messageID string) bool
}

// Watcher turns the persisted event log into a live per-consumer
// stream: catch-up from a cursor, then polling until the log reaches
// its terminal event. Each Stream call owns its own cursor, so any
// number of consumers can follow the same message independently.
type Watcher struct {
	store  Store
	runs   RunChecker
	cfg    *config.StreamingConfig
	logger *slog.Logger
}

// NewWatcher creates a watcher over the given store and run registry.
func NewWatcher(store Store, runs RunChecker, cfg *config.StreamingConfig, logger *slog.Logger) *Watcher {
	return &Watcher{store: store, runs: runs, cfg: cfg, logger: logger}
}

// Stream returns a channel that yields events for messageID with
// seq > sinceSeq, in seq order, until one of: a terminal event is
// delivered, the log stays inactive past the max wait, the run is over
// and the log is fully consumed, or ctx is cancelled. The channel is
// closed when the stream ends.
func (w *Watcher) Stream(ctx context.Context, messageID string, sinceSeq uint64) <-chan models.EventRecord {
	ch := make(chan models.EventRecord, 16)
	go w.run(ctx, messageID, sinceSeq, ch)
	return ch
}

func (w *Watcher) run(ctx context.Context, messageID string, sinceSeq uint64, ch chan<- models.EventRecord) {
	defer close(ch)

	var (
		cursor       = sinceSeq
		start        = time.Now()
		lastActivity = time.Now()
		grace        = w.cfg.WatcherGrace()
	)

	for {
		records, err := w.store.ReadSince(ctx, messageID, cursor, 0)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			// Transient read failure: keep the stream alive and poll again.
			w.logger.Warn("Watcher read failed", "message_id", messageID, "error", err)
		}

		for _, rec := range records {
			select {
			case ch <- rec:
			case <-ctx.Done():
				return
			}
			cursor = rec.Seq
			lastActivity = time.Now()

			if rec.Type.Terminal() {
				return
			}
		}

		if len(records) == 0 && err == nil && !w.runs.IsRunning(messageID) {
			if cursor > 0 || w.logNonEmpty(ctx, messageID) {
				// Run is over and the log is fully consumed; a
				// terminal event was either delivered above or
				// pruned, so nothing more will come.
				return
			}
			// No run and no events yet: the task may be between
			// registration and its first write. Extend a short grace.
			if time.Since(start) > grace {
				w.logger.Info("Watcher grace expired with no events", "message_id", messageID)
				return
			}
		}

		if time.Since(lastActivity) > w.cfg.WatcherMaxWait {
			w.logger.Warn("Watcher max wait exceeded", "message_id", messageID,
				"max_wait", w.cfg.WatcherMaxWait)
			return
		}

		if !sleepCtx(ctx, w.cfg.PollInterval) {
			return
		}
	}
}

// logNonEmpty reports whether the message has any persisted events.
func (w *Watcher) logNonEmpty(ctx context.Context, messageID string) bool {
	records, err := w.store.ReadSince(ctx, messageID, 0, 1)
	return err == nil && len(records) > 0
}

// sleepCtx waits for d; returns false when ctx is cancelled first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
