package events

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/rupeshksingh/deepagents/pkg/config"
	"github.com/rupeshksingh/deepagents/pkg/models"
	"github.com/rupeshksingh/deepagents/pkg/services"
)

// RobustWriter persists stream events and absorbs store outages so
// that persistence failures can never propagate into the executor: a
// write either lands in the store, lands in the bounded fallback queue
// for a later redrain, or is dropped with a log line. Write has no
// error return on purpose.
type RobustWriter struct {
	store           Store
	logger          *slog.Logger
	retrySchedule   []time.Duration
	redrainInterval time.Duration

	mu       sync.Mutex
	fallback []models.StreamEvent
	capacity int

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewRobustWriter creates a writer over the given store.
func NewRobustWriter(store Store, cfg *config.StreamingConfig, logger *slog.Logger) *RobustWriter {
	return &RobustWriter{
		store:           store,
		logger:          logger,
		retrySchedule:   cfg.WriterRetrySchedule,
		redrainInterval: cfg.WriterRedrainInterval,
		capacity:        cfg.WriterFallbackCapacity,
		stopCh:          make(chan struct{}),
	}
}

// Start launches the background redrain loop, which periodically
// retries fallback-queued events against the store.
func (w *RobustWriter) Start() {
	w.wg.Add(1)
	go w.redrainLoop()
}

// Stop terminates the redrain loop. Events still queued at this point
// are lost; the loss is logged with a count.
func (w *RobustWriter) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()

	w.mu.Lock()
	lost := len(w.fallback)
	w.fallback = nil
	w.mu.Unlock()
	if lost > 0 {
		w.logger.Error("Writer stopped with unpersisted events", "lost", lost)
	}
}

// Write persists one event: allocates its sequence number, stamps id
// and timestamp, and appends. On persistent store failure the event
// goes to the fallback queue and ok is false. The returned record is
// only meaningful when ok is true.
func (w *RobustWriter) Write(ctx context.Context, ev models.StreamEvent) (models.EventRecord, bool) {
	rec, err := w.persist(ctx, ev)
	if err != nil {
		w.logger.Warn("Event persistence failed, queuing to fallback",
			"message_id", ev.MessageID, "type", string(ev.Type), "error", err)
		w.enqueueFallback(ev)
		return models.EventRecord{}, false
	}
	return rec, true
}

// WriteSync persists a terminal event after first flushing any
// fallback-queued predecessors, so the terminal event keeps the
// highest sequence number of the log.
func (w *RobustWriter) WriteSync(ctx context.Context, ev models.StreamEvent) (models.EventRecord, bool) {
	w.flushFallback(ctx)
	return w.Write(ctx, ev)
}

// persist runs the full pipeline once, with per-step retries.
func (w *RobustWriter) persist(ctx context.Context, ev models.StreamEvent) (models.EventRecord, error) {
	var seq uint64
	err := w.withRetries(ctx, func() error {
		var aerr error
		seq, aerr = w.store.AllocateSeq(ctx, ev.MessageID)
		return aerr
	})
	if err != nil {
		return models.EventRecord{}, err
	}

	now := time.Now()
	ev.Seq = seq
	if ev.TS == "" {
		ev.TS = models.FormatTimestamp(now)
	}
	if ev.ID == "" {
		ev.ID = NewEventID(now, seq)
	}

	ts, terr := models.ParseTimestamp(ev.TS)
	if terr != nil {
		ts = now
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return models.EventRecord{}, err
	}

	rec := models.EventRecord{
		MessageID: ev.MessageID,
		ChatID:    ev.ChatID,
		Seq:       seq,
		EventID:   ev.ID,
		Type:      ev.Type,
		TS:        ts,
		Payload:   payload,
	}

	err = w.withRetries(ctx, func() error {
		aerr := w.store.Append(ctx, rec)
		if errors.Is(aerr, services.ErrConflict) {
			// The slot or id is already persisted; a redelivered
			// event is a success, not a failure.
			w.logger.Info("Event append conflict treated as duplicate",
				"message_id", rec.MessageID, "seq", rec.Seq, "event_id", rec.EventID)
			return nil
		}
		return aerr
	})
	if err != nil {
		return models.EventRecord{}, err
	}

	return rec, nil
}

// withRetries runs op up to len(schedule)+1 times, sleeping the
// scheduled delay between attempts.
func (w *RobustWriter) withRetries(ctx context.Context, op func() error) error {
	err := op()
	for _, delay := range w.retrySchedule {
		if err == nil {
			return nil
		}
		if !w.sleep(ctx, delay) {
			return err
		}
		err = op()
	}
	return err
}

// sleep waits for d unless the context is cancelled or the writer is
// stopping. Returns false when interrupted.
func (w *RobustWriter) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	case <-w.stopCh:
		return false
	}
}

// enqueueFallback appends the partial event to the bounded queue,
// dropping the oldest entry on overflow. Seq and id are cleared so the
// redrain restamps them; the original timestamp is kept.
func (w *RobustWriter) enqueueFallback(ev models.StreamEvent) {
	if ev.TS == "" {
		ev.TS = models.FormatTimestamp(time.Now())
	}
	ev.Seq = 0
	ev.ID = ""

	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.fallback) >= w.capacity {
		dropped := w.fallback[0]
		w.fallback = w.fallback[1:]
		w.logger.Error("Fallback queue full, dropping oldest event",
			"message_id", dropped.MessageID, "type", string(dropped.Type))
	}
	w.fallback = append(w.fallback, ev)
}

// FallbackLen returns the number of events awaiting redrain.
func (w *RobustWriter) FallbackLen() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.fallback)
}

func (w *RobustWriter) redrainLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.redrainInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.flushFallback(context.Background())
		}
	}
}

// flushFallback retries queued events in FIFO order. The first
// failure stops the pass; the remainder stays queued for the next one.
func (w *RobustWriter) flushFallback(ctx context.Context) {
	for {
		w.mu.Lock()
		if len(w.fallback) == 0 {
			w.mu.Unlock()
			return
		}
		ev := w.fallback[0]
		w.mu.Unlock()

		if _, err := w.persist(ctx, ev); err != nil {
			return
		}

		w.mu.Lock()
		// Head may have been dropped by an overflow while we wrote.
		if len(w.fallback) > 0 {
			w.fallback = w.fallback[1:]
		}
		w.mu.Unlock()

		w.logger.Info("Redrained fallback event",
			"message_id", ev.MessageID, "type", string(ev.Type))
	}
}
