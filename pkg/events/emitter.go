package events

import (
	"context"
	"sync"
	"time"

	"github.com/rupeshksingh/deepagents/pkg/models"
)

// Emitter is the in-process handoff queue between agent code and the
// executor's drain loop. Emit never blocks and never fails: the queue
// is unbounded, so instrumentation can never slow the agent down.
// Exactly one consumer (the executor) dequeues.
type Emitter struct {
	mu     sync.Mutex
	queue  []models.StreamEvent
	signal chan struct{}
	closed bool
}

// NewEmitter creates an empty emitter.
func NewEmitter() *Emitter {
	return &Emitter{
		signal: make(chan struct{}, 1),
	}
}

// Emit enqueues one event. Events emitted after Close are dropped.
func (e *Emitter) Emit(ev models.StreamEvent) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.queue = append(e.queue, ev)
	e.mu.Unlock()

	select {
	case e.signal <- struct{}{}:
	default:
	}
}

// TryNext dequeues the oldest pending event without waiting.
func (e *Emitter) TryNext() (models.StreamEvent, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.queue) == 0 {
		return models.StreamEvent{}, false
	}
	ev := e.queue[0]
	e.queue = e.queue[1:]
	return ev, true
}

// Next dequeues the oldest pending event, waiting up to timeout for
// one to arrive. Returns false on timeout or context cancellation.
func (e *Emitter) Next(ctx context.Context, timeout time.Duration) (models.StreamEvent, bool) {
	if ev, ok := e.TryNext(); ok {
		return ev, true
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return models.StreamEvent{}, false
		case <-timer.C:
			return e.TryNext()
		case <-e.signal:
			if ev, ok := e.TryNext(); ok {
				return ev, true
			}
		}
	}
}

// Drain removes and returns all pending events in FIFO order.
func (e *Emitter) Drain() []models.StreamEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	drained := e.queue
	e.queue = nil
	return drained
}

// Len returns the number of pending events.
func (e *Emitter) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.queue)
}

// Close marks the emitter closed; subsequent Emit calls are dropped.
// Pending events stay dequeueable so the final drain loses nothing.
func (e *Emitter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
}

// Closed reports whether Close has been called.
func (e *Emitter) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}
