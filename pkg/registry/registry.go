package registry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rupeshksingh/deepagents/pkg/models"
)

// Registry owns all in-flight agent tasks. Task contexts derive from
// the registry's root context, never from a request, so client
// disconnects cannot touch a run; only Abort and Shutdown cancel.
type Registry struct {
	executor *Executor
	logger   *slog.Logger

	rootCtx    context.Context
	rootCancel context.CancelFunc

	mu    sync.RWMutex
	tasks map[string]*AgentTask
}

// NewRegistry creates a registry driving runs through the given executor.
func NewRegistry(executor *Executor, logger *slog.Logger) *Registry {
	rootCtx, rootCancel := context.WithCancel(context.Background())
	return &Registry{
		executor:   executor,
		logger:     logger,
		rootCtx:    rootCtx,
		rootCancel: rootCancel,
		tasks:      make(map[string]*AgentTask),
	}
}

// Start launches an agent run for a message. Idempotent per message
// id: a second call while a task exists (running or finished but not
// yet collected) returns false and starts nothing.
func (r *Registry) Start(inv Invocation, agent AgentFunc) bool {
	r.mu.Lock()
	if _, exists := r.tasks[inv.MessageID]; exists {
		r.mu.Unlock()
		r.logger.Info("Task already registered, ignoring duplicate start",
			"message_id", inv.MessageID)
		return false
	}

	taskCtx, cancel := context.WithCancel(r.rootCtx)
	task := newAgentTask(inv.MessageID, inv.ChatID, cancel)
	r.tasks[inv.MessageID] = task
	r.mu.Unlock()

	r.logger.Info("Agent task started", "message_id", inv.MessageID, "chat_id", inv.ChatID)

	go func() {
		defer cancel()
		errMsg := r.executor.Run(taskCtx, inv, agent)
		task.complete(errMsg)
		r.logger.Info("Agent task finished", "message_id", inv.MessageID, "error", errMsg)
	}()

	return true
}

// IsRunning reports whether a run is active (registered and not yet
// finished) for the message.
func (r *Registry) IsRunning(messageID string) bool {
	r.mu.RLock()
	task, ok := r.tasks[messageID]
	r.mu.RUnlock()
	return ok && !task.Completed()
}

// Get returns the task for a message, if any.
func (r *Registry) Get(messageID string) (*AgentTask, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	task, ok := r.tasks[messageID]
	return task, ok
}

// List returns snapshots of all tasks, optionally filtered by chat.
func (r *Registry) List(chatID string) []models.RunningTask {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.RunningTask, 0, len(r.tasks))
	for _, task := range r.tasks {
		if chatID != "" && task.ChatID != chatID {
			continue
		}
		out = append(out, task.Snapshot())
	}
	return out
}

// ActiveCount returns the number of unfinished runs.
func (r *Registry) ActiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, task := range r.tasks {
		if !task.Completed() {
			count++
		}
	}
	return count
}

// RegisterWatcher records a stream consumer on a task and returns the
// watcher id for later unregistration. ok is false when no task exists.
func (r *Registry) RegisterWatcher(messageID string) (string, bool) {
	r.mu.RLock()
	task, ok := r.tasks[messageID]
	r.mu.RUnlock()
	if !ok {
		return "", false
	}

	watcherID := uuid.NewString()
	task.addWatcher(watcherID)
	return watcherID, true
}

// UnregisterWatcher removes a stream consumer. Removing the last
// watcher has no effect on the run itself.
func (r *Registry) UnregisterWatcher(messageID, watcherID string) {
	r.mu.RLock()
	task, ok := r.tasks[messageID]
	r.mu.RUnlock()
	if ok {
		task.removeWatcher(watcherID)
	}
}

// Abort cancels a running task. The executor still writes the
// terminal event and finalizes the message row. Returns false when no
// active run exists.
func (r *Registry) Abort(messageID string) bool {
	r.mu.RLock()
	task, ok := r.tasks[messageID]
	r.mu.RUnlock()
	if !ok || task.Completed() {
		return false
	}

	r.logger.Info("Aborting agent task", "message_id", messageID)
	task.cancel()
	return true
}

// GC removes finished tasks older than maxAge and returns the count.
func (r *Registry) GC(maxAge time.Duration) int {
	now := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, task := range r.tasks {
		if task.expired(maxAge, now) {
			delete(r.tasks, id)
			removed++
		}
	}
	if removed > 0 {
		r.logger.Info("Collected finished tasks", "removed", removed)
	}
	return removed
}

// Shutdown cancels all runs and waits up to grace for their executors
// to write terminal events and finish. Returns false on timeout.
func (r *Registry) Shutdown(grace time.Duration) bool {
	r.mu.RLock()
	tasks := make([]*AgentTask, 0, len(r.tasks))
	for _, task := range r.tasks {
		tasks = append(tasks, task)
	}
	r.mu.RUnlock()

	r.logger.Info("Registry shutting down", "tasks", len(tasks), "grace", grace)
	r.rootCancel()

	deadline := time.After(grace)
	for _, task := range tasks {
		select {
		case <-task.Done():
		case <-deadline:
			r.logger.Warn("Shutdown grace exceeded with tasks still running")
			return false
		}
	}
	return true
}
