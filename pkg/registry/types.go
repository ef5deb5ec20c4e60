// Package registry tracks running agent tasks and drives their
// execution: one executor goroutine per assistant message, decoupled
// from every HTTP connection.
package registry

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rupeshksingh/deepagents/pkg/models"
)

// ErrInterrupted is returned by an agent that paused for human input.
// The run ends with an interrupted terminal event instead of a failure.
var ErrInterrupted = errors.New("agent interrupted for human input")

// Invocation carries everything an agent needs for one run.
type Invocation struct {
	MessageID string
	ChatID    string
	Prompt    string

	// Human-in-the-loop resume: the id of the interrupted message this
	// run continues, plus the user's decision. Empty for normal turns.
	ResumeOf      string
	ResumeAction  string
	ResumePayload string
}

// AgentFunc is the reasoning engine contract. It runs with an ambient
// emitter installed in ctx (events.EmitterFromContext) and returns the
// final response text. Returning ErrInterrupted (possibly wrapped)
// signals a human-in-the-loop pause rather than a failure. The
// function must honor ctx cancellation.
type AgentFunc func(ctx context.Context, inv Invocation) (string, error)

// AgentTask is the registry's bookkeeping for one run.
type AgentTask struct {
	MessageID string
	ChatID    string
	StartedAt time.Time

	cancel context.CancelFunc
	done   chan struct{}

	mu          sync.Mutex
	watchers    map[string]struct{}
	completed   bool
	completedAt time.Time
	errMsg      string
}

func newAgentTask(messageID, chatID string, cancel context.CancelFunc) *AgentTask {
	return &AgentTask{
		MessageID: messageID,
		ChatID:    chatID,
		StartedAt: time.Now(),
		cancel:    cancel,
		done:      make(chan struct{}),
		watchers:  make(map[string]struct{}),
	}
}

// Done returns a channel closed when the run finishes.
func (t *AgentTask) Done() <-chan struct{} {
	return t.done
}

// Completed reports whether the run has finished.
func (t *AgentTask) Completed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.completed
}

func (t *AgentTask) complete(errMsg string) {
	t.mu.Lock()
	t.completed = true
	t.completedAt = time.Now()
	t.errMsg = errMsg
	t.mu.Unlock()
	close(t.done)
}

func (t *AgentTask) addWatcher(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.watchers[id] = struct{}{}
}

func (t *AgentTask) removeWatcher(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.watchers, id)
}

// expired reports whether a finished task is old enough to collect.
func (t *AgentTask) expired(maxAge time.Duration, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.completed && now.Sub(t.completedAt) > maxAge
}

// Snapshot returns the API view of the task.
func (t *AgentTask) Snapshot() models.RunningTask {
	t.mu.Lock()
	defer t.mu.Unlock()
	return models.RunningTask{
		MessageID: t.MessageID,
		ChatID:    t.ChatID,
		StartedAt: t.StartedAt,
		Watchers:  len(t.watchers),
		Completed: t.completed,
		Error:     t.errMsg,
	}
}
