package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/rupeshksingh/deepagents/pkg/config"
	"github.com/rupeshksingh/deepagents/pkg/events"
	"github.com/rupeshksingh/deepagents/pkg/models"
)

// contentChunkWords is the word count per streamed content chunk when
// the executor chunks a final response itself.
const contentChunkWords = 10

// MessageUpdater is the message lifecycle surface the executor drives.
// services.MessageService is the production implementation.
type MessageUpdater interface {
	MarkProcessing(ctx context.Context, messageID string) error
	Complete(ctx context.Context, messageID, content string, processingTimeMS int64) error
	Fail(ctx context.Context, messageID, errMsg string, processingTimeMS int64) error
	Interrupt(ctx context.Context, messageID, content string, processingTimeMS int64) error
}

// Executor runs one agent task to completion: it opens the event log,
// pumps emitted events into the robust writer while the agent runs,
// keeps the log alive with heartbeats, and always closes the log with
// exactly one terminal event, whatever the agent did.
type Executor struct {
	writer   *events.RobustWriter
	messages MessageUpdater
	cfg      *config.StreamingConfig
	logger   *slog.Logger
}

// NewExecutor creates an executor.
func NewExecutor(writer *events.RobustWriter, messages MessageUpdater, cfg *config.StreamingConfig, logger *slog.Logger) *Executor {
	return &Executor{writer: writer, messages: messages, cfg: cfg, logger: logger}
}

type runState struct {
	lastWrite  time.Time
	toolCalls  int
	sawContent bool
}

type agentResult struct {
	text string
	err  error
}

// Run executes the full protocol for one invocation and returns the
// error message for the task record (empty on success).
func (e *Executor) Run(ctx context.Context, inv Invocation, agent AgentFunc) string {
	start := time.Now()
	log := e.logger.With("message_id", inv.MessageID, "chat_id", inv.ChatID)

	if err := e.messages.MarkProcessing(ctx, inv.MessageID); err != nil {
		log.Warn("Failed to mark message processing", "error", err)
	}

	state := &runState{lastWrite: start}
	e.writeEvent(ctx, inv, models.NewStartEvent(inv.MessageID, inv.ChatID), state)

	emitter := events.NewEmitter()
	agentCtx := events.WithEmitter(ctx, emitter)

	resultCh := make(chan agentResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				resultCh <- agentResult{err: fmt.Errorf("agent panic: %v", r)}
			}
		}()
		text, err := agent(agentCtx, inv)
		resultCh <- agentResult{text: text, err: err}
	}()

	// Drain loop: pump emitted events until the agent returns. The
	// loop never exits on ctx cancellation: a cancelled agent still
	// returns through resultCh, and the log still gets its terminal.
	var res agentResult
	for running := true; running; {
		select {
		case res = <-resultCh:
			running = false
		default:
			e.drainPending(ctx, inv, emitter, state)
			if time.Since(state.lastWrite) >= e.cfg.HeartbeatInterval {
				elapsed := int(time.Since(start).Seconds())
				hb := models.NewStatusEvent(fmt.Sprintf("Processing... (%ds elapsed)", elapsed), "")
				e.writeEvent(ctx, inv, hb, state)
			}
			time.Sleep(e.cfg.DrainInterval)
		}
	}

	// Final sweep: nothing emitted before the agent returned may be lost.
	emitter.Close()
	e.drainPending(context.Background(), inv, emitter, state)

	msTotal := time.Since(start).Milliseconds()
	finalCtx := context.Background()

	switch {
	case res.err == nil:
		if res.text != "" && !state.sawContent {
			e.streamContent(finalCtx, inv, res.text, state)
		}
		end := e.terminalEvent(inv, models.NewEndEvent(models.EndStatusCompleted, msTotal, state.toolCalls))
		e.writer.WriteSync(finalCtx, end)
		if err := e.messages.Complete(finalCtx, inv.MessageID, res.text, msTotal); err != nil {
			log.Warn("Failed to finalize message", "error", err)
		}
		log.Info("Agent run completed", "ms_total", msTotal, "tool_calls", state.toolCalls)
		return ""

	case errors.Is(res.err, ErrInterrupted):
		end := e.terminalEvent(inv, models.NewEndEvent(models.EndStatusInterrupted, msTotal, state.toolCalls))
		e.writer.WriteSync(finalCtx, end)
		if err := e.messages.Interrupt(finalCtx, inv.MessageID, res.text, msTotal); err != nil {
			log.Warn("Failed to mark message interrupted", "error", err)
		}
		log.Info("Agent run paused for human input", "ms_total", msTotal)
		return res.err.Error()

	case errors.Is(res.err, context.Canceled) || ctx.Err() != nil:
		end := e.terminalEvent(inv, models.NewEndEvent(models.EndStatusInterrupted, msTotal, state.toolCalls))
		e.writer.WriteSync(finalCtx, end)
		if err := e.messages.Interrupt(finalCtx, inv.MessageID, "", msTotal); err != nil {
			log.Warn("Failed to mark message interrupted", "error", err)
		}
		log.Info("Agent run cancelled", "ms_total", msTotal)
		return res.err.Error()

	default:
		errEv := e.terminalEvent(inv, models.NewErrorEvent(res.err.Error()))
		errEv.MSTotal = msTotal
		e.writer.WriteSync(finalCtx, errEv)
		if err := e.messages.Fail(finalCtx, inv.MessageID, res.err.Error(), msTotal); err != nil {
			log.Warn("Failed to mark message failed", "error", err)
		}
		log.Error("Agent run failed", "error", res.err, "ms_total", msTotal)
		return res.err.Error()
	}
}

// drainPending writes every event currently queued on the emitter.
func (e *Executor) drainPending(ctx context.Context, inv Invocation, emitter *events.Emitter, state *runState) {
	for {
		ev, ok := emitter.TryNext()
		if !ok {
			return
		}
		e.writeEvent(ctx, inv, ev, state)
	}
}

// writeEvent attributes the event to the run and hands it to the
// writer. Every write resets the heartbeat clock, fallback included.
func (e *Executor) writeEvent(ctx context.Context, inv Invocation, ev models.StreamEvent, state *runState) {
	if ev.MessageID == "" {
		ev.MessageID = inv.MessageID
	}
	if ev.ChatID == "" {
		ev.ChatID = inv.ChatID
	}
	switch ev.Type {
	case models.EventTypeToolStart:
		state.toolCalls++
	case models.EventTypeContentStart, models.EventTypeContent, models.EventTypeContentEnd:
		state.sawContent = true
	}
	e.writer.Write(ctx, ev)
	state.lastWrite = time.Now()
}

// terminalEvent attributes a terminal event to the run.
func (e *Executor) terminalEvent(inv Invocation, ev models.StreamEvent) models.StreamEvent {
	ev.MessageID = inv.MessageID
	ev.ChatID = inv.ChatID
	return ev
}

// streamContent chunks a final response the agent never streamed
// itself into content events, so consumers always see the text arrive
// through the log.
func (e *Executor) streamContent(ctx context.Context, inv Invocation, text string, state *runState) {
	e.writeEvent(ctx, inv, models.NewContentStartEvent(models.AgentTypeMain, ""), state)

	words := strings.Fields(text)
	for i := 0; i < len(words); i += contentChunkWords {
		end := i + contentChunkWords
		if end > len(words) {
			end = len(words)
		}
		chunk := strings.Join(words[i:end], " ")
		if end < len(words) {
			chunk += " "
		}
		e.writeEvent(ctx, inv, models.NewContentEvent(chunk), state)
	}

	e.writeEvent(ctx, inv, models.NewContentEndEvent(models.AgentTypeMain, ""), state)
}
