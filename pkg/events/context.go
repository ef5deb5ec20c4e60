package events

import (
	"context"

	"github.com/rupeshksingh/deepagents/pkg/models"
)

type emitterKey struct{}

// WithEmitter installs an emitter into the context. The executor does
// this before invoking the agent, so any code on the agent's call path
// can emit stream events without threading the emitter explicitly.
func WithEmitter(ctx context.Context, e *Emitter) context.Context {
	return context.WithValue(ctx, emitterKey{}, e)
}

// EmitterFromContext returns the ambient emitter, or nil when the
// context carries none (e.g. code running outside an agent task).
func EmitterFromContext(ctx context.Context) *Emitter {
	e, _ := ctx.Value(emitterKey{}).(*Emitter)
	return e
}

// emit sends through the ambient emitter; a no-op without one, so
// instrumented code also works outside an agent run.
func emit(ctx context.Context, ev models.StreamEvent) {
	if e := EmitterFromContext(ctx); e != nil {
		e.Emit(ev)
	}
}

// EmitThinking emits a reasoning snippet.
func EmitThinking(ctx context.Context, text, agentType, agentID string) {
	emit(ctx, models.NewThinkingEvent(text, agentType, agentID))
}

// EmitPlan emits a plan snapshot.
func EmitPlan(ctx context.Context, items []models.PlanItem) {
	emit(ctx, models.NewPlanEvent(items))
}

// EmitToolStart emits the start of a tool invocation.
func EmitToolStart(ctx context.Context, callID, name, argsSummary, argsDisplay string) {
	emit(ctx, models.NewToolStartEvent(callID, name, argsSummary, argsDisplay))
}

// EmitToolEnd emits the completion of a tool invocation.
func EmitToolEnd(ctx context.Context, callID, name, status string, ms int64, resultSummary string) {
	emit(ctx, models.NewToolEndEvent(callID, name, status, ms, resultSummary))
}

// EmitSubagentStart emits delegation to a subagent.
func EmitSubagentStart(ctx context.Context, agentID, parentCallID, description string) {
	emit(ctx, models.NewSubagentStartEvent(agentID, parentCallID, description))
}

// EmitSubagentEnd emits a subagent's completion.
func EmitSubagentEnd(ctx context.Context, agentID, parentCallID string, ms int64) {
	emit(ctx, models.NewSubagentEndEvent(agentID, parentCallID, ms))
}

// EmitContentStart emits the opening of a response content block.
func EmitContentStart(ctx context.Context, agentType, agentID string) {
	emit(ctx, models.NewContentStartEvent(agentType, agentID))
}

// EmitContent emits one markdown chunk of response content.
func EmitContent(ctx context.Context, md string) {
	emit(ctx, models.NewContentEvent(md))
}

// EmitContentEnd emits the close of a response content block.
func EmitContentEnd(ctx context.Context, agentType, agentID string) {
	emit(ctx, models.NewContentEndEvent(agentType, agentID))
}

// EmitStatus emits a progress note.
func EmitStatus(ctx context.Context, text, md string) {
	emit(ctx, models.NewStatusEvent(text, md))
}
