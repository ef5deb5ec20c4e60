package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rupeshksingh/deepagents/pkg/events"
	"github.com/rupeshksingh/deepagents/pkg/models"
)

// Step is one scripted action inside a scripted agent run.
type Step func(ctx context.Context, inv Invocation) error

// Scripted builds an agent that performs the given steps in order and
// returns final as its response. Tests and the built-in echo engine
// use this; a real reasoning engine plugs in through AgentFunc the
// same way.
func Scripted(final string, steps ...Step) AgentFunc {
	return func(ctx context.Context, inv Invocation) (string, error) {
		for _, step := range steps {
			if err := ctx.Err(); err != nil {
				return "", err
			}
			if err := step(ctx, inv); err != nil {
				return "", err
			}
		}
		return final, nil
	}
}

// StepThinking emits a reasoning snippet.
func StepThinking(text string) Step {
	return func(ctx context.Context, _ Invocation) error {
		events.EmitThinking(ctx, text, models.AgentTypeMain, "")
		return nil
	}
}

// StepPlan emits a plan with the given step texts, all pending.
func StepPlan(texts ...string) Step {
	return func(ctx context.Context, _ Invocation) error {
		items := make([]models.PlanItem, len(texts))
		for i, text := range texts {
			items[i] = models.PlanItem{
				ID:     fmt.Sprintf("step-%d", i+1),
				Text:   text,
				Status: models.PlanItemPending,
			}
		}
		events.EmitPlan(ctx, items)
		return nil
	}
}

// StepToolCall emits a tool_start/tool_end pair around a simulated
// tool execution of duration d.
func StepToolCall(name, argsSummary, result string, d time.Duration) Step {
	return func(ctx context.Context, _ Invocation) error {
		callID := uuid.NewString()
		started := time.Now()
		events.EmitToolStart(ctx, callID, name, argsSummary, "")
		if !sleepStep(ctx, d) {
			return ctx.Err()
		}
		events.EmitToolEnd(ctx, callID, name, models.ToolStatusOK,
			time.Since(started).Milliseconds(), result)
		return nil
	}
}

// StepSubagent emits a subagent_start/subagent_end pair around the
// inner steps.
func StepSubagent(description string, inner ...Step) Step {
	return func(ctx context.Context, inv Invocation) error {
		agentID := uuid.NewString()
		parentCallID := uuid.NewString()
		started := time.Now()
		events.EmitSubagentStart(ctx, agentID, parentCallID, description)
		for _, step := range inner {
			if err := step(ctx, inv); err != nil {
				return err
			}
		}
		events.EmitSubagentEnd(ctx, agentID, parentCallID, time.Since(started).Milliseconds())
		return nil
	}
}

// StepContent streams text through content events directly.
func StepContent(chunks ...string) Step {
	return func(ctx context.Context, _ Invocation) error {
		events.EmitContentStart(ctx, models.AgentTypeMain, "")
		for _, chunk := range chunks {
			events.EmitContent(ctx, chunk)
		}
		events.EmitContentEnd(ctx, models.AgentTypeMain, "")
		return nil
	}
}

// StepStatus emits a progress note.
func StepStatus(text string) Step {
	return func(ctx context.Context, _ Invocation) error {
		events.EmitStatus(ctx, text, "")
		return nil
	}
}

// StepSleep pauses the script, honoring cancellation.
func StepSleep(d time.Duration) Step {
	return func(ctx context.Context, _ Invocation) error {
		if !sleepStep(ctx, d) {
			return ctx.Err()
		}
		return nil
	}
}

// StepFail aborts the script with err.
func StepFail(err error) Step {
	return func(context.Context, Invocation) error {
		return err
	}
}

// StepInterrupt pauses the run for human input: it emits a status
// event carrying the interrupt payload, then returns ErrInterrupted.
func StepInterrupt(prompt, payloadJSON string) Step {
	return func(ctx context.Context, _ Invocation) error {
		events.EmitStatus(ctx, prompt, payloadJSON)
		return ErrInterrupted
	}
}

// EchoAgent is the built-in engine used when no real reasoning engine
// is wired: it thinks briefly, runs one simulated tool call, and
// echoes the prompt back as its response.
func EchoAgent(toolDuration time.Duration) AgentFunc {
	return func(ctx context.Context, inv Invocation) (string, error) {
		prompt := inv.Prompt
		agent := Scripted(
			fmt.Sprintf("You said: %s", prompt),
			StepThinking("Reading the request"),
			StepToolCall("echo", prompt, "ok", toolDuration),
		)
		return agent(ctx, inv)
	}
}

func sleepStep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
