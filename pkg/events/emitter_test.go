package events

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rupeshksingh/deepagents/pkg/models"
)

func TestEmitter_FIFO(t *testing.T) {
	e := NewEmitter()
	for i := 0; i < 5; i++ {
		e.Emit(models.NewContentEvent(fmt.Sprintf("chunk-%d", i)))
	}
	assert.Equal(t, 5, e.Len())

	for i := 0; i < 5; i++ {
		ev, ok := e.TryNext()
		require.True(t, ok)
		assert.Equal(t, fmt.Sprintf("chunk-%d", i), ev.MD)
	}
	_, ok := e.TryNext()
	assert.False(t, ok)
}

func TestEmitter_NextWaits(t *testing.T) {
	e := NewEmitter()

	go func() {
		time.Sleep(20 * time.Millisecond)
		e.Emit(models.NewThinkingEvent("late", models.AgentTypeMain, ""))
	}()

	ev, ok := e.Next(context.Background(), time.Second)
	require.True(t, ok)
	assert.Equal(t, "late", ev.Text)
}

func TestEmitter_NextTimeout(t *testing.T) {
	e := NewEmitter()
	start := time.Now()
	_, ok := e.Next(context.Background(), 30*time.Millisecond)
	assert.False(t, ok)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestEmitter_NextRespectsContext(t *testing.T) {
	e := NewEmitter()
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, ok := e.Next(ctx, time.Minute)
	assert.False(t, ok)
}

func TestEmitter_CloseDropsNewKeepsPending(t *testing.T) {
	e := NewEmitter()
	e.Emit(models.NewContentEvent("before"))
	e.Close()
	e.Emit(models.NewContentEvent("after"))

	drained := e.Drain()
	require.Len(t, drained, 1)
	assert.Equal(t, "before", drained[0].MD)
	assert.True(t, e.Closed())
}

func TestEmitter_ConcurrentEmit(t *testing.T) {
	e := NewEmitter()
	const producers, perProducer = 8, 100

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				e.Emit(models.NewContentEvent("x"))
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, producers*perProducer, e.Len())
	assert.Len(t, e.Drain(), producers*perProducer)
	assert.Equal(t, 0, e.Len())
}

func TestEmitterFromContext(t *testing.T) {
	assert.Nil(t, EmitterFromContext(context.Background()))

	e := NewEmitter()
	ctx := WithEmitter(context.Background(), e)
	assert.Same(t, e, EmitterFromContext(ctx))

	EmitThinking(ctx, "pondering", models.AgentTypeMain, "")
	EmitToolStart(ctx, "call-1", "search", "q=go", "")
	require.Equal(t, 2, e.Len())

	ev, _ := e.TryNext()
	assert.Equal(t, models.EventTypeThinking, ev.Type)
	ev, _ = e.TryNext()
	assert.Equal(t, models.EventTypeToolStart, ev.Type)

	// Emitting without an ambient emitter is a no-op, not a panic.
	EmitContent(context.Background(), "nowhere")
}
