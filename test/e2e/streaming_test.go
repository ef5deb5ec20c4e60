// Package e2e exercises the full stack: HTTP API over real services,
// registry, event pipeline, and PostgreSQL.
package e2e

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rupeshksingh/deepagents/pkg/api"
	"github.com/rupeshksingh/deepagents/pkg/config"
	"github.com/rupeshksingh/deepagents/pkg/events"
	"github.com/rupeshksingh/deepagents/pkg/models"
	"github.com/rupeshksingh/deepagents/pkg/registry"
	"github.com/rupeshksingh/deepagents/pkg/services"
	"github.com/rupeshksingh/deepagents/test/util"
)

type stack struct {
	server   *httptest.Server
	registry *registry.Registry
	messages *services.MessageService
}

func newStack(t *testing.T, agent registry.AgentFunc) *stack {
	t.Helper()
	db := util.SetupTestDatabase(t)

	cfg := config.DefaultStreamingConfig()
	cfg.DrainInterval = time.Millisecond
	cfg.PollInterval = 20 * time.Millisecond
	cfg.WatcherMaxWait = 10 * time.Second
	cfg.WriterRetrySchedule = []time.Duration{10 * time.Millisecond}

	chatService := services.NewChatService(db)
	messageService := services.NewMessageService(db)
	eventService := services.NewEventService(db)

	writer := events.NewRobustWriter(eventService, cfg, slog.Default())
	executor := registry.NewExecutor(writer, messageService, cfg, slog.Default())
	reg := registry.NewRegistry(executor, slog.Default())
	watcher := events.NewWatcher(eventService, reg, cfg, slog.Default())

	server := api.NewServer(db, chatService, messageService, eventService, reg, watcher, agent)
	ts := httptest.NewServer(server.Router())
	t.Cleanup(func() {
		ts.Close()
		reg.Shutdown(5 * time.Second)
	})

	return &stack{server: ts, registry: reg, messages: messageService}
}

func postJSON(t *testing.T, url, body string, out any) int {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

// createTurn creates a chat and posts one user message, returning the
// assistant message id and its stream URL.
func createTurn(t *testing.T, s *stack, content string) api.MessageCreatedResponse {
	t.Helper()
	var chat models.Chat
	code := postJSON(t, s.server.URL+"/api/chats", `{"title":"e2e"}`, &chat)
	require.Equal(t, http.StatusCreated, code)

	var created api.MessageCreatedResponse
	code = postJSON(t, s.server.URL+"/api/chats/"+chat.ID+"/messages",
		fmt.Sprintf(`{"content":%q}`, content), &created)
	require.Equal(t, http.StatusCreated, code)
	return created
}

type sseEvent struct {
	Type string
	ID   string
	Data models.StreamEvent
}

// readSSE consumes a stream until the server closes it.
func readSSE(t *testing.T, resp *http.Response) []sseEvent {
	t.Helper()
	defer resp.Body.Close()
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	var (
		out []sseEvent
		cur sseEvent
	)
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			cur.Type = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "id: "):
			cur.ID = strings.TrimPrefix(line, "id: ")
		case strings.HasPrefix(line, "data: "):
			require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &cur.Data))
			out = append(out, cur)
			cur = sseEvent{}
		}
	}
	return out
}

func streamWithHeader(t *testing.T, url, lastEventID string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	if lastEventID != "" {
		req.Header.Set("Last-Event-ID", lastEventID)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func TestE2E_HappyPathStreamAndReplay(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test in short mode")
	}
	agent := registry.Scripted("the root cause was a stale cache entry",
		registry.StepThinking("inspecting"),
		registry.StepToolCall("query_metrics", "svc=api", "latency spike found", 10*time.Millisecond),
	)
	s := newStack(t, agent)
	created := createTurn(t, s, "why is the api slow?")

	streamed := readSSE(t, streamWithHeader(t, s.server.URL+created.StreamURL, ""))
	require.NotEmpty(t, streamed)

	// Protocol shape: start first, exactly one terminal end last.
	assert.Equal(t, string(models.EventTypeStart), streamed[0].Type)
	last := streamed[len(streamed)-1]
	assert.Equal(t, string(models.EventTypeEnd), last.Type)
	assert.Equal(t, models.EndStatusCompleted, last.Data.Status)
	assert.Equal(t, 1, last.Data.ToolCalls)
	assert.Greater(t, last.Data.MSTotal, int64(0))

	// Seqs strictly increasing and gap-free from 1.
	for i, ev := range streamed {
		assert.Equal(t, uint64(i+1), ev.Data.Seq)
	}

	// Replay returns the identical log.
	var replay api.EventsResponse
	resp, err := http.Get(s.server.URL + "/api/messages/" + created.MessageID + "/events")
	require.NoError(t, err)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&replay))
	resp.Body.Close()
	assert.Len(t, replay.Events, len(streamed))

	// Message row finalized with the response text.
	msg, err := s.messages.Get(context.Background(), created.MessageID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, msg.Status)
	assert.Equal(t, "the root cause was a stale cache entry", msg.Content)
}

func TestE2E_ReconnectResumesWithoutDuplicates(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test in short mode")
	}
	agent := registry.Scripted("done",
		registry.StepThinking("one"),
		registry.StepThinking("two"),
		registry.StepThinking("three"),
	)
	s := newStack(t, agent)
	created := createTurn(t, s, "go")

	full := readSSE(t, streamWithHeader(t, s.server.URL+created.StreamURL, ""))
	require.Greater(t, len(full), 3)

	// Reconnect presenting the second event's id as Last-Event-ID.
	resumed := readSSE(t, streamWithHeader(t, s.server.URL+created.StreamURL, full[1].ID))
	require.Equal(t, len(full)-2, len(resumed))
	assert.Equal(t, full[2].ID, resumed[0].ID)
	for i, ev := range resumed {
		assert.Equal(t, full[i+2].Data.Seq, ev.Data.Seq)
	}
}

func TestE2E_ConcurrentWatchersSeeIdenticalLogs(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test in short mode")
	}
	agent := registry.Scripted("done",
		registry.StepSleep(50*time.Millisecond),
		registry.StepThinking("shared"),
		registry.StepToolCall("lookup", "", "ok", 20*time.Millisecond),
	)
	s := newStack(t, agent)
	created := createTurn(t, s, "go")

	responses := make(chan *http.Response, 2)
	for i := 0; i < 2; i++ {
		go func() {
			resp, err := http.Get(s.server.URL + created.StreamURL)
			if err != nil {
				responses <- nil
				return
			}
			responses <- resp
		}()
	}

	respA, respB := <-responses, <-responses
	require.NotNil(t, respA)
	require.NotNil(t, respB)
	a := readSSE(t, respA)
	b := readSSE(t, respB)
	require.NotEmpty(t, a)
	require.Equal(t, len(a), len(b))
	for i := range a {
		assert.Equal(t, a[i].ID, b[i].ID)
	}
}

func TestE2E_DisconnectDoesNotKillTask(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test in short mode")
	}
	agent := registry.Scripted("survived",
		registry.StepSleep(300*time.Millisecond),
	)
	s := newStack(t, agent)
	created := createTurn(t, s, "go")

	// Open the stream and drop it almost immediately.
	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.server.URL+created.StreamURL, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)
	cancel()
	resp.Body.Close()

	// The run finishes regardless.
	require.Eventually(t, func() bool {
		msg, err := s.messages.Get(context.Background(), created.MessageID)
		return err == nil && msg.Status == models.StatusCompleted
	}, 5*time.Second, 50*time.Millisecond)

	// Log is complete and replayable for a late joiner.
	streamed := readSSE(t, streamWithHeader(t, s.server.URL+created.StreamURL, ""))
	require.NotEmpty(t, streamed)
	assert.Equal(t, string(models.EventTypeEnd), streamed[len(streamed)-1].Type)
}

func TestE2E_LateJoinAfterCompletion(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test in short mode")
	}
	agent := registry.Scripted("quick answer")
	s := newStack(t, agent)
	created := createTurn(t, s, "go")

	require.Eventually(t, func() bool {
		msg, err := s.messages.Get(context.Background(), created.MessageID)
		return err == nil && msg.Status == models.StatusCompleted
	}, 5*time.Second, 20*time.Millisecond)

	start := time.Now()
	streamed := readSSE(t, streamWithHeader(t, s.server.URL+created.StreamURL, ""))
	require.NotEmpty(t, streamed)
	assert.Equal(t, string(models.EventTypeStart), streamed[0].Type)
	assert.Equal(t, string(models.EventTypeEnd), streamed[len(streamed)-1].Type)
	// Full replay then prompt close, no long poll tail.
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestE2E_AbortEndsInterrupted(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test in short mode")
	}
	agent := registry.Scripted("never",
		registry.StepThinking("starting a long job"),
		registry.StepSleep(30*time.Second),
	)
	s := newStack(t, agent)
	created := createTurn(t, s, "go")

	require.Eventually(t, func() bool {
		return s.registry.IsRunning(created.MessageID)
	}, 2*time.Second, 10*time.Millisecond)

	resp, err := http.Post(s.server.URL+"/api/agents/"+created.MessageID+"/abort", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	streamed := readSSE(t, streamWithHeader(t, s.server.URL+created.StreamURL, ""))
	require.NotEmpty(t, streamed)
	last := streamed[len(streamed)-1]
	assert.Equal(t, string(models.EventTypeEnd), last.Type)
	assert.Equal(t, models.EndStatusInterrupted, last.Data.Status)

	msg, err := s.messages.Get(context.Background(), created.MessageID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInterrupted, msg.Status)
}

func TestE2E_FailureWritesErrorTerminal(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test in short mode")
	}
	agent := registry.Scripted("",
		registry.StepThinking("about to break"),
		registry.StepFail(errors.New("engine exploded")),
	)
	s := newStack(t, agent)
	created := createTurn(t, s, "go")

	streamed := readSSE(t, streamWithHeader(t, s.server.URL+created.StreamURL, ""))
	require.NotEmpty(t, streamed)
	last := streamed[len(streamed)-1]
	assert.Equal(t, string(models.EventTypeError), last.Type)
	assert.Equal(t, "engine exploded", last.Data.Error)

	msg, err := s.messages.Get(context.Background(), created.MessageID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, msg.Status)
	assert.Equal(t, "engine exploded", msg.Error)
}

func TestE2E_ResumeInterruptedRun(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test in short mode")
	}
	// First run pauses for input; resumed runs complete normally.
	agent := func(ctx context.Context, inv registry.Invocation) (string, error) {
		if inv.ResumeOf == "" {
			return registry.Scripted("",
				registry.StepInterrupt("Approve the deploy?", `{"call":"deploy"}`),
			)(ctx, inv)
		}
		return registry.Scripted("deploy approved and done",
			registry.StepThinking("continuing with "+inv.ResumeAction),
		)(ctx, inv)
	}
	s := newStack(t, agent)
	created := createTurn(t, s, "deploy please")

	first := readSSE(t, streamWithHeader(t, s.server.URL+created.StreamURL, ""))
	require.NotEmpty(t, first)
	assert.Equal(t, models.EndStatusInterrupted, first[len(first)-1].Data.Status)

	var resumed api.MessageCreatedResponse
	code := postJSON(t, s.server.URL+"/api/chats/"+created.ChatID+"/messages/"+created.MessageID+"/resume",
		`{"action":"accept"}`, &resumed)
	require.Equal(t, http.StatusCreated, code)
	require.NotEqual(t, created.MessageID, resumed.MessageID)

	second := readSSE(t, streamWithHeader(t, s.server.URL+resumed.StreamURL, ""))
	require.NotEmpty(t, second)
	assert.Equal(t, models.EndStatusCompleted, second[len(second)-1].Data.Status)

	// Original log untouched and still replayable.
	again := readSSE(t, streamWithHeader(t, s.server.URL+created.StreamURL, ""))
	assert.Equal(t, len(first), len(again))
}
