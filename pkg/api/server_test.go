package api

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rupeshksingh/deepagents/pkg/models"
	"github.com/rupeshksingh/deepagents/pkg/registry"
	"github.com/rupeshksingh/deepagents/pkg/services"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeChats struct {
	mu     sync.Mutex
	chats  map[string]*models.Chat
	counts map[string]int
}

func newFakeChats() *fakeChats {
	return &fakeChats{chats: make(map[string]*models.Chat), counts: make(map[string]int)}
}

func (f *fakeChats) Create(_ context.Context, title string) (*models.Chat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	chat := &models.Chat{ID: fmt.Sprintf("chat-%d", len(f.chats)+1), Title: title, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	f.chats[chat.ID] = chat
	return chat, nil
}

func (f *fakeChats) Get(_ context.Context, chatID string) (*models.Chat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	chat, ok := f.chats[chatID]
	if !ok {
		return nil, services.ErrNotFound
	}
	return chat, nil
}

func (f *fakeChats) MessageCount(_ context.Context, chatID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts[chatID], nil
}

type fakeMessageStore struct {
	mu   sync.Mutex
	msgs map[string]*models.Message
	next int
}

func newFakeMessageStore() *fakeMessageStore {
	return &fakeMessageStore{msgs: make(map[string]*models.Message)}
}

func (f *fakeMessageStore) add(msg *models.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs[msg.ID] = msg
}

func (f *fakeMessageStore) newID() string {
	f.next++
	return fmt.Sprintf("msg-%d", f.next)
}

func (f *fakeMessageStore) CreateTurn(_ context.Context, chatID, content string) (*models.Message, *models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user := &models.Message{ID: f.newID(), ChatID: chatID, Role: models.RoleUser, Status: models.StatusCompleted, Content: content}
	assistant := &models.Message{ID: f.newID(), ChatID: chatID, Role: models.RoleAssistant, Status: models.StatusPending}
	f.msgs[user.ID] = user
	f.msgs[assistant.ID] = assistant
	return user, assistant, nil
}

func (f *fakeMessageStore) CreateAssistant(_ context.Context, chatID string) (*models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	assistant := &models.Message{ID: f.newID(), ChatID: chatID, Role: models.RoleAssistant, Status: models.StatusPending}
	f.msgs[assistant.ID] = assistant
	return assistant, nil
}

func (f *fakeMessageStore) Get(_ context.Context, messageID string) (*models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg, ok := f.msgs[messageID]
	if !ok {
		return nil, services.ErrNotFound
	}
	return msg, nil
}

func (f *fakeMessageStore) List(_ context.Context, chatID string, _, _ int) ([]*models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Message
	for _, msg := range f.msgs {
		if msg.ChatID == chatID {
			out = append(out, msg)
		}
	}
	return out, nil
}

type fakeEventReader struct {
	mu        sync.Mutex
	records   map[string][]models.EventRecord
	lastSince uint64
}

func newFakeEventReader() *fakeEventReader {
	return &fakeEventReader{records: make(map[string][]models.EventRecord)}
}

func (f *fakeEventReader) seed(messageID string, types ...models.EventType) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, typ := range types {
		seq := uint64(i + 1)
		ev := models.StreamEvent{V: models.EventSchemaVersion, Type: typ, Seq: seq, MessageID: messageID}
		ev.ID = fmt.Sprintf("%d_%04d_deadbeef", time.Now().UnixMilli(), seq)
		payload, _ := json.Marshal(ev)
		f.records[messageID] = append(f.records[messageID], models.EventRecord{
			MessageID: messageID, Seq: seq, EventID: ev.ID, Type: typ, TS: time.Now(), Payload: payload,
		})
	}
}

func (f *fakeEventReader) ReadSince(_ context.Context, messageID string, sinceSeq uint64, limit int) ([]models.EventRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastSince = sinceSeq
	var out []models.EventRecord
	for _, rec := range f.records[messageID] {
		if rec.Seq > sinceSeq {
			out = append(out, rec)
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

type fakeTasks struct {
	mu           sync.Mutex
	started      []registry.Invocation
	running      map[string]bool
	watchers     map[string]int
	aborted      []string
	unregistered int
}

func newFakeTasks() *fakeTasks {
	return &fakeTasks{running: make(map[string]bool), watchers: make(map[string]int)}
}

func (f *fakeTasks) Start(inv registry.Invocation, _ registry.AgentFunc) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, inv)
	f.running[inv.MessageID] = true
	return true
}

func (f *fakeTasks) IsRunning(messageID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running[messageID]
}

func (f *fakeTasks) List(chatID string) []models.RunningTask {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.RunningTask
	for id, running := range f.running {
		if running {
			out = append(out, models.RunningTask{MessageID: id, ChatID: chatID})
		}
	}
	return out
}

func (f *fakeTasks) ActiveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.running)
}

func (f *fakeTasks) RegisterWatcher(messageID string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.running[messageID] {
		return "", false
	}
	f.watchers[messageID]++
	return "watcher-1", true
}

func (f *fakeTasks) UnregisterWatcher(messageID, _ string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.watchers[messageID]--
	f.unregistered++
}

func (f *fakeTasks) Abort(messageID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.running[messageID] {
		return false
	}
	f.aborted = append(f.aborted, messageID)
	f.running[messageID] = false
	return true
}

// fakeStreamer replays a fixed set of records through the channel.
type fakeStreamer struct {
	reader *fakeEventReader
}

func (f *fakeStreamer) Stream(ctx context.Context, messageID string, sinceSeq uint64) <-chan models.EventRecord {
	ch := make(chan models.EventRecord, 32)
	go func() {
		defer close(ch)
		records, _ := f.reader.ReadSince(ctx, messageID, sinceSeq, 0)
		for _, rec := range records {
			select {
			case ch <- rec:
			case <-ctx.Done():
				return
			}
			if rec.Type.Terminal() {
				return
			}
		}
	}()
	return ch
}

type fixture struct {
	server   *Server
	chats    *fakeChats
	messages *fakeMessageStore
	events   *fakeEventReader
	tasks    *fakeTasks
}

func newFixture() *fixture {
	chats := newFakeChats()
	messages := newFakeMessageStore()
	events := newFakeEventReader()
	tasks := newFakeTasks()
	streamer := &fakeStreamer{reader: events}
	agent := registry.Scripted("ok")

	return &fixture{
		server:   NewServer(nil, chats, messages, events, tasks, streamer, agent),
		chats:    chats,
		messages: messages,
		events:   events,
		tasks:    tasks,
	}
}
