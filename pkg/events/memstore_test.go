package events

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rupeshksingh/deepagents/pkg/models"
	"github.com/rupeshksingh/deepagents/pkg/services"
)

var errStoreDown = errors.New("store down")

// memStore is an in-memory Store with fault injection.
type memStore struct {
	mu          sync.Mutex
	counters    map[string]uint64
	records     map[string][]models.EventRecord
	failAllocs  int // fail this many upcoming AllocateSeq calls
	failAppends int // fail this many upcoming Append calls
}

func newMemStore() *memStore {
	return &memStore{
		counters: make(map[string]uint64),
		records:  make(map[string][]models.EventRecord),
	}
}

func (s *memStore) AllocateSeq(_ context.Context, messageID string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAllocs > 0 {
		s.failAllocs--
		return 0, errStoreDown
	}
	s.counters[messageID]++
	return s.counters[messageID], nil
}

func (s *memStore) Append(_ context.Context, rec models.EventRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAppends > 0 {
		s.failAppends--
		return errStoreDown
	}
	for _, existing := range s.records[rec.MessageID] {
		if existing.Seq == rec.Seq || existing.EventID == rec.EventID {
			return fmt.Errorf("seq %d: %w", rec.Seq, services.ErrConflict)
		}
	}
	s.records[rec.MessageID] = append(s.records[rec.MessageID], rec)
	return nil
}

func (s *memStore) ReadSince(_ context.Context, messageID string, sinceSeq uint64, limit int) ([]models.EventRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.EventRecord
	for _, rec := range s.records[messageID] {
		if rec.Seq > sinceSeq {
			out = append(out, rec)
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (s *memStore) count(messageID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records[messageID])
}

func (s *memStore) setFailures(allocs, appends int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failAllocs = allocs
	s.failAppends = appends
}

// staticRuns is a RunChecker with a fixed answer.
type staticRuns struct {
	mu      sync.Mutex
	running map[string]bool
}

func newStaticRuns() *staticRuns {
	return &staticRuns{running: make(map[string]bool)}
}

func (r *staticRuns) IsRunning(messageID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running[messageID]
}

func (r *staticRuns) set(messageID string, v bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.running[messageID] = v
}
