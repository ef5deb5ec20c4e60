// Package config holds runtime configuration for the streaming core.
// Each section has built-in defaults; LoadFromEnv applies environment
// overrides on top of them.
package config

import "time"

// StreamingConfig controls the event pipeline: executor drain cadence,
// heartbeats, watcher polling, and the robust writer's retry behavior.
type StreamingConfig struct {
	// DrainInterval is the executor's poll interval for pending
	// emitter events while the agent runs.
	DrainInterval time.Duration

	// HeartbeatInterval is how long the event log may stay quiet
	// before the executor writes a status heartbeat.
	HeartbeatInterval time.Duration

	// PollInterval is the watcher's database poll interval once
	// catch-up is done.
	PollInterval time.Duration

	// WatcherMaxWait is the maximum inactivity a watcher tolerates
	// before ending the stream.
	WatcherMaxWait time.Duration

	// WriterRetrySchedule is the backoff slept between persistence
	// attempts. Attempts = len(schedule) + 1.
	WriterRetrySchedule []time.Duration

	// WriterFallbackCapacity bounds the in-memory queue that absorbs
	// events when the store is down. Oldest entries are dropped on
	// overflow.
	WriterFallbackCapacity int

	// WriterRedrainInterval is how often the writer retries queued
	// fallback events against the store.
	WriterRedrainInterval time.Duration
}

// DefaultStreamingConfig returns the built-in streaming defaults.
func DefaultStreamingConfig() *StreamingConfig {
	return &StreamingConfig{
		DrainInterval:          10 * time.Millisecond,
		HeartbeatInterval:      15 * time.Second,
		PollInterval:           500 * time.Millisecond,
		WatcherMaxWait:         3600 * time.Second,
		WriterRetrySchedule:    []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond},
		WriterFallbackCapacity: 1024,
		WriterRedrainInterval:  5 * time.Second,
	}
}

// WatcherGrace is the initial wait a watcher extends to a message that
// has no events and no running task yet, covering the gap between
// message creation and the executor's first write.
func (c *StreamingConfig) WatcherGrace() time.Duration {
	return c.WatcherMaxWait / 60
}
