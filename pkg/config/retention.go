package config

import "time"

// RetentionConfig controls cleanup of finished tasks and old events.
type RetentionConfig struct {
	// RegistryGCMaxAge is how long completed tasks stay visible in the
	// registry before garbage collection removes them.
	RegistryGCMaxAge time.Duration

	// EventTTL is the maximum age of persisted stream events. Zero
	// disables event pruning (events are the replay source of truth).
	EventTTL time.Duration

	// CleanupInterval is how often the cleanup loop runs.
	CleanupInterval time.Duration
}

// DefaultRetentionConfig returns the built-in retention defaults.
func DefaultRetentionConfig() *RetentionConfig {
	return &RetentionConfig{
		RegistryGCMaxAge: 24 * time.Hour,
		EventTTL:         0,
		CleanupInterval:  1 * time.Hour,
	}
}
