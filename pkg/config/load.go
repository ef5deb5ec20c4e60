package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the full application configuration.
type Config struct {
	Streaming *StreamingConfig
	Retention *RetentionConfig
	Server    *ServerConfig
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Streaming: DefaultStreamingConfig(),
		Retention: DefaultRetentionConfig(),
		Server:    DefaultServerConfig(),
	}
}

// LoadFromEnv returns the defaults with environment overrides applied.
func LoadFromEnv() (*Config, error) {
	cfg := Default()

	var err error
	if err = overrideDuration(&cfg.Streaming.DrainInterval, "DRAIN_INTERVAL_MS", time.Millisecond); err != nil {
		return nil, err
	}
	if err = overrideDuration(&cfg.Streaming.HeartbeatInterval, "HEARTBEAT_INTERVAL_S", time.Second); err != nil {
		return nil, err
	}
	if err = overrideDuration(&cfg.Streaming.PollInterval, "POLL_INTERVAL_MS", time.Millisecond); err != nil {
		return nil, err
	}
	if err = overrideDuration(&cfg.Streaming.WatcherMaxWait, "WATCHER_MAX_WAIT_S", time.Second); err != nil {
		return nil, err
	}
	if err = overrideInt(&cfg.Streaming.WriterFallbackCapacity, "WRITER_FALLBACK_CAPACITY"); err != nil {
		return nil, err
	}
	if v := os.Getenv("WRITER_RETRY_SCHEDULE_MS"); v != "" {
		schedule, perr := parseRetrySchedule(v)
		if perr != nil {
			return nil, fmt.Errorf("invalid WRITER_RETRY_SCHEDULE_MS: %w", perr)
		}
		cfg.Streaming.WriterRetrySchedule = schedule
	}

	if err = overrideDuration(&cfg.Retention.RegistryGCMaxAge, "REGISTRY_GC_MAX_AGE_H", time.Hour); err != nil {
		return nil, err
	}
	if err = overrideDuration(&cfg.Retention.EventTTL, "MESSAGE_EVENTS_TTL_S", time.Second); err != nil {
		return nil, err
	}
	if err = overrideDuration(&cfg.Retention.CleanupInterval, "CLEANUP_INTERVAL_S", time.Second); err != nil {
		return nil, err
	}

	if err = overrideInt(&cfg.Server.Port, "HTTP_PORT"); err != nil {
		return nil, err
	}
	if err = overrideDuration(&cfg.Server.ShutdownGrace, "SHUTDOWN_GRACE_S", time.Second); err != nil {
		return nil, err
	}

	return cfg, nil
}

// parseRetrySchedule parses a comma-separated list of millisecond
// delays, e.g. "100,200,400". An empty list disables retries.
func parseRetrySchedule(s string) ([]time.Duration, error) {
	parts := strings.Split(s, ",")
	schedule := make([]time.Duration, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		ms, err := strconv.Atoi(p)
		if err != nil || ms < 0 {
			return nil, fmt.Errorf("bad delay %q", p)
		}
		schedule = append(schedule, time.Duration(ms)*time.Millisecond)
	}
	return schedule, nil
}

func overrideDuration(dst *time.Duration, key string, unit time.Duration) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return fmt.Errorf("invalid %s: %q", key, v)
	}
	*dst = time.Duration(n) * unit
	return nil
}

func overrideInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return fmt.Errorf("invalid %s: %q", key, v)
	}
	*dst = n
	return nil
}
