package config

import "time"

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Port the HTTP server listens on.
	Port int

	// ShutdownGrace is the max time to wait for running agent tasks
	// and in-flight requests during shutdown.
	ShutdownGrace time.Duration
}

// DefaultServerConfig returns the built-in server defaults.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Port:          8000,
		ShutdownGrace: 30 * time.Second,
	}
}
