// deepagents server: persists chat turns, runs background agent
// tasks, and streams their event logs over SSE.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/rupeshksingh/deepagents/pkg/api"
	"github.com/rupeshksingh/deepagents/pkg/cleanup"
	"github.com/rupeshksingh/deepagents/pkg/config"
	"github.com/rupeshksingh/deepagents/pkg/database"
	"github.com/rupeshksingh/deepagents/pkg/events"
	"github.com/rupeshksingh/deepagents/pkg/registry"
	"github.com/rupeshksingh/deepagents/pkg/services"
	"github.com/rupeshksingh/deepagents/pkg/version"
)

func main() {
	// Load .env (optional; environment wins in deployments)
	if err := godotenv.Load(); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment", "error", err)
	}

	slog.Info("Starting deepagents", "version", version.Full())

	ctx := context.Background()

	// 1. Configuration
	cfg, err := config.LoadFromEnv()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// 2. Database (runs migrations on startup)
	dbConfig, err := database.LoadConfigFromEnv()
	if err != nil {
		slog.Error("Failed to load database config", "error", err)
		os.Exit(1)
	}

	dbClient, err := database.NewClient(ctx, dbConfig)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			slog.Error("Error closing database client", "error", err)
		}
	}()
	slog.Info("Connected to PostgreSQL database")

	// 3. Services
	chatService := services.NewChatService(dbClient.DB())
	messageService := services.NewMessageService(dbClient.DB())
	eventService := services.NewEventService(dbClient.DB())
	slog.Info("Services initialized")

	// 4. Event pipeline and task registry
	writer := events.NewRobustWriter(eventService, cfg.Streaming, slog.Default())
	writer.Start()
	defer writer.Stop()

	executor := registry.NewExecutor(writer, messageService, cfg.Streaming, slog.Default())
	taskRegistry := registry.NewRegistry(executor, slog.Default())

	watcher := events.NewWatcher(eventService, taskRegistry, cfg.Streaming, slog.Default())
	slog.Info("Event pipeline initialized")

	// 5. Retention loop
	cleanupService := cleanup.NewService(cfg.Retention, taskRegistry, eventService)
	cleanupService.Start(ctx)
	defer cleanupService.Stop()

	// 6. HTTP server
	// The echo engine stands in until a real reasoning engine is wired
	// through registry.AgentFunc.
	agent := registry.EchoAgent(200 * time.Millisecond)
	server := api.NewServer(dbClient.DB(), chatService, messageService, eventService,
		taskRegistry, watcher, agent)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// 7. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig.String())
	case err := <-errCh:
		slog.Error("HTTP server error", "error", err)
	}

	// 8. Graceful shutdown: stop accepting requests, then give running
	// agent tasks the grace window to write their terminal events.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownGrace)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	if !taskRegistry.Shutdown(cfg.Server.ShutdownGrace) {
		slog.Warn("Some agent tasks did not finish within the grace window")
	}

	slog.Info("deepagents stopped")
}
