package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/JonMunkholm/importwizard/internal/client"
	"github.com/JonMunkholm/importwizard/internal/config"
	"github.com/JonMunkholm/importwizard/internal/logging"
	"github.com/JonMunkholm/importwizard/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	// Load and validate configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logging based on config
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded", "config", cfg.String())

	limiter := client.NewLimiter(cfg.Backend.MaxConcurrent, cfg.Backend.MaxWaitTime)
	backend := client.New(cfg.Backend.URL,
		client.WithTimeout(cfg.Backend.Timeout),
		client.WithLimiter(limiter),
	)

	// Verify the import service answers; the wizard still starts without it
	// and /health reports the outage.
	pingCtx, cancelPing := context.WithTimeout(context.Background(), cfg.Backend.Timeout)
	if err := backend.Health(pingCtx); err != nil {
		slog.Warn("import service not reachable", "error", err)
	} else {
		slog.Info("import service reachable")
	}
	cancelPing()

	server := web.NewServer(backend, cfg)

	// Create cancellable context for background jobs
	jobCtx, cancelJobs := context.WithCancel(context.Background())
	go server.RunJanitor(jobCtx)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		// Stop background jobs
		cancelJobs()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// Wait for uploads and transforms in flight (with timeout)
		if status := limiter.Status(); status.Active > 0 {
			slog.Info("waiting for backend calls to complete", "active", status.Active)
			if err := limiter.WaitForDrain(shutdownCtx); err != nil {
				slog.Warn("backend calls did not complete in time", "error", err)
			} else {
				slog.Info("all backend calls completed")
			}
		}

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	// Start server (uses addr from config internally)
	if err := server.Start(); err != nil {
		slog.Info("server stopped", "error", err)
	}
}
