// Package main is the entry point for the weatherhub server.
//
// The main package stays minimal: read configuration, create dependencies
// (logger, database directory), start the application. All actual logic
// lives in imported packages (internal/server, internal/handler, etc.).
package main

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/avkulikov/weatherhub/internal/config"
	"github.com/avkulikov/weatherhub/internal/server"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// A generated secret works, but sessions won't survive a restart.
	// Set SECRET_KEY to a long random string for production:
	//   SECRET_KEY=$(openssl rand -hex 32)
	if cfg.GeneratedSecret {
		logger.Warn("SECRET_KEY not set — using a generated secret, sessions reset on restart")
	}

	// Ensure the data directory exists before sqlite tries to create the file.
	dbDir := filepath.Dir(cfg.DBPath)
	if err := os.MkdirAll(dbDir, 0o755); err != nil {
		logger.Error("failed to create database directory",
			slog.String("dir", dbDir),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	srv, err := server.New(cfg, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start blocks until the server shuts down (Ctrl+C or SIGTERM).
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
