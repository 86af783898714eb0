// Package main is the entry point for the bookshelf API server.
//
// MAIN PACKAGE IN GO:
// The main package should be kept minimal. Its job is to:
// 1. Read configuration (flags, env vars, .env file)
// 2. Create dependencies (logger, server)
// 3. Run until SIGINT/SIGTERM
//
// All actual logic lives in imported packages (internal/server, internal/handler, etc.).
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/sakif/bookshelf/internal/config"
	"github.com/sakif/bookshelf/internal/logging"
	"github.com/sakif/bookshelf/internal/repository/sqlstore"
	"github.com/sakif/bookshelf/internal/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "bookshelf:", err)
		os.Exit(1)
	}
}

func run() error {
	// === 1. READ CONFIGURATION ===
	cfg, err := config.Load(os.Args[1:], os.LookupEnv)
	if err != nil {
		return err
	}

	// === 2. SET UP LOGGING ===
	logger, err := logging.New(logging.Options{
		Writer: os.Stdout,
		Level:  cfg.Logger.Level,
		Format: cfg.Logger.Format,
	})
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	// === 3. DATABASE DIRECTORY ===
	// A SQLite file needs its parent directory to exist (like `mkdir -p`).
	if sqlstore.DialectFor(cfg.Database.URL) == sqlstore.DialectSQLite && cfg.Database.URL != ":memory:" {
		dir := filepath.Dir(strings.TrimPrefix(cfg.Database.URL, "sqlite://"))
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating database directory %s: %w", dir, err)
		}
	}

	// === 4. CREATE AND RUN THE SERVER ===
	// ctx is cancelled on Ctrl+C or SIGTERM, which starts graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv, err := server.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	logger.Info("configuration loaded",
		slog.Int("port", cfg.Server.Port),
		slog.String("url", fmt.Sprintf("http://localhost:%d", cfg.Server.Port)),
		slog.Any("corsOrigins", cfg.Server.CORSOrigins),
		slog.Duration("jwtExpiry", cfg.Auth.JWTExpiry),
		slog.Int("admins", len(cfg.Auth.AdminEmails)),
	)

	return srv.Run(ctx)
}
