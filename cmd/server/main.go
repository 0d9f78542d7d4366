// Package main implements the entry point for the taskrelay broker, a
// single-node durable task queue that serializes write tasks through a
// persisted file lock and supervises timeouts and retries server-side.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"

	"github.com/phrazzld/taskrelay/internal/config"
	"github.com/phrazzld/taskrelay/internal/platform/logger"
)

func main() {
	configPath := flag.String("config", "", "path to a config file (optional; env vars always apply)")
	migrateCmd := flag.String("migrate", "", "run a migration command (up, down, status, version) and exit")
	flag.Parse()

	cfg, appLogger, err := initializeApp(*configPath)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}

	if *migrateCmd != "" {
		if err := runMigrations(cfg, *migrateCmd); err != nil {
			appLogger.Error("migration failed", "command", *migrateCmd, "error", err)
			log.Fatalf("Migration failed: %v", err)
		}
		return
	}

	ctx := context.Background()

	db, err := setupAppDatabase(ctx, cfg, appLogger)
	if err != nil {
		log.Fatalf("Failed to set up database: %v", err)
	}

	app, err := newApplication(ctx, cfg, appLogger, db)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}

	if err := app.Run(ctx); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

// initializeApp loads configuration and sets up structured logging.
func initializeApp(configPath string) (*config.Config, *slog.Logger, error) {
	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadWithFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	appLogger, err := logger.Setup(cfg.Server)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to set up logger: %w", err)
	}

	appLogger.Info("broker configuration loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel,
		"database_configured", cfg.Database.URL != "",
		"auth_enabled", cfg.Auth.SharedSecret != "")

	return cfg, appLogger, nil
}
