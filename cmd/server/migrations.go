package main

import (
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/jackc/pgx/v5/stdlib" // database/sql driver
	"github.com/phrazzld/taskrelay/internal/config"
	"github.com/phrazzld/taskrelay/migrations"
	"github.com/pressly/goose/v3"
)

// migrationTableName isolates the broker's migration bookkeeping from
// anything else living in the same database.
const migrationTableName = "taskrelay_schema_migrations"

// slogGooseLogger adapts goose's logger interface onto slog.
type slogGooseLogger struct{}

func (l *slogGooseLogger) Fatalf(format string, v ...interface{}) {
	slog.Error(fmt.Sprintf(format, v...))
}

func (l *slogGooseLogger) Printf(format string, v ...interface{}) {
	slog.Info(fmt.Sprintf(format, v...))
}

// runMigrations applies the embedded schema migrations. Supported commands
// are up, down, status and version.
func runMigrations(cfg *config.Config, command string) error {
	if cfg.Database.URL == "" {
		return fmt.Errorf("database.url must be configured to run migrations")
	}

	db, err := sql.Open("pgx", cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			slog.Error("failed to close database connection", "error", err)
		}
	}()

	goose.SetLogger(&slogGooseLogger{})
	goose.SetBaseFS(migrations.FS)
	goose.SetTableName(migrationTableName)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set migration dialect: %w", err)
	}

	switch command {
	case "up":
		err = goose.Up(db, ".")
	case "down":
		err = goose.Down(db, ".")
	case "status":
		err = goose.Status(db, ".")
	case "version":
		err = goose.Version(db, ".")
	default:
		return fmt.Errorf("unknown migration command %q (supported: up, down, status, version)", command)
	}
	if err != nil {
		return fmt.Errorf("migration %s failed: %w", command, err)
	}

	slog.Info("migration command completed", "command", command)
	return nil
}
