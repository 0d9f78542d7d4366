package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/phrazzld/taskrelay/internal/broker"
	"github.com/phrazzld/taskrelay/internal/classify"
	"github.com/phrazzld/taskrelay/internal/config"
	"github.com/phrazzld/taskrelay/internal/domain"
	"github.com/phrazzld/taskrelay/internal/events"
	"github.com/phrazzld/taskrelay/internal/platform/postgres"
	"github.com/phrazzld/taskrelay/internal/store"
	"github.com/phrazzld/taskrelay/internal/store/memstore"
)

// application holds all the shared application dependencies to simplify
// management and ensure proper cleanup on shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger

	// db is nil when running on in-memory stores.
	db *sql.DB

	// Stores (using interfaces for proper abstraction)
	taskStore       store.TaskStore
	consumerStore   store.ConsumerStore
	deadLetterStore store.DeadLetterStore
	lockStore       store.FileLockStore

	// Broker core
	broadcaster *events.Broadcaster
	arbiter     *broker.FileLockArbiter
	registry    *broker.ConsumerRegistry
	service     *broker.Service
	supervisor  *broker.Supervisor
}

// newApplication creates an application instance with all dependencies
// initialized. A nil db wires the in-memory stores instead of Postgres.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *sql.DB) (*application, error) {
	app := &application{
		config: cfg,
		logger: logger,
		db:     db,
	}

	if db != nil {
		app.taskStore = postgres.NewPostgresTaskStore(db)
		app.consumerStore = postgres.NewPostgresConsumerStore(db)
		app.deadLetterStore = postgres.NewPostgresDeadLetterStore(db)
		app.lockStore = postgres.NewPostgresFileLockStore(db)
		logger.Info("stores initialized", "backend", "postgres")
	} else {
		app.taskStore = memstore.NewTaskStore()
		app.consumerStore = memstore.NewConsumerStore()
		app.deadLetterStore = memstore.NewDeadLetterStore()
		app.lockStore = memstore.NewFileLockStore()
		logger.Warn("running on in-memory stores; state will not survive a restart")
	}

	app.broadcaster = events.NewBroadcaster(cfg.Broker.EventBufferSize, logger)

	app.arbiter = broker.NewFileLockArbiter(
		app.lockStore,
		app.broadcaster,
		cfg.Broker.LockStaleness(),
		logger,
	)

	// A holder that crashed before the last shutdown must not block the
	// write queue forever.
	if err := app.arbiter.RecoverStale(ctx); err != nil {
		return nil, fmt.Errorf("failed to recover file lock: %w", err)
	}

	app.registry = broker.NewConsumerRegistry(app.consumerStore, app.broadcaster, logger)

	classifier := classify.NewKeywordClassifier(domain.TaskType(cfg.Broker.DefaultTaskType))

	app.service = broker.NewService(broker.ServiceConfig{
		Tasks:       app.taskStore,
		DeadLetters: app.deadLetterStore,
		Registry:    app.registry,
		Arbiter:     app.arbiter,
		Classifier:  classifier,
		Publisher:   app.broadcaster,
		Backoff:     cfg.Broker.BackoffSchedule(),
		DB:          db,
		Logger:      logger,
	})

	app.supervisor = broker.NewSupervisor(
		app.service,
		app.taskStore,
		app.consumerStore,
		broker.SupervisorConfig{
			Interval:          cfg.Broker.SweepInterval(),
			PendingTimeout:    cfg.Broker.PendingTimeout(),
			ProcessingTimeout: cfg.Broker.ProcessingTimeout(),
			HeartbeatTimeout:  cfg.Broker.HeartbeatTimeout(),
		},
		logger,
	)

	logger.Info("application initialized successfully")
	return app, nil
}

// Run starts the supervisor and the HTTP server, handling lifecycle and
// cleanup. It blocks until shutdown.
func (app *application) Run(ctx context.Context) error {
	app.supervisor.Start()

	router := app.setupRouter()

	if err := app.startHTTPServer(ctx, router); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// cleanup handles graceful shutdown of application resources.
func (app *application) cleanup() {
	if app.supervisor != nil {
		app.supervisor.Stop()
	}

	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("error closing database connection", "error", err)
		}
	}

	app.logger.Info("application shutdown completed")
}
