package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/taskrelay/internal/domain"
	"github.com/phrazzld/taskrelay/internal/platform/logger"
	"github.com/phrazzld/taskrelay/internal/store"
)

const consumerColumns = `id, name, last_heartbeat, current_task_id, tasks_completed, registered_at`

// PostgresConsumerStore implements the store.ConsumerStore interface using PostgreSQL.
type PostgresConsumerStore struct {
	db store.DBTX
}

// NewPostgresConsumerStore creates a new PostgresConsumerStore.
func NewPostgresConsumerStore(db store.DBTX) *PostgresConsumerStore {
	return &PostgresConsumerStore{
		db: db,
	}
}

// Upsert saves a consumer registration. Re-registering the same id
// refreshes the heartbeat and name but keeps the completion counter.
func (s *PostgresConsumerStore) Upsert(ctx context.Context, consumer *domain.Consumer) error {
	log := logger.FromContext(ctx)

	if err := consumer.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	query := `
		INSERT INTO consumers (id, name, last_heartbeat, current_task_id, tasks_completed, registered_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name,
			last_heartbeat = EXCLUDED.last_heartbeat,
			current_task_id = EXCLUDED.current_task_id
	`

	_, err := s.db.ExecContext(ctx, query,
		consumer.ID,
		consumer.Name,
		consumer.LastHeartbeat,
		consumer.CurrentTaskID,
		consumer.TasksCompleted,
		consumer.RegisteredAt,
	)
	if err != nil {
		log.Error("failed to upsert consumer",
			"consumer_id", consumer.ID,
			"error", err)
		return store.NewStoreError("consumer", "upsert", "failed to save registration", MapError(err))
	}

	return nil
}

// GetByID retrieves a consumer by its ID.
func (s *PostgresConsumerStore) GetByID(ctx context.Context, id string) (*domain.Consumer, error) {
	query := `SELECT ` + consumerColumns + ` FROM consumers WHERE id = $1`

	consumer, err := scanConsumer(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrConsumerNotFound
		}
		return nil, MapError(err)
	}

	return consumer, nil
}

// List returns all registered consumers, oldest registration first.
func (s *PostgresConsumerStore) List(ctx context.Context) ([]*domain.Consumer, error) {
	query := `SELECT ` + consumerColumns + ` FROM consumers ORDER BY registered_at ASC`
	return s.queryConsumers(ctx, query)
}

// Heartbeat refreshes the consumer's liveness timestamp.
func (s *PostgresConsumerStore) Heartbeat(ctx context.Context, id string, at time.Time, currentTaskID *uuid.UUID) error {
	query := `
		UPDATE consumers
		SET last_heartbeat = $1, current_task_id = $2
		WHERE id = $3
	`

	result, err := s.db.ExecContext(ctx, query, at, currentTaskID, id)
	if err != nil {
		return MapError(err)
	}

	if err := CheckRowsAffected(result, "consumer"); err != nil {
		return store.ErrConsumerNotFound
	}

	return nil
}

// Update persists changes to an existing consumer.
func (s *PostgresConsumerStore) Update(ctx context.Context, consumer *domain.Consumer) error {
	if err := consumer.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	query := `
		UPDATE consumers
		SET name = $1, last_heartbeat = $2, current_task_id = $3, tasks_completed = $4
		WHERE id = $5
	`

	result, err := s.db.ExecContext(ctx, query,
		consumer.Name,
		consumer.LastHeartbeat,
		consumer.CurrentTaskID,
		consumer.TasksCompleted,
		consumer.ID,
	)
	if err != nil {
		return MapError(err)
	}

	if err := CheckRowsAffected(result, "consumer"); err != nil {
		return store.ErrConsumerNotFound
	}

	return nil
}

// Delete removes a consumer registration.
func (s *PostgresConsumerStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM consumers WHERE id = $1`, id)
	if err != nil {
		return MapError(err)
	}

	if err := CheckRowsAffected(result, "consumer"); err != nil {
		return store.ErrConsumerNotFound
	}

	return nil
}

// ListStale returns consumers whose last heartbeat is before the cutoff.
func (s *PostgresConsumerStore) ListStale(ctx context.Context, cutoff time.Time) ([]*domain.Consumer, error) {
	query := `SELECT ` + consumerColumns + ` FROM consumers
		WHERE last_heartbeat < $1
		ORDER BY last_heartbeat ASC`
	return s.queryConsumers(ctx, query, cutoff)
}

func (s *PostgresConsumerStore) queryConsumers(ctx context.Context, query string, args ...any) ([]*domain.Consumer, error) {
	log := logger.FromContext(ctx)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to query consumers", "error", err)
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	var consumers []*domain.Consumer
	for rows.Next() {
		consumer, err := scanConsumer(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan consumer row: %w", err)
		}
		consumers = append(consumers, consumer)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating consumer rows: %w", err)
	}

	return consumers, nil
}

// scanConsumer maps one row of consumerColumns onto a domain.Consumer.
func scanConsumer(row rowScanner) (*domain.Consumer, error) {
	var consumer domain.Consumer
	var currentTaskID uuid.NullUUID

	err := row.Scan(
		&consumer.ID,
		&consumer.Name,
		&consumer.LastHeartbeat,
		&currentTaskID,
		&consumer.TasksCompleted,
		&consumer.RegisteredAt,
	)
	if err != nil {
		return nil, err
	}

	if currentTaskID.Valid {
		id := currentTaskID.UUID
		consumer.CurrentTaskID = &id
	}

	return &consumer, nil
}
