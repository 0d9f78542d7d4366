package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/taskrelay/internal/domain"
)

// ConsumerStore defines the interface for consumer registration persistence.
type ConsumerStore interface {
	// Upsert saves a consumer registration, replacing any existing
	// registration with the same ID. Re-registering refreshes the
	// heartbeat and keeps the completion counter.
	Upsert(ctx context.Context, consumer *domain.Consumer) error

	// GetByID retrieves a consumer by its ID.
	// Returns ErrConsumerNotFound if the consumer is not registered.
	GetByID(ctx context.Context, id string) (*domain.Consumer, error)

	// List returns all registered consumers.
	List(ctx context.Context) ([]*domain.Consumer, error)

	// Heartbeat refreshes the consumer's liveness timestamp and records
	// the task it is currently working, if any. A nil currentTaskID
	// clears the recorded task. Returns ErrConsumerNotFound if the
	// consumer is not registered.
	Heartbeat(ctx context.Context, id string, at time.Time, currentTaskID *uuid.UUID) error

	// Update persists changes to an existing consumer (completion credit,
	// cleared current task). Returns ErrConsumerNotFound if missing.
	Update(ctx context.Context, consumer *domain.Consumer) error

	// Delete removes a consumer registration.
	// Returns ErrConsumerNotFound if the consumer is not registered.
	Delete(ctx context.Context, id string) error

	// ListStale returns consumers whose last heartbeat is before the
	// cutoff. Used by the supervisor's dead-consumer sweep.
	ListStale(ctx context.Context, cutoff time.Time) ([]*domain.Consumer, error)
}
