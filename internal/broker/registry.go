package broker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/taskrelay/internal/domain"
	"github.com/phrazzld/taskrelay/internal/events"
	"github.com/phrazzld/taskrelay/internal/store"
)

// ConsumerRegistry tracks the liveness of polling consumers. Heartbeats
// are the consumer's responsibility; the supervisor detects their absence.
type ConsumerRegistry struct {
	consumers store.ConsumerStore
	publisher events.Publisher
	logger    *slog.Logger
}

// NewConsumerRegistry creates a registry over the given consumer store.
func NewConsumerRegistry(
	consumers store.ConsumerStore,
	publisher events.Publisher,
	logger *slog.Logger,
) *ConsumerRegistry {
	return &ConsumerRegistry{
		consumers: consumers,
		publisher: publisher,
		logger:    logger.With("component", "consumer_registry"),
	}
}

// Register records a consumer registration. Re-registering the same id
// refreshes the heartbeat and keeps the completion counter.
func (r *ConsumerRegistry) Register(ctx context.Context, id, name string) (*domain.Consumer, error) {
	consumer, err := domain.NewConsumer(id, name)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	if err := r.consumers.Upsert(ctx, consumer); err != nil {
		return nil, fmt.Errorf("failed to register consumer: %w", err)
	}

	r.logger.Info("consumer registered", "consumer_id", id, "name", name)
	r.publisher.Publish(events.EventConsumerOnline, consumer)

	return consumer, nil
}

// Heartbeat refreshes the consumer's liveness timestamp and records the
// task it is actively working, if any.
func (r *ConsumerRegistry) Heartbeat(ctx context.Context, id string, currentTaskID *uuid.UUID) error {
	if err := r.consumers.Heartbeat(ctx, id, time.Now().UTC(), currentTaskID); err != nil {
		return err
	}
	return nil
}

// Get returns a consumer registration by id.
func (r *ConsumerRegistry) Get(ctx context.Context, id string) (*domain.Consumer, error) {
	return r.consumers.GetByID(ctx, id)
}

// List returns all registered consumers.
func (r *ConsumerRegistry) List(ctx context.Context) ([]*domain.Consumer, error) {
	return r.consumers.List(ctx)
}

// Remove deletes a consumer registration and broadcasts it going offline.
// Releasing any task the consumer held is the service's job; callers go
// through Service.UnregisterConsumer.
func (r *ConsumerRegistry) Remove(ctx context.Context, id string) error {
	if err := r.consumers.Delete(ctx, id); err != nil {
		return err
	}

	r.logger.Info("consumer unregistered", "consumer_id", id)
	r.publisher.Publish(events.EventConsumerOffline, map[string]string{"id": id})
	return nil
}

// creditCompletion increments the consumer's completion counter and clears
// its current task. Missing registrations are ignored: claiming does not
// require registering first.
func (r *ConsumerRegistry) creditCompletion(ctx context.Context, id string) {
	consumer, err := r.consumers.GetByID(ctx, id)
	if err != nil {
		if store.IsNotFoundError(err) {
			return
		}
		r.logger.Error("failed to load consumer for completion credit",
			"consumer_id", id, "error", err)
		return
	}

	consumer.TasksCompleted++
	consumer.CurrentTaskID = nil
	if err := r.consumers.Update(ctx, consumer); err != nil {
		r.logger.Error("failed to credit consumer completion",
			"consumer_id", id, "error", err)
	}
}

// clearCurrentTask drops the consumer's recorded task without crediting a
// completion (release, reclamation). Missing registrations are ignored.
func (r *ConsumerRegistry) clearCurrentTask(ctx context.Context, id string) {
	consumer, err := r.consumers.GetByID(ctx, id)
	if err != nil {
		if store.IsNotFoundError(err) {
			return
		}
		r.logger.Error("failed to load consumer for task clear",
			"consumer_id", id, "error", err)
		return
	}

	if consumer.CurrentTaskID == nil {
		return
	}

	consumer.CurrentTaskID = nil
	if err := r.consumers.Update(ctx, consumer); err != nil {
		r.logger.Error("failed to clear consumer current task",
			"consumer_id", id, "error", err)
	}
}

// recordClaim marks the consumer as working the given task. Missing
// registrations are ignored.
func (r *ConsumerRegistry) recordClaim(ctx context.Context, id string, taskID uuid.UUID) {
	if err := r.consumers.Heartbeat(ctx, id, time.Now().UTC(), &taskID); err != nil {
		if store.IsNotFoundError(err) {
			return
		}
		r.logger.Error("failed to record claim on consumer",
			"consumer_id", id, "error", err)
	}
}
