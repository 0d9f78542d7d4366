package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Common validation errors for Consumer
var (
	ErrEmptyConsumerID   = errors.New("consumer ID cannot be empty")
	ErrEmptyConsumerName = errors.New("consumer name cannot be empty")
)

// Consumer is the liveness record for an external polling worker. Consumer
// ids are caller-chosen opaque strings so a worker can survive its own
// restarts under a stable identity.
type Consumer struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	LastHeartbeat  time.Time  `json:"last_heartbeat"`
	CurrentTaskID  *uuid.UUID `json:"current_task_id,omitempty"`
	TasksCompleted int        `json:"tasks_completed"`
	RegisteredAt   time.Time  `json:"registered_at"`
}

// NewConsumer creates a new Consumer registration with the heartbeat
// initialized to now. Returns an error if validation fails.
func NewConsumer(id, name string) (*Consumer, error) {
	now := time.Now().UTC()
	consumer := &Consumer{
		ID:            id,
		Name:          name,
		LastHeartbeat: now,
		RegisteredAt:  now,
	}

	if err := consumer.Validate(); err != nil {
		return nil, err
	}

	return consumer, nil
}

// Validate checks if the Consumer has valid data.
func (c *Consumer) Validate() error {
	if c.ID == "" {
		return ErrEmptyConsumerID
	}

	if c.Name == "" {
		return ErrEmptyConsumerName
	}

	return nil
}
