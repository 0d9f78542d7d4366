package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/taskrelay/internal/domain"
	"github.com/phrazzld/taskrelay/internal/store"
)

// ConsumerStore is an in-memory implementation of store.ConsumerStore.
type ConsumerStore struct {
	mu        sync.RWMutex
	consumers map[string]*domain.Consumer
}

// NewConsumerStore creates an empty in-memory consumer store.
func NewConsumerStore() *ConsumerStore {
	return &ConsumerStore{
		consumers: make(map[string]*domain.Consumer),
	}
}

// Upsert implements store.ConsumerStore.
func (s *ConsumerStore) Upsert(ctx context.Context, consumer *domain.Consumer) error {
	if err := consumer.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.consumers[consumer.ID]; ok {
		// Re-registration keeps the completion counter.
		updated := cloneConsumer(consumer)
		updated.TasksCompleted = existing.TasksCompleted
		s.consumers[consumer.ID] = updated
		return nil
	}

	s.consumers[consumer.ID] = cloneConsumer(consumer)
	return nil
}

// GetByID implements store.ConsumerStore.
func (s *ConsumerStore) GetByID(ctx context.Context, id string) (*domain.Consumer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	consumer, ok := s.consumers[id]
	if !ok {
		return nil, store.ErrConsumerNotFound
	}
	return cloneConsumer(consumer), nil
}

// List implements store.ConsumerStore.
func (s *ConsumerStore) List(ctx context.Context) ([]*domain.Consumer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	consumers := make([]*domain.Consumer, 0, len(s.consumers))
	for _, consumer := range s.consumers {
		consumers = append(consumers, cloneConsumer(consumer))
	}

	sort.Slice(consumers, func(i, j int) bool {
		return consumers[i].RegisteredAt.Before(consumers[j].RegisteredAt)
	})
	return consumers, nil
}

// Heartbeat implements store.ConsumerStore.
func (s *ConsumerStore) Heartbeat(ctx context.Context, id string, at time.Time, currentTaskID *uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	consumer, ok := s.consumers[id]
	if !ok {
		return store.ErrConsumerNotFound
	}

	consumer.LastHeartbeat = at
	consumer.CurrentTaskID = cloneUUID(currentTaskID)
	return nil
}

// Update implements store.ConsumerStore.
func (s *ConsumerStore) Update(ctx context.Context, consumer *domain.Consumer) error {
	if err := consumer.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.consumers[consumer.ID]; !ok {
		return store.ErrConsumerNotFound
	}

	s.consumers[consumer.ID] = cloneConsumer(consumer)
	return nil
}

// Delete implements store.ConsumerStore.
func (s *ConsumerStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.consumers[id]; !ok {
		return store.ErrConsumerNotFound
	}

	delete(s.consumers, id)
	return nil
}

// ListStale implements store.ConsumerStore.
func (s *ConsumerStore) ListStale(ctx context.Context, cutoff time.Time) ([]*domain.Consumer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stale []*domain.Consumer
	for _, consumer := range s.consumers {
		if consumer.LastHeartbeat.Before(cutoff) {
			stale = append(stale, cloneConsumer(consumer))
		}
	}

	sort.Slice(stale, func(i, j int) bool {
		return stale[i].LastHeartbeat.Before(stale[j].LastHeartbeat)
	})
	return stale, nil
}

func cloneConsumer(c *domain.Consumer) *domain.Consumer {
	clone := *c
	clone.CurrentTaskID = cloneUUID(c.CurrentTaskID)
	return &clone
}

func cloneUUID(id *uuid.UUID) *uuid.UUID {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}
