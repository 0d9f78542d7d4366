package memstore

import (
	"context"
	"database/sql"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/phrazzld/taskrelay/internal/domain"
	"github.com/phrazzld/taskrelay/internal/store"
)

// DeadLetterStore is an in-memory implementation of store.DeadLetterStore.
type DeadLetterStore struct {
	mu      sync.RWMutex
	letters []*domain.DeadLetter
}

// NewDeadLetterStore creates an empty in-memory dead-letter store.
func NewDeadLetterStore() *DeadLetterStore {
	return &DeadLetterStore{}
}

// WithTx implements store.DeadLetterStore. The in-memory store has no
// transactions; it returns itself.
func (s *DeadLetterStore) WithTx(tx *sql.Tx) store.DeadLetterStore {
	return s
}

// Create implements store.DeadLetterStore.
func (s *DeadLetterStore) Create(ctx context.Context, deadLetter *domain.DeadLetter) error {
	if err := deadLetter.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *deadLetter
	s.letters = append(s.letters, &clone)
	return nil
}

// ListByTaskID implements store.DeadLetterStore.
func (s *DeadLetterStore) ListByTaskID(ctx context.Context, taskID uuid.UUID) ([]*domain.DeadLetter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*domain.DeadLetter
	for _, dl := range s.letters {
		if dl.TaskID == taskID {
			clone := *dl
			matched = append(matched, &clone)
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].FailedAt.Before(matched[j].FailedAt)
	})
	return matched, nil
}

// List implements store.DeadLetterStore.
func (s *DeadLetterStore) List(ctx context.Context, limit, offset int) ([]*domain.DeadLetter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	newest := make([]*domain.DeadLetter, len(s.letters))
	copy(newest, s.letters)
	sort.Slice(newest, func(i, j int) bool {
		return newest[i].FailedAt.After(newest[j].FailedAt)
	})

	if offset >= len(newest) {
		return nil, nil
	}
	newest = newest[offset:]

	if limit > 0 && limit < len(newest) {
		newest = newest[:limit]
	}

	out := make([]*domain.DeadLetter, len(newest))
	for i, dl := range newest {
		clone := *dl
		out[i] = &clone
	}
	return out, nil
}
