package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/taskrelay/internal/domain"
)

// FileLockStore is an in-memory implementation of store.FileLockStore.
type FileLockStore struct {
	mu   sync.Mutex
	lock domain.FileLock
}

// NewFileLockStore creates an unheld in-memory file lock.
func NewFileLockStore() *FileLockStore {
	return &FileLockStore{}
}

// Get implements store.FileLockStore.
func (s *FileLockStore) Get(ctx context.Context) (*domain.FileLock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := s.lock
	clone.TaskID = cloneUUID(s.lock.TaskID)
	clone.HeldBy = cloneStr(s.lock.HeldBy)
	clone.AcquiredAt = cloneTime(s.lock.AcquiredAt)
	return &clone, nil
}

// TryAcquire implements store.FileLockStore.
func (s *FileLockStore) TryAcquire(ctx context.Context, holderID string, taskID uuid.UUID, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lock.IsHeld() && !s.lock.HeldByConsumer(holderID) {
		return false, nil
	}

	s.lock.HeldBy = &holderID
	s.lock.TaskID = &taskID
	s.lock.AcquiredAt = &at
	return true, nil
}

// Release implements store.FileLockStore.
func (s *FileLockStore) Release(ctx context.Context, holderID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.lock.HeldByConsumer(holderID) {
		return false, nil
	}

	s.lock = domain.FileLock{}
	return true, nil
}

// ForceRelease implements store.FileLockStore.
func (s *FileLockStore) ForceRelease(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lock = domain.FileLock{}
	return nil
}

// SetForTest seeds the lock state directly. Test helper only.
func (s *FileLockStore) SetForTest(holderID string, taskID uuid.UUID, acquiredAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lock.HeldBy = &holderID
	s.lock.TaskID = &taskID
	s.lock.AcquiredAt = &acquiredAt
}
