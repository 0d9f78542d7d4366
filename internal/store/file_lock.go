package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/taskrelay/internal/domain"
)

// FileLockStore defines the interface for the persisted singleton file
// lock. TryAcquire and Release are compare-and-set operations so that two
// concurrent acquirers cannot both succeed.
type FileLockStore interface {
	// Get returns the current lock state. An unheld lock has nil fields.
	Get(ctx context.Context) (*domain.FileLock, error)

	// TryAcquire attempts to acquire the lock for holderID and taskID at
	// the given time. It succeeds if the lock is unheld or already held
	// by holderID (re-acquire refreshes task and timestamp). Returns
	// false without error if another consumer holds the lock.
	TryAcquire(ctx context.Context, holderID string, taskID uuid.UUID, at time.Time) (bool, error)

	// Release clears the lock if holderID is the current holder. Returns
	// false without error if the lock is unheld or held by someone else.
	Release(ctx context.Context, holderID string) (bool, error)

	// ForceRelease clears the lock regardless of holder. Administrative
	// override for stuck-lock recovery.
	ForceRelease(ctx context.Context) error
}
