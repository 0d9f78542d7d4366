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

// FileLockArbiter owns the singleton exclusive token gating write-task
// execution. Read-only tasks never touch it. The lock state lives in the
// store so it survives a crash; RecoverStale handles the restart path.
type FileLockArbiter struct {
	locks     store.FileLockStore
	publisher events.Publisher
	staleness time.Duration
	logger    *slog.Logger
}

// NewFileLockArbiter creates an arbiter over the given lock store. Locks
// older than staleness are treated as abandoned by RecoverStale.
func NewFileLockArbiter(
	locks store.FileLockStore,
	publisher events.Publisher,
	staleness time.Duration,
	logger *slog.Logger,
) *FileLockArbiter {
	return &FileLockArbiter{
		locks:     locks,
		publisher: publisher,
		staleness: staleness,
		logger:    logger.With("component", "file_lock_arbiter"),
	}
}

// Acquire attempts to take the lock for holderID working taskID. It
// succeeds if the lock is unheld or already held by holderID. Returns
// false if another consumer holds the lock.
func (a *FileLockArbiter) Acquire(ctx context.Context, holderID string, taskID uuid.UUID) (bool, error) {
	acquired, err := a.locks.TryAcquire(ctx, holderID, taskID, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("failed to acquire file lock: %w", err)
	}

	if acquired {
		a.logger.Debug("file lock acquired",
			"holder_id", holderID,
			"task_id", taskID)
		a.publishSnapshot(ctx, events.EventFileLockAcquired)
	}

	return acquired, nil
}

// Release clears the lock if holderID is the current holder. Returns
// false if the lock is unheld or held by someone else.
func (a *FileLockArbiter) Release(ctx context.Context, holderID string) (bool, error) {
	released, err := a.locks.Release(ctx, holderID)
	if err != nil {
		return false, fmt.Errorf("failed to release file lock: %w", err)
	}

	if released {
		a.logger.Debug("file lock released", "holder_id", holderID)
		a.publisher.Publish(events.EventFileLockReleased, &domain.FileLock{})
	}

	return released, nil
}

// Status returns a snapshot of the current lock state.
func (a *FileLockArbiter) Status(ctx context.Context) (*domain.FileLock, error) {
	lock, err := a.locks.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read file lock: %w", err)
	}
	return lock, nil
}

// ForceRelease clears the lock regardless of holder. Administrative
// override for stuck-lock recovery.
func (a *FileLockArbiter) ForceRelease(ctx context.Context) error {
	lock, err := a.locks.Get(ctx)
	if err != nil {
		return fmt.Errorf("failed to read file lock: %w", err)
	}

	if err := a.locks.ForceRelease(ctx); err != nil {
		return fmt.Errorf("failed to force-release file lock: %w", err)
	}

	if lock.IsHeld() {
		a.logger.Warn("file lock force-released",
			"previous_holder", *lock.HeldBy)
		a.publisher.Publish(events.EventFileLockReleased, &domain.FileLock{})
	}

	return nil
}

// RecoverStale force-releases a persisted lock older than the staleness
// window. Called once on startup so a holder that crashed mid-task cannot
// deadlock the write queue permanently.
func (a *FileLockArbiter) RecoverStale(ctx context.Context) error {
	lock, err := a.locks.Get(ctx)
	if err != nil {
		return fmt.Errorf("failed to read file lock during recovery: %w", err)
	}

	if !lock.OlderThan(a.staleness) {
		return nil
	}

	a.logger.Warn("releasing stale file lock on startup",
		"holder_id", *lock.HeldBy,
		"acquired_at", lock.AcquiredAt,
		"staleness_window", a.staleness)

	if err := a.locks.ForceRelease(ctx); err != nil {
		return fmt.Errorf("failed to release stale file lock: %w", err)
	}

	a.publisher.Publish(events.EventFileLockReleased, &domain.FileLock{})
	return nil
}

func (a *FileLockArbiter) publishSnapshot(ctx context.Context, eventType string) {
	lock, err := a.locks.Get(ctx)
	if err != nil {
		a.logger.Error("failed to read lock for broadcast", "error", err)
		return
	}
	a.publisher.Publish(eventType, lock)
}
