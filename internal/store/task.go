package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/taskrelay/internal/domain"
)

// TaskStore defines the interface for task persistence.
//
// All status-changing writes go through Transition, which is an atomic
// compare-and-set guarded by the caller's view of the current status. Two
// concurrent claims on the same task therefore cannot both succeed: the
// loser observes ErrConflictingState and the task is left unchanged.
type TaskStore interface {
	// Create saves a new task to the store.
	// Returns validation errors from the domain Task if data is invalid.
	Create(ctx context.Context, task *domain.Task) error

	// GetByID retrieves a task by its unique ID.
	// Returns ErrTaskNotFound if the task does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error)

	// ListPending returns all pending tasks ordered for dispatch:
	// priority band first (high, normal, low), then creation time
	// ascending. Ordering is stable FIFO within a priority band.
	ListPending(ctx context.Context) ([]*domain.Task, error)

	// ListPendingOlderThan returns pending tasks whose last update is
	// before the cutoff. Used by the supervisor's pickup-deadline sweep;
	// measuring from the last update rather than creation keeps retried
	// tasks from timing out immediately on re-entry.
	ListPendingOlderThan(ctx context.Context, cutoff time.Time) ([]*domain.Task, error)

	// ListProcessingOlderThan returns processing tasks claimed before the
	// cutoff. Used by the supervisor's processing-deadline sweep.
	ListProcessingOlderThan(ctx context.Context, cutoff time.Time) ([]*domain.Task, error)

	// ListRetryDue returns retrying tasks whose next_retry_at is at or
	// before now, ready to re-enter the pending queue.
	ListRetryDue(ctx context.Context, now time.Time) ([]*domain.Task, error)

	// Transition persists the task's mutable fields, guarded by the
	// expected current status. Returns ErrTaskNotFound if the task does
	// not exist, or ErrConflictingState if its stored status no longer
	// matches from (the update is not applied).
	Transition(ctx context.Context, task *domain.Task, from domain.TaskStatus) error

	// Delete removes a task. Without force, only terminal tasks
	// (completed, failed, rejected) may be deleted; active tasks return
	// ErrProtected. Returns ErrTaskNotFound if the task does not exist.
	Delete(ctx context.Context, id uuid.UUID, force bool) error

	// CountByStatus returns the number of tasks in each status.
	CountByStatus(ctx context.Context) (map[domain.TaskStatus]int, error)

	// WithTx returns a new TaskStore instance that uses the provided
	// transaction. The transaction is created and managed by the caller.
	WithTx(tx *sql.Tx) TaskStore
}
