package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/phrazzld/taskrelay/internal/domain"
)

// DeadLetterStore defines the interface for dead-letter persistence.
// Dead letters are append-only: there are no update or delete operations.
type DeadLetterStore interface {
	// Create appends a new dead-letter audit record.
	Create(ctx context.Context, deadLetter *domain.DeadLetter) error

	// ListByTaskID returns the dead letters recorded for a task,
	// oldest first.
	ListByTaskID(ctx context.Context, taskID uuid.UUID) ([]*domain.DeadLetter, error)

	// List returns dead letters newest first, paginated.
	List(ctx context.Context, limit, offset int) ([]*domain.DeadLetter, error)

	// WithTx returns a new DeadLetterStore instance that uses the provided
	// transaction. The transaction is created and managed by the caller.
	WithTx(tx *sql.Tx) DeadLetterStore
}
