package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/phrazzld/taskrelay/internal/domain"
	"github.com/phrazzld/taskrelay/internal/platform/logger"
	"github.com/phrazzld/taskrelay/internal/store"
)

const deadLetterColumns = `id, task_id, reason, original_content, failed_at`

// PostgresDeadLetterStore implements the store.DeadLetterStore interface
// using PostgreSQL. Dead letters are append-only; there are no UPDATE or
// targeted DELETE statements in this file on purpose.
type PostgresDeadLetterStore struct {
	db store.DBTX
}

// NewPostgresDeadLetterStore creates a new PostgresDeadLetterStore.
func NewPostgresDeadLetterStore(db store.DBTX) *PostgresDeadLetterStore {
	return &PostgresDeadLetterStore{
		db: db,
	}
}

// WithTx returns a DeadLetterStore bound to the given transaction.
func (s *PostgresDeadLetterStore) WithTx(tx *sql.Tx) store.DeadLetterStore {
	return &PostgresDeadLetterStore{db: tx}
}

// Create appends a new dead-letter audit record.
func (s *PostgresDeadLetterStore) Create(ctx context.Context, deadLetter *domain.DeadLetter) error {
	log := logger.FromContext(ctx)

	if err := deadLetter.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	query := `
		INSERT INTO dead_letters (id, task_id, reason, original_content, failed_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := s.db.ExecContext(ctx, query,
		deadLetter.ID,
		deadLetter.TaskID,
		deadLetter.Reason,
		deadLetter.OriginalContent,
		deadLetter.FailedAt,
	)
	if err != nil {
		log.Error("failed to save dead letter",
			"task_id", deadLetter.TaskID,
			"error", err)
		return store.NewStoreError("dead_letter", "create", "failed to append record", MapError(err))
	}

	return nil
}

// ListByTaskID returns the dead letters recorded for a task, oldest first.
func (s *PostgresDeadLetterStore) ListByTaskID(ctx context.Context, taskID uuid.UUID) ([]*domain.DeadLetter, error) {
	query := `SELECT ` + deadLetterColumns + ` FROM dead_letters
		WHERE task_id = $1
		ORDER BY failed_at ASC`
	return s.queryDeadLetters(ctx, query, taskID)
}

// List returns dead letters newest first, paginated.
func (s *PostgresDeadLetterStore) List(ctx context.Context, limit, offset int) ([]*domain.DeadLetter, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT ` + deadLetterColumns + ` FROM dead_letters
		ORDER BY failed_at DESC
		LIMIT $1 OFFSET $2`
	return s.queryDeadLetters(ctx, query, limit, offset)
}

func (s *PostgresDeadLetterStore) queryDeadLetters(ctx context.Context, query string, args ...any) ([]*domain.DeadLetter, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	var letters []*domain.DeadLetter
	for rows.Next() {
		var dl domain.DeadLetter
		if err := rows.Scan(&dl.ID, &dl.TaskID, &dl.Reason, &dl.OriginalContent, &dl.FailedAt); err != nil {
			return nil, fmt.Errorf("failed to scan dead letter row: %w", err)
		}
		letters = append(letters, &dl)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating dead letter rows: %w", err)
	}

	return letters, nil
}
