package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/taskrelay/internal/domain"
	"github.com/phrazzld/taskrelay/internal/platform/logger"
	"github.com/phrazzld/taskrelay/internal/store"
)

// taskColumns is the column list shared by every task SELECT.
const taskColumns = `id, content, status, priority, task_type, consumer_id,
	response, error_message, review_note, retry_count, max_retries,
	created_at, updated_at, processing_at, completed_at, next_retry_at`

// dispatchOrder sorts pending tasks priority band first (high, normal,
// low), then creation time ascending — stable FIFO within a band.
const dispatchOrder = `
	ORDER BY CASE priority
		WHEN 'high' THEN 0
		WHEN 'normal' THEN 1
		ELSE 2
	END, created_at ASC`

// PostgresTaskStore implements the store.TaskStore interface using PostgreSQL.
type PostgresTaskStore struct {
	db store.DBTX
}

// NewPostgresTaskStore creates a new PostgresTaskStore.
func NewPostgresTaskStore(db store.DBTX) *PostgresTaskStore {
	return &PostgresTaskStore{
		db: db,
	}
}

// WithTx returns a TaskStore bound to the given transaction.
func (s *PostgresTaskStore) WithTx(tx *sql.Tx) store.TaskStore {
	return &PostgresTaskStore{db: tx}
}

// Create persists a new task.
func (s *PostgresTaskStore) Create(ctx context.Context, task *domain.Task) error {
	log := logger.FromContext(ctx)

	if err := task.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	query := `
		INSERT INTO tasks (id, content, status, priority, task_type, consumer_id,
			response, error_message, review_note, retry_count, max_retries,
			created_at, updated_at, processing_at, completed_at, next_retry_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`

	_, err := s.db.ExecContext(ctx, query,
		task.ID,
		task.Content,
		task.Status,
		task.Priority,
		task.Type,
		task.ConsumerID,
		task.Response,
		task.Error,
		task.ReviewNote,
		task.RetryCount,
		task.MaxRetries,
		task.CreatedAt,
		task.UpdatedAt,
		task.ProcessingAt,
		task.CompletedAt,
		task.NextRetryAt,
	)

	if err != nil {
		log.Error("failed to save task",
			"task_id", task.ID,
			"task_type", task.Type,
			"error", err)
		return store.NewStoreError("task", "create", "failed to insert row", MapError(err))
	}

	return nil
}

// GetByID retrieves a task by its unique ID.
func (s *PostgresTaskStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1`

	row := s.db.QueryRowContext(ctx, query, id)
	task, err := scanTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrTaskNotFound
		}
		return nil, MapError(err)
	}

	return task, nil
}

// ListPending returns all pending tasks in dispatch order.
func (s *PostgresTaskStore) ListPending(ctx context.Context) ([]*domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE status = $1` + dispatchOrder
	return s.queryTasks(ctx, query, domain.TaskStatusPending)
}

// ListPendingOlderThan returns pending tasks last updated before the cutoff.
func (s *PostgresTaskStore) ListPendingOlderThan(ctx context.Context, cutoff time.Time) ([]*domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks
		WHERE status = $1 AND updated_at < $2
		ORDER BY created_at ASC`
	return s.queryTasks(ctx, query, domain.TaskStatusPending, cutoff)
}

// ListProcessingOlderThan returns processing tasks claimed before the cutoff.
func (s *PostgresTaskStore) ListProcessingOlderThan(ctx context.Context, cutoff time.Time) ([]*domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks
		WHERE status = $1 AND processing_at IS NOT NULL AND processing_at < $2
		ORDER BY created_at ASC`
	return s.queryTasks(ctx, query, domain.TaskStatusProcessing, cutoff)
}

// ListRetryDue returns retrying tasks whose backoff has elapsed.
func (s *PostgresTaskStore) ListRetryDue(ctx context.Context, now time.Time) ([]*domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks
		WHERE status = $1 AND next_retry_at IS NOT NULL AND next_retry_at <= $2
		ORDER BY created_at ASC`
	return s.queryTasks(ctx, query, domain.TaskStatusRetrying, now)
}

// Transition persists the task's mutable fields guarded by the expected
// current status. The WHERE clause is the compare-and-set: a concurrent
// writer that already moved the task out of from causes zero rows here and
// the caller observes ErrConflictingState.
func (s *PostgresTaskStore) Transition(ctx context.Context, task *domain.Task, from domain.TaskStatus) error {
	log := logger.FromContext(ctx)

	if err := task.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	query := `
		UPDATE tasks
		SET content = $1, status = $2, priority = $3, task_type = $4,
			consumer_id = $5, response = $6, error_message = $7,
			review_note = $8, retry_count = $9, max_retries = $10,
			updated_at = $11, processing_at = $12, completed_at = $13,
			next_retry_at = $14
		WHERE id = $15 AND status = $16
	`

	result, err := s.db.ExecContext(ctx, query,
		task.Content,
		task.Status,
		task.Priority,
		task.Type,
		task.ConsumerID,
		task.Response,
		task.Error,
		task.ReviewNote,
		task.RetryCount,
		task.MaxRetries,
		time.Now().UTC(),
		task.ProcessingAt,
		task.CompletedAt,
		task.NextRetryAt,
		task.ID,
		from,
	)
	if err != nil {
		log.Error("failed to transition task",
			"task_id", task.ID,
			"from", from,
			"to", task.Status,
			"error", err)
		return store.NewStoreError("task", "transition", "guarded update failed", MapError(err))
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		// Lost the CAS or the task is gone; distinguish the two.
		var exists bool
		checkErr := s.db.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM tasks WHERE id = $1)`, task.ID).Scan(&exists)
		if checkErr != nil {
			return MapError(checkErr)
		}
		if !exists {
			return store.ErrTaskNotFound
		}
		return store.ErrConflictingState
	}

	return nil
}

// Delete removes a task, honoring deletion protection for active tasks.
func (s *PostgresTaskStore) Delete(ctx context.Context, id uuid.UUID, force bool) error {
	task, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if !force && !task.IsTerminal() {
		return fmt.Errorf("%w: task is %s", store.ErrProtected, task.Status)
	}

	result, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return MapError(err)
	}

	return CheckRowsAffected(result, "task")
}

// CountByStatus returns the number of tasks in each status.
func (s *PostgresTaskStore) CountByStatus(ctx context.Context) (map[domain.TaskStatus]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM tasks GROUP BY status`)
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[domain.TaskStatus]int)
	for rows.Next() {
		var status domain.TaskStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan status count: %w", err)
		}
		counts[status] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating status counts: %w", err)
	}

	return counts, nil
}

// queryTasks runs a task SELECT and scans the result set.
func (s *PostgresTaskStore) queryTasks(ctx context.Context, query string, args ...any) ([]*domain.Task, error) {
	log := logger.FromContext(ctx)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to query tasks", "error", err)
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	var tasks []*domain.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			log.Error("failed to scan task row", "error", err)
			return nil, fmt.Errorf("failed to scan task row: %w", err)
		}
		tasks = append(tasks, task)
	}

	if err := rows.Err(); err != nil {
		log.Error("error iterating task rows", "error", err)
		return nil, fmt.Errorf("error iterating task rows: %w", err)
	}

	return tasks, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanTask maps one row of taskColumns onto a domain.Task.
func scanTask(row rowScanner) (*domain.Task, error) {
	var task domain.Task
	var consumerID, response, errorMessage, reviewNote sql.NullString
	var processingAt, completedAt, nextRetryAt sql.NullTime

	err := row.Scan(
		&task.ID,
		&task.Content,
		&task.Status,
		&task.Priority,
		&task.Type,
		&consumerID,
		&response,
		&errorMessage,
		&reviewNote,
		&task.RetryCount,
		&task.MaxRetries,
		&task.CreatedAt,
		&task.UpdatedAt,
		&processingAt,
		&completedAt,
		&nextRetryAt,
	)
	if err != nil {
		return nil, err
	}

	task.ConsumerID = nullStringPtr(consumerID)
	task.Response = nullStringPtr(response)
	task.Error = nullStringPtr(errorMessage)
	task.ReviewNote = nullStringPtr(reviewNote)
	task.ProcessingAt = nullTimePtr(processingAt)
	task.CompletedAt = nullTimePtr(completedAt)
	task.NextRetryAt = nullTimePtr(nextRetryAt)

	return &task, nil
}

func nullStringPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func nullTimePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time.UTC()
	return &t
}
