package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/taskrelay/internal/domain"
	"github.com/phrazzld/taskrelay/internal/platform/logger"
	"github.com/phrazzld/taskrelay/internal/store"
)

// fileLockRowID is the primary key of the singleton lock row, seeded by
// the migrations.
const fileLockRowID = 1

// PostgresFileLockStore implements the store.FileLockStore interface using
// PostgreSQL. The lock is a single row; acquire and release are
// compare-and-set UPDATEs so concurrent acquirers cannot both win.
type PostgresFileLockStore struct {
	db store.DBTX
}

// NewPostgresFileLockStore creates a new PostgresFileLockStore.
func NewPostgresFileLockStore(db store.DBTX) *PostgresFileLockStore {
	return &PostgresFileLockStore{
		db: db,
	}
}

// Get returns the current lock state.
func (s *PostgresFileLockStore) Get(ctx context.Context) (*domain.FileLock, error) {
	query := `SELECT held_by, task_id, acquired_at FROM file_lock WHERE id = $1`

	var lock domain.FileLock
	var heldBy sql.NullString
	var taskID uuid.NullUUID
	var acquiredAt sql.NullTime

	err := s.db.QueryRowContext(ctx, query, fileLockRowID).Scan(&heldBy, &taskID, &acquiredAt)
	if err != nil {
		return nil, MapError(err)
	}

	lock.HeldBy = nullStringPtr(heldBy)
	lock.AcquiredAt = nullTimePtr(acquiredAt)
	if taskID.Valid {
		id := taskID.UUID
		lock.TaskID = &id
	}

	return &lock, nil
}

// TryAcquire attempts to acquire the lock for holderID. The WHERE clause
// only matches when the lock is unheld or already held by holderID, so a
// losing acquirer affects zero rows.
func (s *PostgresFileLockStore) TryAcquire(ctx context.Context, holderID string, taskID uuid.UUID, at time.Time) (bool, error) {
	log := logger.FromContext(ctx)

	query := `
		UPDATE file_lock
		SET held_by = $1, task_id = $2, acquired_at = $3
		WHERE id = $4 AND (held_by IS NULL OR held_by = $1)
	`

	result, err := s.db.ExecContext(ctx, query, holderID, taskID, at, fileLockRowID)
	if err != nil {
		log.Error("failed to acquire file lock",
			"holder_id", holderID,
			"task_id", taskID,
			"error", err)
		return false, MapError(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, MapError(err)
	}

	return rowsAffected > 0, nil
}

// Release clears the lock if holderID is the current holder.
func (s *PostgresFileLockStore) Release(ctx context.Context, holderID string) (bool, error) {
	query := `
		UPDATE file_lock
		SET held_by = NULL, task_id = NULL, acquired_at = NULL
		WHERE id = $1 AND held_by = $2
	`

	result, err := s.db.ExecContext(ctx, query, fileLockRowID, holderID)
	if err != nil {
		return false, MapError(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, MapError(err)
	}

	return rowsAffected > 0, nil
}

// ForceRelease clears the lock regardless of holder.
func (s *PostgresFileLockStore) ForceRelease(ctx context.Context) error {
	query := `
		UPDATE file_lock
		SET held_by = NULL, task_id = NULL, acquired_at = NULL
		WHERE id = $1
	`

	_, err := s.db.ExecContext(ctx, query, fileLockRowID)
	if err != nil {
		return MapError(err)
	}

	return nil
}
