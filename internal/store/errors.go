package store

import (
	"errors"
	"fmt"
)

// Common store errors used across all store implementations. These form the
// broker's error taxonomy; the API layer maps them onto HTTP status codes.
var (
	// ErrNotFound is returned when a requested entity does not exist in the
	// store. This is a generic version of the entity-specific not found
	// errors (e.g., ErrTaskNotFound, ErrConsumerNotFound).
	ErrNotFound = errors.New("entity not found")

	// ErrConflictingState is returned when an operation is invalid for the
	// entity's current status, e.g. claiming a task that is already
	// processing. The operation is rejected and never retried by the broker.
	ErrConflictingState = errors.New("conflicting state")

	// ErrProtected is returned when deleting an active (pending or
	// processing) task without the force override.
	ErrProtected = errors.New("entity is protected from deletion")

	// ErrLockUnavailable is returned when a write task is requested while
	// the file lock is held by another consumer.
	ErrLockUnavailable = errors.New("file lock held by another consumer")

	// ErrDuplicate is returned when an operation would create a duplicate
	// of a unique entity.
	ErrDuplicate = errors.New("entity already exists")

	// ErrInvalidEntity is returned when an entity fails validation before
	// being stored. Check the wrapped error for specific validation details.
	ErrInvalidEntity = errors.New("invalid entity")

	// ErrTransactionFailed is returned when a database transaction fails
	// to commit or when an operation within a transaction fails.
	ErrTransactionFailed = errors.New("transaction failed")

	// Entity-specific "not found" errors

	// ErrTaskNotFound indicates that the requested task does not exist in the store.
	ErrTaskNotFound = fmt.Errorf("%w: task", ErrNotFound)

	// ErrConsumerNotFound indicates that the requested consumer registration does not exist.
	ErrConsumerNotFound = fmt.Errorf("%w: consumer", ErrNotFound)

	// ErrDeadLetterNotFound indicates that the requested dead letter does not exist.
	ErrDeadLetterNotFound = fmt.Errorf("%w: dead letter", ErrNotFound)
)

// IsNotFoundError checks if the error is any kind of "not found" error.
// This includes the generic ErrNotFound and all entity-specific not found errors.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflictError checks if the error indicates a status-guarded update that
// lost against the entity's current state.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrConflictingState)
}

// StoreError is a custom error type for store-specific errors with additional context.
type StoreError struct {
	Entity    string // The entity type (e.g., "task", "consumer")
	Operation string // The operation that failed (e.g., "create", "transition")
	Message   string // Error message
	Err       error  // Original error
}

// Error implements the error interface for StoreError.
func (e *StoreError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf(
			"%s operation on %s failed: %s: %v",
			e.Operation,
			e.Entity,
			e.Message,
			e.Err,
		)
	}
	return fmt.Sprintf("%s operation on %s failed: %s", e.Operation, e.Entity, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewStoreError creates a new StoreError with the given entity, operation, message, and wrapped error.
func NewStoreError(entity, operation, message string, err error) *StoreError {
	return &StoreError{
		Entity:    entity,
		Operation: operation,
		Message:   message,
		Err:       err,
	}
}
