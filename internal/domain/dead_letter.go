package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Common validation errors for DeadLetter
var (
	ErrEmptyDeadLetterTaskID = errors.New("dead letter task ID cannot be empty")
	ErrEmptyDeadLetterReason = errors.New("dead letter reason cannot be empty")
)

// DeadLetter is the append-only audit record written when a task exhausts
// its retry budget. Dead letters are never mutated after creation.
type DeadLetter struct {
	ID              uuid.UUID `json:"id"`
	TaskID          uuid.UUID `json:"task_id"`
	Reason          string    `json:"reason"`
	OriginalContent string    `json:"original_content"`
	FailedAt        time.Time `json:"failed_at"`
}

// NewDeadLetter creates an audit record for a task that exhausted retries.
// Returns an error if validation fails.
func NewDeadLetter(taskID uuid.UUID, reason, originalContent string) (*DeadLetter, error) {
	dl := &DeadLetter{
		ID:              uuid.New(),
		TaskID:          taskID,
		Reason:          reason,
		OriginalContent: originalContent,
		FailedAt:        time.Now().UTC(),
	}

	if err := dl.Validate(); err != nil {
		return nil, err
	}

	return dl, nil
}

// Validate checks if the DeadLetter has valid data.
func (d *DeadLetter) Validate() error {
	if d.TaskID == uuid.Nil {
		return ErrEmptyDeadLetterTaskID
	}

	if d.Reason == "" {
		return ErrEmptyDeadLetterReason
	}

	return nil
}
