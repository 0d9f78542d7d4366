package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// TaskStatus represents the lifecycle state of a task
type TaskStatus string

// Possible task status values
const (
	TaskStatusPending     TaskStatus = "pending"
	TaskStatusProcessing  TaskStatus = "processing"
	TaskStatusCompleted   TaskStatus = "completed"
	TaskStatusFailed      TaskStatus = "failed"
	TaskStatusRetrying    TaskStatus = "retrying"
	TaskStatusNeedsReview TaskStatus = "needs_review"
	TaskStatusRejected    TaskStatus = "rejected"
)

// TaskPriority controls dispatch ordering within the pending queue
type TaskPriority string

// Possible task priority values, ordered high before normal before low
const (
	TaskPriorityHigh   TaskPriority = "high"
	TaskPriorityNormal TaskPriority = "normal"
	TaskPriorityLow    TaskPriority = "low"
)

// TaskType indicates whether executing the task may mutate shared files.
// Write tasks are serialized through the file lock; read-only tasks may
// run concurrently.
type TaskType string

// Possible task type values
const (
	TaskTypeReadOnly TaskType = "read_only"
	TaskTypeWrite    TaskType = "write"
)

// DefaultMaxRetries is the retry budget assigned to new tasks.
const DefaultMaxRetries = 3

// Common validation errors for Task
var (
	ErrEmptyTaskID         = errors.New("task ID cannot be empty")
	ErrEmptyTaskContent    = errors.New("task content cannot be empty")
	ErrInvalidTaskStatus   = errors.New("invalid task status")
	ErrInvalidPriority     = errors.New("invalid task priority")
	ErrInvalidTaskType     = errors.New("invalid task type")
	ErrNegativeRetryCount  = errors.New("retry count cannot be negative")
	ErrRetryBudgetExceeded = errors.New("retry count cannot exceed max retries")
)

// Task represents a unit of producer-submitted work tracked through its
// status lifecycle. Consumers claim pending tasks, process them externally
// and report the outcome back to the broker.
type Task struct {
	ID           uuid.UUID    `json:"id"`
	Content      string       `json:"content"`
	Status       TaskStatus   `json:"status"`
	Priority     TaskPriority `json:"priority"`
	Type         TaskType     `json:"task_type"`
	ConsumerID   *string      `json:"consumer_id,omitempty"`
	Response     *string      `json:"response,omitempty"`
	Error        *string      `json:"error,omitempty"`
	ReviewNote   *string      `json:"review_note,omitempty"`
	RetryCount   int          `json:"retry_count"`
	MaxRetries   int          `json:"max_retries"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
	ProcessingAt *time.Time   `json:"processing_at,omitempty"`
	CompletedAt  *time.Time   `json:"completed_at,omitempty"`
	NextRetryAt  *time.Time   `json:"next_retry_at,omitempty"`
}

// NewTask creates a new pending Task with the given content, priority and
// type. It generates a new UUID, applies the default retry budget and sets
// the creation timestamps. Returns an error if validation fails.
func NewTask(content string, priority TaskPriority, taskType TaskType) (*Task, error) {
	now := time.Now().UTC()
	task := &Task{
		ID:         uuid.New(),
		Content:    content,
		Status:     TaskStatusPending,
		Priority:   priority,
		Type:       taskType,
		RetryCount: 0,
		MaxRetries: DefaultMaxRetries,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := task.Validate(); err != nil {
		return nil, err
	}

	return task, nil
}

// Validate checks if the Task has valid data.
// Returns an error if any field fails validation.
func (t *Task) Validate() error {
	if t.ID == uuid.Nil {
		return ErrEmptyTaskID
	}

	if t.Content == "" {
		return ErrEmptyTaskContent
	}

	if !IsValidTaskStatus(t.Status) {
		return ErrInvalidTaskStatus
	}

	if !IsValidTaskPriority(t.Priority) {
		return ErrInvalidPriority
	}

	if !IsValidTaskType(t.Type) {
		return ErrInvalidTaskType
	}

	if t.RetryCount < 0 {
		return ErrNegativeRetryCount
	}

	if t.RetryCount > t.MaxRetries {
		return ErrRetryBudgetExceeded
	}

	return nil
}

// IsTerminal reports whether the task has reached a state that ends its
// lifecycle without further broker intervention.
func (t *Task) IsTerminal() bool {
	switch t.Status {
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusRejected:
		return true
	default:
		return false
	}
}

// RetriesExhausted reports whether the task has used up its retry budget.
func (t *Task) RetriesExhausted() bool {
	return t.RetryCount >= t.MaxRetries
}

// IsValidTaskStatus checks if the given status is a valid TaskStatus.
func IsValidTaskStatus(status TaskStatus) bool {
	switch status {
	case TaskStatusPending, TaskStatusProcessing, TaskStatusCompleted,
		TaskStatusFailed, TaskStatusRetrying, TaskStatusNeedsReview,
		TaskStatusRejected:
		return true
	default:
		return false
	}
}

// IsValidTaskPriority checks if the given priority is a valid TaskPriority.
func IsValidTaskPriority(priority TaskPriority) bool {
	switch priority {
	case TaskPriorityHigh, TaskPriorityNormal, TaskPriorityLow:
		return true
	default:
		return false
	}
}

// IsValidTaskType checks if the given task type is a valid TaskType.
func IsValidTaskType(taskType TaskType) bool {
	switch taskType {
	case TaskTypeReadOnly, TaskTypeWrite:
		return true
	default:
		return false
	}
}

// PriorityRank returns the dispatch ordering rank for a priority.
// Lower rank is dispatched first.
func PriorityRank(priority TaskPriority) int {
	switch priority {
	case TaskPriorityHigh:
		return 0
	case TaskPriorityNormal:
		return 1
	case TaskPriorityLow:
		return 2
	default:
		return 3
	}
}
