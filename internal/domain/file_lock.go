package domain

import (
	"time"

	"github.com/google/uuid"
)

// FileLock is the singleton exclusive token gating write-task execution.
// At most one consumer holds it at any time. The lock is persisted so a
// process restart can restore it or detect staleness.
type FileLock struct {
	HeldBy     *string    `json:"held_by,omitempty"`
	TaskID     *uuid.UUID `json:"task_id,omitempty"`
	AcquiredAt *time.Time `json:"acquired_at,omitempty"`
}

// IsHeld reports whether any consumer currently holds the lock.
func (l *FileLock) IsHeld() bool {
	return l.HeldBy != nil && *l.HeldBy != ""
}

// HeldByConsumer reports whether the given consumer currently holds the lock.
func (l *FileLock) HeldByConsumer(consumerID string) bool {
	return l.IsHeld() && *l.HeldBy == consumerID
}

// OlderThan reports whether the lock was acquired more than the given
// duration ago. An unheld lock is never stale.
func (l *FileLock) OlderThan(age time.Duration) bool {
	if !l.IsHeld() || l.AcquiredAt == nil {
		return false
	}
	return time.Since(*l.AcquiredAt) > age
}
