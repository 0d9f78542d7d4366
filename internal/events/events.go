package events

import (
	"time"
)

// Event types broadcast by the broker. Every task state transition, every
// consumer liveness change and every file-lock handoff produces exactly one
// of these.
const (
	EventTaskCreated     = "task.created"
	EventTaskClaimed     = "task.claimed"
	EventTaskCompleted   = "task.completed"
	EventTaskFailed      = "task.failed"
	EventTaskRetrying    = "task.retrying"
	EventTaskNeedsReview = "task.needs_review"
	EventTaskRejected    = "task.rejected"
	EventTaskResubmitted = "task.resubmitted"
	EventTaskReleased    = "task.released"
	EventTaskRequeued    = "task.requeued"
	EventTaskDeleted     = "task.deleted"

	EventConsumerOnline  = "consumer.online"
	EventConsumerOffline = "consumer.offline"

	EventFileLockAcquired = "filelock.acquired"
	EventFileLockReleased = "filelock.released"

	// EventConnected is the handshake sent to a subscriber immediately
	// after it connects, before any broker events.
	EventConnected = "connected"
)

// Event is the envelope delivered to subscribers. Data carries the
// transition-specific payload (usually the task, consumer or lock snapshot).
type Event struct {
	Type      string    `json:"type"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// NewEvent creates an event envelope stamped with the current time.
func NewEvent(eventType string, data any) Event {
	return Event{
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
}

// Publisher defines the interface for components that broadcast broker
// events. Delivery is at-most-once and must never block the caller: a slow
// or disconnected subscriber cannot stall task processing.
type Publisher interface {
	// Publish fans the event out to all currently-connected subscribers.
	Publish(eventType string, data any)
}

// NopPublisher is a Publisher that discards all events. Useful as a default
// and in tests that do not assert on broadcasts.
type NopPublisher struct{}

// Publish implements Publisher by doing nothing.
func (NopPublisher) Publish(eventType string, data any) {}
