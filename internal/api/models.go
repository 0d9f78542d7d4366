package api

import (
	"github.com/phrazzld/taskrelay/internal/domain"
)

// SubmitTaskRequest is the body for POST /tasks. Priority defaults to
// normal and TaskType to the classifier's verdict when omitted.
type SubmitTaskRequest struct {
	Content  string `json:"content"  validate:"required,min=1"`
	Priority string `json:"priority" validate:"omitempty,oneof=high normal low"`
	TaskType string `json:"taskType" validate:"omitempty,oneof=read_only write"`
}

// ClaimTaskRequest is the body for POST /tasks/{id}/claim.
type ClaimTaskRequest struct {
	ConsumerID string `json:"consumerId" validate:"required,min=1"`
}

// RespondTaskRequest is the body for POST /tasks/{id}/respond, the
// success-only completion path.
type RespondTaskRequest struct {
	Response string `json:"response" validate:"required,min=1"`
}

// CompleteTaskRequest is the body for POST /tasks/{id}/complete. Exactly
// one of Response and Error should be set; a set Error routes the task
// through the retry path.
type CompleteTaskRequest struct {
	ConsumerID string  `json:"consumerId" validate:"required,min=1"`
	Response   *string `json:"response,omitempty"`
	Error      *string `json:"error,omitempty"`
}

// ReleaseTaskRequest is the body for POST /tasks/{id}/release.
type ReleaseTaskRequest struct {
	ConsumerID string `json:"consumerId" validate:"required,min=1"`
}

// RejectTaskRequest is the body for POST /tasks/{id}/reject.
type RejectTaskRequest struct {
	Reason   string `json:"reason"   validate:"required,min=1"`
	Category string `json:"category" validate:"required,min=1"`
}

// ReviewTaskRequest is the body for POST /tasks/{id}/review.
type ReviewTaskRequest struct {
	Note string `json:"note" validate:"required,min=1"`
}

// ResubmitTaskRequest is the body for POST /tasks/{id}/resubmit. Both
// fields are optional; omitted fields keep the task's current values.
type ResubmitTaskRequest struct {
	Content  *string `json:"content,omitempty"`
	Priority *string `json:"priority,omitempty" validate:"omitempty,oneof=high normal low"`
}

// NextTaskResponse is the body for GET /tasks/next. Task is null when no
// eligible work exists; Reason explains why (currently only
// "file_lock_held").
type NextTaskResponse struct {
	Task   *domain.Task `json:"task"`
	Reason string       `json:"reason,omitempty"`
}

// RegisterConsumerRequest is the body for POST /consumers/register.
type RegisterConsumerRequest struct {
	ID   string `json:"id"   validate:"required,min=1"`
	Name string `json:"name" validate:"required,min=1"`
}

// HeartbeatRequest is the body for POST /consumers/heartbeat.
// CurrentTaskID optionally records the task the consumer is working; when
// omitted the recorded task is cleared.
type HeartbeatRequest struct {
	ID            string  `json:"id" validate:"required,min=1"`
	CurrentTaskID *string `json:"currentTaskId,omitempty" validate:"omitempty,uuid"`
}

// UnregisterConsumerRequest is the body for POST /consumers/unregister.
type UnregisterConsumerRequest struct {
	ID string `json:"id" validate:"required,min=1"`
}

// ReleaseLockRequest is the body for DELETE /filelock. Without force the
// consumer must be the current holder.
type ReleaseLockRequest struct {
	ConsumerID string `json:"consumerId,omitempty"`
	Force      bool   `json:"force,omitempty"`
}
