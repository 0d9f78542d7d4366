package api

import (
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/phrazzld/taskrelay/internal/api/shared"
	"github.com/phrazzld/taskrelay/internal/broker"
	"github.com/phrazzld/taskrelay/internal/domain"
)

// TaskHandler handles task-related HTTP requests.
type TaskHandler struct {
	svc       *broker.Service
	validator *validator.Validate
}

// NewTaskHandler creates a new TaskHandler.
func NewTaskHandler(svc *broker.Service) *TaskHandler {
	return &TaskHandler{
		svc:       svc,
		validator: validator.New(),
	}
}

// Submit handles POST /tasks requests.
func (h *TaskHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req SubmitTaskRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, SanitizeValidationError(err))
		return
	}

	var explicitType *domain.TaskType
	if req.TaskType != "" {
		t := domain.TaskType(req.TaskType)
		explicitType = &t
	}

	task, err := h.svc.Submit(r.Context(), req.Content, domain.TaskPriority(req.Priority), explicitType)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusCreated, task)
}

// ListPending handles GET /tasks/pending requests. Tasks come back in
// dispatch order: priority band, then age.
func (h *TaskHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.svc.PendingTasks(r.Context())
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	if tasks == nil {
		tasks = []*domain.Task{}
	}

	shared.RespondWithJSON(w, r, http.StatusOK, tasks)
}

// Get handles GET /tasks/{id} requests.
func (h *TaskHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := getPathUUID(r, "id")
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	task, err := h.svc.GetTask(r.Context(), id)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, task)
}

// Next handles GET /tasks/next?consumerId= requests: the next task the
// consumer may claim under the file-lock rule, or null with a reason.
func (h *TaskHandler) Next(w http.ResponseWriter, r *http.Request) {
	consumerID := r.URL.Query().Get("consumerId")
	if consumerID == "" {
		shared.RespondWithError(w, r, http.StatusBadRequest, "consumerId query parameter is required")
		return
	}

	task, reason, err := h.svc.NextForConsumer(r.Context(), consumerID)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, NextTaskResponse{
		Task:   task,
		Reason: reason,
	})
}

// Claim handles POST /tasks/{id}/claim requests. Claiming a non-pending
// task yields 409; losing the file lock yields 423.
func (h *TaskHandler) Claim(w http.ResponseWriter, r *http.Request) {
	id, err := getPathUUID(r, "id")
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	var req ClaimTaskRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, SanitizeValidationError(err))
		return
	}

	task, err := h.svc.Claim(r.Context(), id, req.ConsumerID)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, task)
}

// Respond handles POST /tasks/{id}/respond requests: success completion on
// behalf of whichever consumer holds the task.
func (h *TaskHandler) Respond(w http.ResponseWriter, r *http.Request) {
	id, err := getPathUUID(r, "id")
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	var req RespondTaskRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, SanitizeValidationError(err))
		return
	}

	task, err := h.svc.Respond(r.Context(), id, req.Response)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, task)
}

// Complete handles POST /tasks/{id}/complete requests. A response means
// success; an error routes the task through the retry/dead-letter path.
func (h *TaskHandler) Complete(w http.ResponseWriter, r *http.Request) {
	id, err := getPathUUID(r, "id")
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	var req CompleteTaskRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, SanitizeValidationError(err))
		return
	}
	if req.Response == nil && req.Error == nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Either response or error is required")
		return
	}

	task, err := h.svc.Complete(r.Context(), id, req.ConsumerID, req.Response, req.Error)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, task)
}

// Release handles POST /tasks/{id}/release requests: cooperative
// abandonment back to the pending queue.
func (h *TaskHandler) Release(w http.ResponseWriter, r *http.Request) {
	id, err := getPathUUID(r, "id")
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	var req ReleaseTaskRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, SanitizeValidationError(err))
		return
	}

	task, err := h.svc.Release(r.Context(), id, req.ConsumerID)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, task)
}

// Reject handles POST /tasks/{id}/reject requests.
func (h *TaskHandler) Reject(w http.ResponseWriter, r *http.Request) {
	id, err := getPathUUID(r, "id")
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	var req RejectTaskRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, SanitizeValidationError(err))
		return
	}

	task, err := h.svc.Reject(r.Context(), id, req.Reason, req.Category)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, task)
}

// Review handles POST /tasks/{id}/review requests: flag for human
// attention without terminating.
func (h *TaskHandler) Review(w http.ResponseWriter, r *http.Request) {
	id, err := getPathUUID(r, "id")
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	var req ReviewTaskRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, SanitizeValidationError(err))
		return
	}

	task, err := h.svc.Review(r.Context(), id, req.Note)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, task)
}

// Resubmit handles POST /tasks/{id}/resubmit requests: reset a failed,
// needs_review or rejected task back to pending.
func (h *TaskHandler) Resubmit(w http.ResponseWriter, r *http.Request) {
	id, err := getPathUUID(r, "id")
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	var req ResubmitTaskRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, SanitizeValidationError(err))
		return
	}

	var priority *domain.TaskPriority
	if req.Priority != nil {
		p := domain.TaskPriority(*req.Priority)
		priority = &p
	}

	task, err := h.svc.Resubmit(r.Context(), id, req.Content, priority)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, task)
}

// Delete handles DELETE /tasks/{id}?force= requests. Active tasks are
// protected (403) unless force=true.
func (h *TaskHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := getPathUUID(r, "id")
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	force, _ := strconv.ParseBool(r.URL.Query().Get("force"))

	if err := h.svc.Delete(r.Context(), id, force); err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// DeadLetters handles GET /deadletters?limit=&offset= requests: the
// newest-first audit trail of exhausted tasks.
func (h *TaskHandler) DeadLetters(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	letters, err := h.svc.DeadLetters(r.Context(), limit, offset)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	if letters == nil {
		letters = []*domain.DeadLetter{}
	}

	shared.RespondWithJSON(w, r, http.StatusOK, letters)
}

// TaskDeadLetters handles GET /tasks/{id}/deadletters requests.
func (h *TaskHandler) TaskDeadLetters(w http.ResponseWriter, r *http.Request) {
	id, err := getPathUUID(r, "id")
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	letters, err := h.svc.DeadLettersForTask(r.Context(), id)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	if letters == nil {
		letters = []*domain.DeadLetter{}
	}

	shared.RespondWithJSON(w, r, http.StatusOK, letters)
}
