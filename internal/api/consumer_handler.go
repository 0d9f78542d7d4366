package api

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/phrazzld/taskrelay/internal/api/shared"
	"github.com/phrazzld/taskrelay/internal/broker"
	"github.com/phrazzld/taskrelay/internal/domain"
)

// ConsumerHandler handles consumer registration and liveness requests.
type ConsumerHandler struct {
	svc       *broker.Service
	validator *validator.Validate
}

// NewConsumerHandler creates a new ConsumerHandler.
func NewConsumerHandler(svc *broker.Service) *ConsumerHandler {
	return &ConsumerHandler{
		svc:       svc,
		validator: validator.New(),
	}
}

// Register handles POST /consumers/register requests. Re-registering an
// existing id refreshes the heartbeat and keeps the completion counter.
func (h *ConsumerHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterConsumerRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, SanitizeValidationError(err))
		return
	}

	consumer, err := h.svc.RegisterConsumer(r.Context(), req.ID, req.Name)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusCreated, consumer)
}

// Heartbeat handles POST /consumers/heartbeat requests. Expected cadence is
// every few seconds while the consumer holds a task.
func (h *ConsumerHandler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	var req HeartbeatRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, SanitizeValidationError(err))
		return
	}

	var currentTaskID *uuid.UUID
	if req.CurrentTaskID != nil {
		id, err := uuid.Parse(*req.CurrentTaskID)
		if err != nil {
			shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid currentTaskId format")
			return
		}
		currentTaskID = &id
	}

	if err := h.svc.HeartbeatConsumer(r.Context(), req.ID, currentTaskID); err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Unregister handles POST /consumers/unregister requests. Any task the
// consumer holds goes back to the pending queue.
func (h *ConsumerHandler) Unregister(w http.ResponseWriter, r *http.Request) {
	var req UnregisterConsumerRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, SanitizeValidationError(err))
		return
	}

	if err := h.svc.UnregisterConsumer(r.Context(), req.ID); err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// List handles GET /consumers requests.
func (h *ConsumerHandler) List(w http.ResponseWriter, r *http.Request) {
	consumers, err := h.svc.Consumers(r.Context())
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	if consumers == nil {
		consumers = []*domain.Consumer{}
	}

	shared.RespondWithJSON(w, r, http.StatusOK, consumers)
}
