package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/phrazzld/taskrelay/internal/api/shared"
	"github.com/phrazzld/taskrelay/internal/broker"
)

// LockHandler exposes the file lock for inspection and release.
type LockHandler struct {
	svc *broker.Service
}

// NewLockHandler creates a new LockHandler.
func NewLockHandler(svc *broker.Service) *LockHandler {
	return &LockHandler{svc: svc}
}

// Get handles GET /filelock requests: the current lock snapshot.
func (h *LockHandler) Get(w http.ResponseWriter, r *http.Request) {
	lock, err := h.svc.FileLock(r.Context())
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, lock)
}

// Release handles DELETE /filelock requests. Without force the caller must
// name the holding consumer; force releases unconditionally (stuck-lock
// recovery).
func (h *LockHandler) Release(w http.ResponseWriter, r *http.Request) {
	var req ReleaseLockRequest
	if err := shared.DecodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}

	if err := h.svc.ReleaseFileLock(r.Context(), req.ConsumerID, req.Force); err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
