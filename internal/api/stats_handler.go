package api

import (
	"net/http"

	"github.com/phrazzld/taskrelay/internal/api/shared"
	"github.com/phrazzld/taskrelay/internal/broker"
)

// StatsHandler exposes the dashboard snapshot.
type StatsHandler struct {
	svc *broker.Service
}

// NewStatsHandler creates a new StatsHandler.
func NewStatsHandler(svc *broker.Service) *StatsHandler {
	return &StatsHandler{svc: svc}
}

// Get handles GET /stats requests: task counts per status, registered
// consumers and the lock state in one response.
func (h *StatsHandler) Get(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.GetStats(r.Context())
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, stats)
}
