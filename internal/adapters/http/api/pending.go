package api

import (
	"context"
	"net/http"
)

// PendingDependencies lists participants owed a reward for a week.
type PendingDependencies interface {
	PendingParticipants(ctx context.Context, week int) ([]string, error)
}

type pendingResponse struct {
	Week         int      `json:"week"`
	Participants []string `json:"participants"`
}

// PendingHandler serves the pending reward set of one week.
type PendingHandler struct {
	deps PendingDependencies
}

// NewPendingHandler creates a new pending handler.
func NewPendingHandler(deps PendingDependencies) *PendingHandler {
	return &PendingHandler{deps: deps}
}

// HandlePending handles GET /homework/pending/{week} requests.
func (h *PendingHandler) HandlePending(w http.ResponseWriter, r *http.Request) {
	const op = "api.pending"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	week, err := pathWeek(r, "/homework/pending/")
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	participants, err := h.deps.PendingParticipants(r.Context(), week)
	if err != nil {
		writeDomainError(w, Wrap(op, err))
		return
	}
	if participants == nil {
		participants = []string{}
	}
	writeJSON(w, http.StatusOK, pendingResponse{Week: week, Participants: participants})
}
