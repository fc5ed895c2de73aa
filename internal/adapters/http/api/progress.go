package api

import (
	"context"
	"net/http"

	"github.com/okian/homework/internal/domain/model"
)

// ProgressDependencies defines the interface for the progress read model.
type ProgressDependencies interface {
	Progress(ctx context.Context, participant string) (model.Progress, error)
}

// ProgressHandler handles progress queries.
type ProgressHandler struct {
	deps ProgressDependencies
}

// NewProgressHandler creates a new progress handler.
func NewProgressHandler(deps ProgressDependencies) *ProgressHandler {
	return &ProgressHandler{deps: deps}
}

// HandleProgress handles GET /homework/progress?participant= requests.
func (h *ProgressHandler) HandleProgress(w http.ResponseWriter, r *http.Request) {
	const op = "api.progress"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	p, err := queryParticipant(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", Wrap(op, err))
		return
	}
	progress, err := h.deps.Progress(r.Context(), p)
	if err != nil {
		writeDomainError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, progress)
}
