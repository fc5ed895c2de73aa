package api

import (
	"context"
	"net/http"

	"github.com/okian/homework/internal/domain/model"
)

// SubmitDependencies pushes a deliverable to the homework repository.
type SubmitDependencies interface {
	Submit(ctx context.Context, participant string, week int, content string) (model.Submission, error)
}

type submitRequest struct {
	ParticipantAddress string `json:"participantAddress" validate:"notblank,max=128"`
	Week               int    `json:"week" validate:"min=1,max=52"`
	Content            string `json:"content" validate:"notblank,max=524288"`
}

type submitResponse struct {
	Success   bool   `json:"success"`
	Path      string `json:"path"`
	CommitRef string `json:"commitRef"`
	URL       string `json:"url"`
}

// SubmitHandler handles deliverable submission.
type SubmitHandler struct {
	deps      SubmitDependencies
	validator *requestValidator
}

// NewSubmitHandler creates a new submit handler.
func NewSubmitHandler(deps SubmitDependencies, v *requestValidator) *SubmitHandler {
	return &SubmitHandler{deps: deps, validator: v}
}

// HandleSubmit handles POST /homework/submit requests.
func (h *SubmitHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	const op = "api.submit"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req submitRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := h.validator.check(req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", Wrap(op, err))
		return
	}
	sub, err := h.deps.Submit(r.Context(), req.ParticipantAddress, req.Week, req.Content)
	if err != nil {
		writeDomainError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, submitResponse{
		Success:   true,
		Path:      sub.Path,
		CommitRef: sub.CommitRef,
		URL:       sub.URL,
	})
}
