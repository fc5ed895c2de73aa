package api

import (
	"context"
	"net/http"

	"github.com/okian/homework/internal/domain/model"
)

// LinkDependencies writes identity links.
type LinkDependencies interface {
	LinkIdentity(ctx context.Context, participant, username, token string) (model.IdentityLink, error)
}

type linkRequest struct {
	ParticipantAddress string `json:"participantAddress" validate:"notblank,max=128"`
	Username           string `json:"username" validate:"notblank,max=39"`
	Token              string `json:"token,omitempty" validate:"max=512"`
}

// LinkHandler creates identity links on behalf of the account-linking flow.
type LinkHandler struct {
	deps      LinkDependencies
	validator *requestValidator
}

// NewLinkHandler creates a new link handler.
func NewLinkHandler(deps LinkDependencies, v *requestValidator) *LinkHandler {
	return &LinkHandler{deps: deps, validator: v}
}

// HandleLink handles POST /admin/links requests.
func (h *LinkHandler) HandleLink(w http.ResponseWriter, r *http.Request) {
	const op = "api.link"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req linkRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := h.validator.check(req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", Wrap(op, err))
		return
	}
	link, err := h.deps.LinkIdentity(r.Context(), req.ParticipantAddress, req.Username, req.Token)
	if err != nil {
		writeDomainError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusCreated, link)
}
