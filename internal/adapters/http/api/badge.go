package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/okian/homework/internal/domain/badge"
)

// BadgeDependencies defines the interface for milestone badges.
type BadgeDependencies interface {
	Badge(ctx context.Context, participant string, milestone int) (badge.Badge, error)
}

// BadgeHandler serves milestone badges.
type BadgeHandler struct {
	deps BadgeDependencies
}

// NewBadgeHandler creates a new badge handler.
func NewBadgeHandler(deps BadgeDependencies) *BadgeHandler {
	return &BadgeHandler{deps: deps}
}

// HandleBadge handles GET /homework/badge/{week}?participant= requests.
func (h *BadgeHandler) HandleBadge(w http.ResponseWriter, r *http.Request) {
	const op = "api.badge"
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.NotFound(w, r)
		return
	}
	week, err := pathWeek(r, "/homework/badge/")
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	p, err := queryParticipant(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", Wrap(op, err))
		return
	}
	b, err := h.deps.Badge(r.Context(), p, week)
	if err != nil {
		writeDomainError(w, Wrap(op, err))
		return
	}
	w.Header().Set("Cache-Control", badge.CacheControl)
	w.Header().Set("ETag", b.ETag)
	if match := r.Header.Get("If-None-Match"); match != "" && match == b.ETag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", badge.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(b.SVG)))
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	_, _ = w.Write(b.SVG)
}
