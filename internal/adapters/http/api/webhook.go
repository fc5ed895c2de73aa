package api

import (
	"context"
	"io"
	"net/http"

	"github.com/okian/homework/internal/domain/webhook"
)

// WebhookDependencies defines the interface for push delivery handling.
type WebhookDependencies interface {
	HandleDelivery(ctx context.Context, delivery, event, signature string, body []byte) (webhook.Result, error)
}

// WebhookHandler handles repository push notifications.
type WebhookHandler struct {
	deps WebhookDependencies
}

// NewWebhookHandler creates a new webhook handler.
func NewWebhookHandler(deps WebhookDependencies) *WebhookHandler {
	return &WebhookHandler{deps: deps}
}

type webhookResponse struct {
	OK        bool `json:"ok"`
	Skipped   bool `json:"skipped,omitempty"`
	Duplicate bool `json:"duplicate,omitempty"`
	Matched   *int `json:"matched,omitempty"`
}

// HandleGitHub handles POST /webhooks/github requests.
func (h *WebhookHandler) HandleGitHub(w http.ResponseWriter, r *http.Request) {
	const op = "api.webhook"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	// The signature covers the exact bytes, so the body is read raw.
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	res, err := h.deps.HandleDelivery(r.Context(),
		r.Header.Get(webhook.DeliveryHeader),
		r.Header.Get(webhook.EventHeader),
		r.Header.Get(webhook.SignatureHeader),
		body)
	if err != nil {
		writeDomainError(w, Wrap(op, err))
		return
	}
	if res.Skipped {
		writeJSON(w, http.StatusOK, webhookResponse{OK: true, Skipped: true})
		return
	}
	matched := res.Matched
	writeJSON(w, http.StatusOK, webhookResponse{OK: true, Duplicate: res.Duplicate, Matched: &matched})
}
