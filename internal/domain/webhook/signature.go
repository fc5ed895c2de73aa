// Package webhook verifies repository push notifications and records the
// curriculum weeks they complete.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/okian/homework/internal/domain/model"
)

const signaturePrefix = "sha256="

// Delivery headers.
const (
	SignatureHeader = "X-Hub-Signature-256"
	EventHeader     = "X-GitHub-Event"
	DeliveryHeader  = "X-GitHub-Delivery"
)

// Sign returns the X-Hub-Signature-256 header value for body.
func Sign(secret string, body []byte) string {
	return signaturePrefix + hex.EncodeToString(sum(secret, body))
}

func sum(secret string, body []byte) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return mac.Sum(nil)
}

// VerifySignature checks header against the HMAC-SHA256 of body.
// An empty secret or header never verifies.
func VerifySignature(secret string, body []byte, header string) error {
	const op = "webhook.verify"
	if secret == "" || header == "" || !strings.HasPrefix(header, signaturePrefix) {
		return model.E(op, model.KindAuth, model.ErrInvalidSignature)
	}
	// hex digits may arrive in either case
	got, err := hex.DecodeString(strings.TrimPrefix(header, signaturePrefix))
	if err != nil || !hmac.Equal(sum(secret, body), got) {
		return model.E(op, model.KindAuth, model.ErrInvalidSignature)
	}
	return nil
}
