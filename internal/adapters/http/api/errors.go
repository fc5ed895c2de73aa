package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/okian/homework/internal/domain/model"
)

// Sentinel kinds for API errors.
var (
	ErrServe        = errors.New("swagger serve failed")
	ErrBadRequest   = errors.New("bad request")
	ErrUnauthorized = errors.New("unauthorized")
)

// NewKind tags op with a sentinel kind.
func NewKind(op string, kind error) error {
	return fmt.Errorf("%s: %w", op, kind)
}

// WrapKind tags err with op and a sentinel kind, keeping both matchable.
func WrapKind(op string, kind, err error) error {
	if err == nil {
		return NewKind(op, kind)
	}
	return fmt.Errorf("%s: %w: %w", op, kind, err)
}

// Wrap prefixes err with op.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

func newValidationError(msg string) error {
	return fmt.Errorf("%w: %s", ErrBadRequest, msg)
}

// statusFor maps an error to the HTTP status and the short code in the body.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, model.ErrClaimInProgress):
		return http.StatusConflict, "claim_in_progress"
	case errors.Is(err, model.ErrSubmissionDisabled):
		return http.StatusServiceUnavailable, "unavailable"
	}
	switch model.KindOf(err) {
	case model.KindAuth:
		return http.StatusUnauthorized, "unauthorized"
	case model.KindValidation:
		return http.StatusBadRequest, "bad_request"
	case model.KindState:
		return http.StatusBadRequest, "invalid_state"
	case model.KindUpstream:
		return http.StatusBadGateway, "upstream_error"
	case model.KindNotFound:
		return http.StatusNotFound, "not_found"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// writeDomainError renders err with its mapped status.
func writeDomainError(w http.ResponseWriter, err error) {
	status, code := statusFor(err)
	writeError(w, status, code, err)
}
