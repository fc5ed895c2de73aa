package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/okian/homework/internal/domain/rewards"
)

// ClaimDependencies defines the interface for participant claims.
type ClaimDependencies interface {
	Claim(ctx context.Context, participant string) (rewards.ClaimResult, error)
}

// RewardDependencies defines the interface for admin single-week distribution.
type RewardDependencies interface {
	Distribute(ctx context.Context, participant string, week int) (rewards.DistributeResult, error)
}

type claimRequest struct {
	ParticipantAddress string `json:"participantAddress" validate:"notblank,max=128"`
}

type claimResponse struct {
	Success     bool   `json:"success"`
	TotalAmount int64  `json:"totalAmount"`
	Weeks       []int  `json:"weeks"`
	TransferRef string `json:"transferRef"`
}

type rewardRequest struct {
	ParticipantAddress string `json:"participantAddress" validate:"notblank,max=128"`
	Week               int    `json:"week" validate:"min=1,max=52"`
}

type rewardResponse struct {
	Success     bool   `json:"success"`
	Week        int    `json:"week"`
	Amount      int64  `json:"amount"`
	TransferRef string `json:"transferRef"`
}

// ClaimHandler handles reward claims.
type ClaimHandler struct {
	deps      ClaimDependencies
	validator *requestValidator
}

// NewClaimHandler creates a new claim handler.
func NewClaimHandler(deps ClaimDependencies, v *requestValidator) *ClaimHandler {
	return &ClaimHandler{deps: deps, validator: v}
}

// HandleClaim handles POST /homework/claim requests.
func (h *ClaimHandler) HandleClaim(w http.ResponseWriter, r *http.Request) {
	const op = "api.claim"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req claimRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := h.validator.check(req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", Wrap(op, err))
		return
	}
	res, err := h.deps.Claim(r.Context(), req.ParticipantAddress)
	if err != nil {
		writeDomainError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, claimResponse{
		Success:     true,
		TotalAmount: res.TotalAmount,
		Weeks:       res.Weeks,
		TransferRef: res.TransferRef,
	})
}

// RewardHandler handles admin single-week distribution.
type RewardHandler struct {
	deps      RewardDependencies
	validator *requestValidator
}

// NewRewardHandler creates a new reward handler.
func NewRewardHandler(deps RewardDependencies, v *requestValidator) *RewardHandler {
	return &RewardHandler{deps: deps, validator: v}
}

// HandleReward handles POST /homework/reward requests.
func (h *RewardHandler) HandleReward(w http.ResponseWriter, r *http.Request) {
	const op = "api.reward"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req rewardRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := h.validator.check(req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", Wrap(op, err))
		return
	}
	res, err := h.deps.Distribute(r.Context(), req.ParticipantAddress, req.Week)
	if err != nil {
		writeDomainError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, rewardResponse{
		Success:     true,
		Week:        res.Week,
		Amount:      res.Amount,
		TransferRef: res.TransferRef,
	})
}

var errBadWeek = errors.New("week must be an integer")

// pathWeek extracts the single path segment after prefix as a week number.
func pathWeek(r *http.Request, prefix string) (int, error) {
	seg := strings.TrimPrefix(r.URL.Path, prefix)
	if seg == "" || strings.Contains(seg, "/") {
		return 0, errBadWeek
	}
	week, err := strconv.Atoi(seg)
	if err != nil {
		return 0, errBadWeek
	}
	return week, nil
}

// queryParticipant returns the trimmed participant query parameter.
func queryParticipant(r *http.Request) (string, error) {
	p := strings.TrimSpace(r.URL.Query().Get("participant"))
	if p == "" {
		return "", newValidationError("participant query parameter required")
	}
	return p, nil
}
