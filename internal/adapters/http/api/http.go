// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	WebhookDependencies
	ClaimDependencies
	RewardDependencies
	ProgressDependencies
	BadgeDependencies
	CurriculumDependencies
	PendingDependencies
	SubmitDependencies
	LinkDependencies
	LeaderboardDependencies
	RankDependencies
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	webhookHandler     *WebhookHandler
	claimHandler       *ClaimHandler
	rewardHandler      *RewardHandler
	progressHandler    *ProgressHandler
	badgeHandler       *BadgeHandler
	curriculumHandler  *CurriculumHandler
	pendingHandler     *PendingHandler
	submitHandler      *SubmitHandler
	linkHandler        *LinkHandler
	leaderboardHandler *LeaderboardHandler
	rankHandler        *RankHandler
	adminKey           string
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, opts ...ServerOption) *Server {
	cfg := serverConfig{maxLeaderboardLimit: defaultMaxLeaderboardLimit}
	for _, opt := range opts {
		opt(&cfg)
	}
	v := newRequestValidator()
	return &Server{
		healthHandler:      NewHealthHandler(),
		statsHandler:       NewStatsHandler(statsProvider),
		webhookHandler:     NewWebhookHandler(deps),
		claimHandler:       NewClaimHandler(deps, v),
		rewardHandler:      NewRewardHandler(deps, v),
		progressHandler:    NewProgressHandler(deps),
		badgeHandler:       NewBadgeHandler(deps),
		curriculumHandler:  NewCurriculumHandler(deps),
		pendingHandler:     NewPendingHandler(deps),
		submitHandler:      NewSubmitHandler(deps, v),
		linkHandler:        NewLinkHandler(deps, v),
		leaderboardHandler: NewLeaderboardHandler(deps, cfg.maxLeaderboardLimit),
		rankHandler:        NewRankHandler(deps),
		adminKey:           cfg.adminKey,
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	admin := func(h http.HandlerFunc) http.HandlerFunc { return AdminOnly(s.adminKey, h) }

	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/webhooks/github", MetricsMiddleware(s.webhookHandler.HandleGitHub, "webhook"))
	mux.HandleFunc("/homework/claim", MetricsMiddleware(s.claimHandler.HandleClaim, "claim"))
	mux.HandleFunc("/homework/reward", MetricsMiddleware(admin(s.rewardHandler.HandleReward), "reward"))
	mux.HandleFunc("/homework/progress", MetricsMiddleware(s.progressHandler.HandleProgress, "progress"))
	mux.HandleFunc("/homework/badge/", MetricsMiddleware(s.badgeHandler.HandleBadge, "badge"))
	mux.HandleFunc("/homework/curriculum", MetricsMiddleware(s.curriculumHandler.HandleCurriculum, "curriculum"))
	mux.HandleFunc("/homework/pending/", MetricsMiddleware(admin(s.pendingHandler.HandlePending), "pending"))
	mux.HandleFunc("/homework/submit", MetricsMiddleware(s.submitHandler.HandleSubmit, "submit"))
	mux.HandleFunc("/admin/links", MetricsMiddleware(admin(s.linkHandler.HandleLink), "links"))
	mux.HandleFunc("/leaderboard", MetricsMiddleware(s.leaderboardHandler.HandleGetLeaderboard, "leaderboard"))
	mux.HandleFunc("/rank/", MetricsMiddleware(s.rankHandler.HandleGetRank, "rank"))
}

const (
	defaultMaxLeaderboardLimit = 100
	maxRequestBody             = 1 << 20
	maxWebhookBody             = 25 << 20
)

type serverConfig struct {
	adminKey            string
	maxLeaderboardLimit int
}

// ServerOption applies a configuration option to the Server.
type ServerOption func(*serverConfig)

// WithAdminKey sets the X-API-Key admin routes require. Admin routes reject
// every request while it is empty.
func WithAdminKey(key string) ServerOption {
	return func(c *serverConfig) {
		c.adminKey = key
	}
}

// WithMaxLeaderboardLimit caps GET /leaderboard?limit.
func WithMaxLeaderboardLimit(n int) ServerOption {
	return func(c *serverConfig) {
		if n > 0 {
			c.maxLeaderboardLimit = n
		}
	}
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// decodeJSON reads a bounded JSON body into v, rejecting unknown trailing data.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return newValidationError("unexpected data after JSON body")
	}
	return nil
}
