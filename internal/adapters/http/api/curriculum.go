package api

import (
	"net/http"

	"github.com/okian/homework/internal/domain/curriculum"
)

// CurriculumDependencies exposes the week catalog.
type CurriculumDependencies interface {
	Catalog() *curriculum.Catalog
}

type curriculumWeek struct {
	curriculum.Entry
	Reward    int64 `json:"reward"`
	Milestone bool  `json:"milestone"`
}

type curriculumResponse struct {
	Weeks          []curriculumWeek `json:"weeks"`
	WeeklyReward   int64            `json:"weeklyReward"`
	MaxTotalReward int64            `json:"maxTotalReward"`
}

// CurriculumHandler serves the catalog with per-week rewards.
type CurriculumHandler struct {
	deps CurriculumDependencies
}

// NewCurriculumHandler creates a new curriculum handler.
func NewCurriculumHandler(deps CurriculumDependencies) *CurriculumHandler {
	return &CurriculumHandler{deps: deps}
}

// HandleCurriculum handles GET /homework/curriculum requests.
func (h *CurriculumHandler) HandleCurriculum(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	entries := h.deps.Catalog().Entries()
	weeks := make([]curriculumWeek, 0, len(entries))
	for _, e := range entries {
		weeks = append(weeks, curriculumWeek{
			Entry:     e,
			Reward:    curriculum.WeekReward(e.Week),
			Milestone: curriculum.IsMilestone(e.Week),
		})
	}
	writeJSON(w, http.StatusOK, curriculumResponse{
		Weeks:          weeks,
		WeeklyReward:   curriculum.WeeklyReward,
		MaxTotalReward: curriculum.MaxTotalReward(),
	})
}
