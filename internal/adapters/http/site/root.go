// Package site serves the participant landing page: the curriculum grouped by
// phase with the reward each week pays.
package site

import (
	"bytes"
	"context"
	"errors"
	"net/http"

	"github.com/okian/homework/internal/domain/curriculum"
	"github.com/okian/homework/pkg/logger"
)

// ErrRender is returned when the landing page cannot be rendered.
var ErrRender = errors.New("landing page render failed")

type weekView struct {
	curriculum.Entry
	Reward    int64
	Milestone bool
}

type phaseView struct {
	Name  string
	Weeks []weekView
}

type pageView struct {
	Weeks        int
	WeeklyReward int64
	MaxTotal     int64
	Phases       []phaseView
}

// Register attaches the landing page and its assets to mux.
func Register(_ context.Context, mux *http.ServeMux, catalog *curriculum.Catalog, log logger.Logger) {
	if mux == nil {
		panic("mux is nil")
	}
	h := NewRootHandler(catalog, log)
	mux.HandleFunc("/{$}", h.HandleRoot)
	mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(FS())))
}

// RootHandler renders the landing page.
type RootHandler struct {
	page pageView
	log  logger.Logger
}

// NewRootHandler creates a handler for catalog. The page is built once.
func NewRootHandler(catalog *curriculum.Catalog, log logger.Logger) *RootHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &RootHandler{page: buildPage(catalog), log: log}
}

// HandleRoot handles GET /.
func (h *RootHandler) HandleRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}
	var buf bytes.Buffer
	if err := indexTemplate.Execute(&buf, h.page); err != nil {
		h.log.Error(r.Context(), "landing page", logger.Error(errors.Join(ErrRender, err)))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "public, max-age=300")
	_, _ = w.Write(buf.Bytes())
}

func buildPage(catalog *curriculum.Catalog) pageView {
	page := pageView{
		Weeks:        curriculum.Weeks,
		WeeklyReward: curriculum.WeeklyReward,
		MaxTotal:     curriculum.MaxTotalReward(),
	}
	if catalog == nil {
		return page
	}
	page.Weeks = catalog.Len()
	for _, e := range catalog.Entries() {
		if n := len(page.Phases); n == 0 || page.Phases[n-1].Name != e.Phase {
			page.Phases = append(page.Phases, phaseView{Name: e.Phase})
		}
		last := &page.Phases[len(page.Phases)-1]
		last.Weeks = append(last.Weeks, weekView{
			Entry:     e,
			Reward:    curriculum.WeekReward(e.Week),
			Milestone: curriculum.IsMilestone(e.Week),
		})
	}
	return page
}
