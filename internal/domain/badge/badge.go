// Package badge renders milestone badges for participants who completed every
// week up to the milestone.
package badge

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"slices"
	"text/template"
	"time"

	"github.com/okian/homework/internal/domain/curriculum"
	"github.com/okian/homework/internal/domain/model"
	"github.com/okian/homework/pkg/metrics"
)

// CacheControl is sent with every badge. A badge never changes once issued.
const CacheControl = "public, max-age=31536000, immutable"

// ContentType of a rendered badge.
const ContentType = "image/svg+xml"

// Ledger is the read surface the issuer needs.
type Ledger interface {
	CompletedWeeks(ctx context.Context, participant string) ([]int, error)
	Completion(ctx context.Context, participant string, week int) (model.CompletionRecord, error)
}

// Badge is a rendered milestone badge.
type Badge struct {
	Milestone   int
	Participant string
	CompletedAt time.Time
	SVG         []byte
	ETag        string
}

type style struct {
	Title    string
	Subtitle string
	Color    string
	Icon     string
}

var styles = map[int]style{
	8:  {"FOUNDATIONS", "Dev Foundations Complete", "#06b6d4", "M12 2L2 7l10 5 10-5-10-5zM2 17l10 5 10-5M2 12l10 5 10-5"},
	20: {"WEB3 BUILDER", "Web3 & Blockchain Complete", "#8b5cf6", "M13 10V3L4 14h7v7l9-11h-7z"},
	36: {"FULL STACK", "Full-Stack Dev Complete", "#f59e0b", "M12 2l3.09 6.26L22 9.27l-5 4.87 1.18 6.88L12 17.77l-6.18 3.25L7 14.14 2 9.27l6.91-1.01L12 2z"},
	52: {"GRADUATE", "Programme Complete", "#22c55e", "M22 11.08V12a10 10 0 11-5.93-9.14M22 4L12 14.01l-3-3"},
}

// Issuer checks eligibility and renders badges.
type Issuer struct {
	ledger  Ledger
	brand   string
	tagline string
}

// NewIssuer creates an issuer reading from ledger.
func NewIssuer(ledger Ledger, opts ...Option) *Issuer {
	i := &Issuer{ledger: ledger, brand: "ACCELERATOR", tagline: "homework programme"}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Issue renders the badge for milestone if every week 1..milestone is completed.
func (i *Issuer) Issue(ctx context.Context, participant string, milestone int) (Badge, error) {
	const op = "badge.issue"
	p := model.NormalizeParticipant(participant)
	if p == "" {
		return Badge{}, model.E(op, model.KindValidation, model.ErrMissingParticipant)
	}
	if !curriculum.IsMilestone(milestone) {
		return Badge{}, model.Ef(op, model.KindValidation, model.ErrNotMilestone, "week %d", milestone)
	}

	weeks, err := i.ledger.CompletedWeeks(ctx, p)
	if err != nil {
		return Badge{}, model.E(op, model.KindInternal, err)
	}
	if missing := FirstMissing(weeks, milestone); missing > 0 {
		return Badge{}, model.Ef(op, model.KindState, model.ErrMilestoneIncomplete, "week %d not completed", missing)
	}

	rec, err := i.ledger.Completion(ctx, p, milestone)
	if err != nil {
		return Badge{}, model.E(op, model.KindInternal, fmt.Errorf("completion record for week %d: %w", milestone, err))
	}

	svg, err := i.Render(milestone, p, rec.CompletedAt)
	if err != nil {
		return Badge{}, model.E(op, model.KindInternal, err)
	}
	sum := sha256.Sum256(svg)
	metrics.RecordBadgeIssued(milestone)
	return Badge{
		Milestone:   milestone,
		Participant: p,
		CompletedAt: rec.CompletedAt,
		SVG:         svg,
		ETag:        `"` + hex.EncodeToString(sum[:16]) + `"`,
	}, nil
}

// FirstMissing returns the lowest week in 1..upTo absent from weeks, or 0.
func FirstMissing(weeks []int, upTo int) int {
	for w := 1; w <= upTo; w++ {
		if !slices.Contains(weeks, w) {
			return w
		}
	}
	return 0
}

// Render produces the SVG for (milestone, participant, completedAt). Same input, same bytes.
func (i *Issuer) Render(milestone int, participant string, completedAt time.Time) ([]byte, error) {
	st, ok := styles[milestone]
	if !ok {
		return nil, model.ErrNotMilestone
	}
	data := struct {
		Title    string
		Subtitle string
		Color    string
		Icon     string
		Week     int
		Brand    string
		Tagline  string
		Address  string
		Date     string
	}{
		Title:    st.Title,
		Subtitle: st.Subtitle,
		Color:    st.Color,
		Icon:     st.Icon,
		Week:     milestone,
		Brand:    i.brand,
		Tagline:  i.tagline,
		Address:  ShortAddress(participant),
		Date:     completedAt.UTC().Format("Jan 2, 2006"),
	}
	var buf bytes.Buffer
	if err := svgTemplate.Execute(&buf, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ShortAddress keeps the first six and last four characters of long addresses.
func ShortAddress(addr string) string {
	if len(addr) <= 10 {
		return addr
	}
	return addr[:6] + "..." + addr[len(addr)-4:]
}

var svgTemplate = template.Must(template.New("badge").Parse(`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 400 500" width="400" height="500">
  <defs>
    <linearGradient id="bg" x1="0" y1="0" x2="1" y2="1">
      <stop offset="0%" stop-color="#060608"/>
      <stop offset="100%" stop-color="#0a0a12"/>
    </linearGradient>
    <filter id="glow">
      <feGaussianBlur stdDeviation="8" result="blur"/>
      <feMerge><feMergeNode in="blur"/><feMergeNode in="SourceGraphic"/></feMerge>
    </filter>
  </defs>
  <rect width="400" height="500" rx="20" fill="url(#bg)"/>
  <rect width="400" height="500" rx="20" fill="none" stroke="{{.Color}}22" stroke-width="1"/>
  <circle cx="200" cy="180" r="60" fill="none" stroke="{{.Color}}" stroke-width="1.5" opacity="0.3" filter="url(#glow)"/>
  <circle cx="200" cy="180" r="45" fill="{{.Color}}10" stroke="{{.Color}}44" stroke-width="1"/>
  <g transform="translate(188, 168)">
    <path d="{{.Icon}}" fill="none" stroke="{{.Color}}" stroke-width="2" stroke-linecap="round" stroke-linejoin="round"/>
  </g>
  <text x="200" y="270" text-anchor="middle" font-family="monospace" font-size="12" fill="#52525b" letter-spacing="0.15em">WEEK {{.Week}}</text>
  <text x="200" y="305" text-anchor="middle" font-family="sans-serif" font-weight="800" font-size="28" fill="{{.Color}}" letter-spacing="0.08em">{{.Title}}</text>
  <text x="200" y="335" text-anchor="middle" font-family="sans-serif" font-size="12" fill="#71717a">{{html .Subtitle}}</text>
  <line x1="100" y1="370" x2="300" y2="370" stroke="#27272a" stroke-width="1"/>
  <text x="200" y="405" text-anchor="middle" font-family="sans-serif" font-weight="700" font-size="14" fill="#06b6d4" letter-spacing="0.2em">{{html .Brand}}</text>
  <text x="200" y="425" text-anchor="middle" font-family="sans-serif" font-size="10" fill="#3f3f46" letter-spacing="0.1em">{{html .Tagline}}</text>
  <text x="200" y="460" text-anchor="middle" font-family="monospace" font-size="11" fill="#3f3f46">{{html .Address}}</text>
  <text x="200" y="480" text-anchor="middle" font-family="monospace" font-size="10" fill="#27272a">{{.Date}}</text>
</svg>
`))
