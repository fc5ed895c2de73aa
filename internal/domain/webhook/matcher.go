package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/okian/homework/internal/domain/curriculum"
	"github.com/okian/homework/internal/domain/model"
	"github.com/okian/homework/pkg/logger"
	"github.com/okian/homework/pkg/metrics"
)

// PushEventName is the only event type that is processed.
const PushEventName = "push"

// Match steps reported in outcomes.
const (
	StepResolve       = "resolve"
	StepReadSet       = "read_completion_set"
	StepCreate        = "create_completion"
	StepCompletionSet = "add_completion_set"
	StepPending       = "add_pending"
	StepLeaderboard   = "increment_score"
)

// Outcome statuses.
const (
	StatusCreated  = "created"
	StatusRepaired = "repaired"
	StatusExisting = "existing"
	StatusFailed   = "failed"
)

// Ledger is the store surface the matcher writes to.
type Ledger interface {
	ParticipantByUsername(ctx context.Context, username string) (string, error)
	CompletedWeeks(ctx context.Context, participant string) ([]int, error)
	CreateCompletion(ctx context.Context, rec model.CompletionRecord) (bool, error)
	AddCompletedWeek(ctx context.Context, participant string, week int) error
	AddPending(ctx context.Context, week int, participant string) error
	IncrementScore(ctx context.Context, participant string, delta int64) (int64, error)
}

// Publisher receives ledger events after a write succeeds.
type Publisher interface {
	Publish(ctx context.Context, ev model.LedgerEvent) error
}

// Deduper remembers delivery IDs that were already applied.
type Deduper interface {
	SeenAndRecord(ctx context.Context, id string) bool
	Unrecord(ctx context.Context, id string)
}

// StepFailure is one failed write inside a match.
type StepFailure struct {
	Step string
	Err  error
}

// Outcome describes what happened to one (participant, week) match, or to a
// participant as a whole when Week is 0.
type Outcome struct {
	Username    string
	Participant string
	Week        int
	Status      string
	Failures    []StepFailure
}

// Result is returned for every verified delivery.
type Result struct {
	Skipped   bool      `json:"skipped,omitempty"`
	Duplicate bool      `json:"duplicate,omitempty"`
	Matched   int       `json:"matched"`
	Outcomes  []Outcome `json:"-"`
}

// Failed reports whether any write of the delivery failed, including
// follow-up writes a redelivery would repair.
func (r Result) Failed() bool {
	for _, o := range r.Outcomes {
		if o.Status == StatusFailed || len(o.Failures) > 0 {
			return true
		}
	}
	return false
}

// Matcher verifies deliveries and records completed weeks.
type Matcher struct {
	secret    string
	catalog   *curriculum.Catalog
	ledger    Ledger
	publisher Publisher
	dedupe    Deduper
	pattern   *regexp.Regexp
	now       func() time.Time
	log       logger.Logger
}

// NewMatcher creates a matcher over catalog and ledger.
func NewMatcher(secret string, catalog *curriculum.Catalog, ledger Ledger, opts ...Option) *Matcher {
	m := &Matcher{
		secret:  secret,
		catalog: catalog,
		ledger:  ledger,
		pattern: participantPattern(DefaultPathPrefix),
		now:     time.Now,
		log:     logger.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// HandleDelivery verifies the signature, then processes push events.
// Other event types are acknowledged as skipped. A delivery ID already applied
// is acknowledged as a duplicate without touching the ledger.
func (m *Matcher) HandleDelivery(ctx context.Context, delivery, event, signature string, body []byte) (Result, error) {
	const op = "webhook.handle"
	if err := VerifySignature(m.secret, body, signature); err != nil {
		metrics.RecordWebhookDelivery("rejected")
		m.log.Warn(ctx, "webhook signature rejected", logger.String("event", event))
		return Result{}, err
	}
	if event != PushEventName {
		metrics.RecordWebhookDelivery("skipped")
		return Result{Skipped: true}, nil
	}
	var push PushEvent
	if err := json.Unmarshal(body, &push); err != nil {
		metrics.RecordWebhookDelivery("error")
		return Result{}, model.E(op, model.KindValidation, err)
	}
	tracked := delivery != "" && m.dedupe != nil
	if tracked && m.dedupe.SeenAndRecord(ctx, delivery) {
		metrics.RecordWebhookDelivery("duplicate")
		m.log.Debug(ctx, "delivery already applied", logger.String("delivery", delivery))
		return Result{Duplicate: true}, nil
	}
	res := m.Process(ctx, push)
	if tracked && res.Failed() {
		m.dedupe.Unrecord(ctx, delivery)
	}
	if res.Skipped {
		metrics.RecordWebhookDelivery("skipped")
	} else {
		metrics.RecordWebhookDelivery("matched")
	}
	return res, nil
}

// Process matches an already verified push against the curriculum.
// Failures are collected as outcomes and never abort the batch.
func (m *Matcher) Process(ctx context.Context, push PushEvent) Result {
	files := push.ChangedFiles()
	if len(files) == 0 {
		return Result{Skipped: true}
	}
	commitRef := push.CommitRef()

	var res Result
	resolved := make(map[string]struct{})
	for _, username := range push.Candidates(m.pattern, files) {
		participant, err := m.ledger.ParticipantByUsername(ctx, username)
		if errors.Is(err, model.ErrNotFound) {
			m.log.Debug(ctx, "push from unlinked user", logger.String("username", username))
			continue
		}
		if err != nil {
			res.Outcomes = append(res.Outcomes, Outcome{
				Username: username,
				Status:   StatusFailed,
				Failures: []StepFailure{{Step: StepResolve, Err: err}},
			})
			continue
		}
		if _, dup := resolved[participant]; dup {
			continue
		}
		resolved[participant] = struct{}{}
		res.Outcomes = append(res.Outcomes, m.matchParticipant(ctx, username, participant, files, commitRef)...)
	}

	for _, o := range res.Outcomes {
		if o.Status == StatusCreated {
			res.Matched++
		}
		for _, f := range o.Failures {
			metrics.RecordMatchStepFailure(f.Step)
			m.log.Error(ctx, "match step failed",
				logger.String("participant", o.Participant),
				logger.Int("week", o.Week),
				logger.String("step", f.Step),
				logger.Error(f.Err))
		}
	}
	metrics.RecordWeeksMatched(res.Matched)
	m.log.Info(ctx, "push processed",
		logger.String("commit", commitRef),
		logger.Int("files", len(files)),
		logger.Int("matched", res.Matched))
	return res
}

func (m *Matcher) matchParticipant(ctx context.Context, username, participant string, files []string, commitRef string) []Outcome {
	weeks, err := m.ledger.CompletedWeeks(ctx, participant)
	if err != nil {
		return []Outcome{{
			Username:    username,
			Participant: participant,
			Status:      StatusFailed,
			Failures:    []StepFailure{{Step: StepReadSet, Err: err}},
		}}
	}
	done := make(map[int]struct{}, len(weeks))
	for _, w := range weeks {
		done[w] = struct{}{}
	}

	var out []Outcome
	for _, entry := range m.catalog.Entries() {
		if _, ok := done[entry.Week]; ok {
			continue
		}
		if !MatchesDeliverable(files, entry.Deliverable) {
			continue
		}
		out = append(out, m.record(ctx, username, participant, entry.Week, commitRef))
	}
	return out
}

func (m *Matcher) record(ctx context.Context, username, participant string, week int, commitRef string) Outcome {
	o := Outcome{Username: username, Participant: participant, Week: week}
	rec := model.CompletionRecord{
		ParticipantID: participant,
		Week:          week,
		CompletedAt:   m.now().UTC(),
		CommitRef:     commitRef,
		Verified:      true,
	}
	created, err := m.ledger.CreateCompletion(ctx, rec)
	if err != nil {
		o.Status = StatusFailed
		o.Failures = append(o.Failures, StepFailure{Step: StepCreate, Err: err})
		return o
	}

	if !created {
		// record exists but the set missed it; repair membership only
		if err := m.ledger.AddCompletedWeek(ctx, participant, week); err != nil {
			o.Failures = append(o.Failures, StepFailure{Step: StepCompletionSet, Err: err})
			o.Status = StatusFailed
			return o
		}
		o.Status = StatusRepaired
		return o
	}

	o.Status = StatusCreated
	if err := m.ledger.AddCompletedWeek(ctx, participant, week); err != nil {
		o.Failures = append(o.Failures, StepFailure{Step: StepCompletionSet, Err: err})
	}
	if err := m.ledger.AddPending(ctx, week, participant); err != nil {
		o.Failures = append(o.Failures, StepFailure{Step: StepPending, Err: err})
	}
	if _, err := m.ledger.IncrementScore(ctx, participant, 1); err != nil {
		o.Failures = append(o.Failures, StepFailure{Step: StepLeaderboard, Err: err})
	}
	m.publish(ctx, model.LedgerEvent{
		Type:          model.EventWeekCompleted,
		ParticipantID: participant,
		Week:          week,
		Ref:           commitRef,
		OccurredAt:    rec.CompletedAt,
	})
	return o
}

func (m *Matcher) publish(ctx context.Context, ev model.LedgerEvent) {
	if m.publisher == nil {
		return
	}
	if err := m.publisher.Publish(ctx, ev); err != nil {
		m.log.Warn(ctx, "ledger event not published",
			logger.String("type", ev.Type),
			logger.String("participant", ev.ParticipantID),
			logger.Error(err))
	}
}

// MatchesDeliverable reports whether any path ends with or contains the
// deliverable path, so a deliverable nested one directory deeper still counts.
func MatchesDeliverable(files []string, deliverable string) bool {
	if deliverable == "" {
		return false
	}
	for _, f := range files {
		if strings.HasSuffix(f, deliverable) || strings.Contains(f, deliverable) {
			return true
		}
	}
	return false
}
