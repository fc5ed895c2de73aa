package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	repository "github.com/okian/homework/internal/adapters/repository"
	"github.com/okian/homework/internal/domain/badge"
	"github.com/okian/homework/internal/domain/curriculum"
	"github.com/okian/homework/internal/domain/model"
	"github.com/okian/homework/internal/domain/rewards"
	"github.com/okian/homework/internal/domain/webhook"
	"github.com/okian/homework/pkg/logger"
	"github.com/okian/homework/pkg/metrics"
)

// HandleDelivery verifies and processes one webhook delivery.
func (s *Service) HandleDelivery(ctx context.Context, delivery, event, signature string, body []byte) (webhook.Result, error) {
	res, err := s.matcher.HandleDelivery(ctx, delivery, event, signature, body)
	if err != nil {
		return res, err
	}
	for _, o := range res.Outcomes {
		if o.Status != webhook.StatusFailed {
			continue
		}
		steps := make([]string, 0, len(o.Failures))
		for _, f := range o.Failures {
			steps = append(steps, f.Step)
		}
		s.logger.Warn(ctx, "match incomplete",
			logger.String("participant", o.Participant),
			logger.Int("week", o.Week),
			logger.String("steps", strings.Join(steps, ",")),
		)
	}
	return res, nil
}

// Claim pays every completed, unrewarded week of participant.
func (s *Service) Claim(ctx context.Context, participant string) (rewards.ClaimResult, error) {
	return s.distributor.Claim(ctx, participant)
}

// Distribute pays one completed week of participant.
func (s *Service) Distribute(ctx context.Context, participant string, week int) (rewards.DistributeResult, error) {
	return s.distributor.Distribute(ctx, participant, week)
}

// Badge renders the milestone badge of participant.
func (s *Service) Badge(ctx context.Context, participant string, milestone int) (badge.Badge, error) {
	return s.issuer.Issue(ctx, participant, milestone)
}

// Catalog returns the curriculum in use.
func (s *Service) Catalog() *curriculum.Catalog {
	return s.catalog
}

// Progress assembles the progress read model of participant.
func (s *Service) Progress(ctx context.Context, participant string) (model.Progress, error) {
	const op = "service.progress"

	p := model.NormalizeParticipant(participant)
	if p == "" {
		return model.Progress{}, model.E(op, model.KindValidation, model.ErrMissingParticipant)
	}

	out := model.Progress{
		ParticipantID: p,
		TotalWeeks:    curriculum.Weeks,
	}

	link, err := s.store.IdentityByParticipant(ctx, p)
	switch {
	case err == nil:
		out.Identity = &model.IdentitySummary{Username: link.ExternalUsername, LinkedAt: link.LinkedAt}
	case !errors.Is(err, repository.ErrNotFound):
		return model.Progress{}, model.E(op, model.KindInternal, err)
	}

	weeks, err := s.store.CompletedWeeks(ctx, p)
	if err != nil {
		return model.Progress{}, model.E(op, model.KindInternal, err)
	}
	completions, err := s.store.Completions(ctx, p)
	if err != nil {
		return model.Progress{}, model.E(op, model.KindInternal, err)
	}
	paid, err := s.store.Rewards(ctx, p)
	if err != nil {
		return model.Progress{}, model.E(op, model.KindInternal, err)
	}

	if weeks == nil {
		weeks = []int{}
	}
	if completions == nil {
		completions = map[int]model.CompletionRecord{}
	}
	if paid == nil {
		paid = map[int]model.RewardRecord{}
	}
	sort.Ints(weeks)
	out.CompletedWeeks = weeks
	out.Completions = completions
	out.Rewards = paid
	out.TotalEarned = curriculum.SumRewards(weeks)
	for _, r := range paid {
		out.TotalDistributed += r.Amount
	}
	for _, w := range weeks {
		if _, ok := paid[w]; !ok {
			out.Pending += curriculum.WeekReward(w)
		}
	}
	return out, nil
}

// PendingParticipants lists participants with week completed and not yet paid.
func (s *Service) PendingParticipants(ctx context.Context, week int) ([]string, error) {
	const op = "service.pending"

	if _, ok := s.catalog.Lookup(week); !ok {
		return nil, model.Ef(op, model.KindValidation, model.ErrUnknownWeek, "week %d", week)
	}
	ps, err := s.store.PendingParticipants(ctx, week)
	if err != nil {
		return nil, model.E(op, model.KindInternal, err)
	}
	return ps, nil
}

// Submit commits content as the week's deliverable under the participant's
// folder in the homework repository.
func (s *Service) Submit(ctx context.Context, participant string, week int, content string) (model.Submission, error) {
	const op = "service.submit"

	if s.pusher == nil {
		return model.Submission{}, model.E(op, model.KindInternal, model.ErrSubmissionDisabled)
	}
	p := model.NormalizeParticipant(participant)
	if p == "" {
		return model.Submission{}, model.E(op, model.KindValidation, model.ErrMissingParticipant)
	}
	entry, ok := s.catalog.Lookup(week)
	if !ok {
		return model.Submission{}, model.Ef(op, model.KindValidation, model.ErrUnknownWeek, "week %d", week)
	}

	link, err := s.store.IdentityByParticipant(ctx, p)
	if errors.Is(err, repository.ErrNotFound) {
		return model.Submission{}, model.Ef(op, model.KindState, model.ErrNotLinked, "participant %s", p)
	}
	if err != nil {
		return model.Submission{}, model.E(op, model.KindInternal, err)
	}

	path := submissionPath(s.cfg.ParticipantPathPrefix, link.ExternalUsername, entry.Deliverable)
	msg := fmt.Sprintf("Week %d: %s (%s)", week, entry.Title, link.ExternalUsername)
	res, err := s.pusher.PushFile(ctx, path, []byte(content), msg)
	if err != nil {
		s.logger.Warn(ctx, "deliverable push failed",
			logger.String("participant", p),
			logger.String("path", path),
			logger.Error(err),
		)
		return model.Submission{}, model.E(op, model.KindUpstream, err)
	}

	s.logger.Info(ctx, "deliverable pushed",
		logger.String("participant", p),
		logger.Int("week", week),
		logger.String("commitRef", res.CommitSHA),
	)
	return model.Submission{Path: path, CommitRef: res.CommitSHA, URL: res.URL}, nil
}

func submissionPath(prefix, username, deliverable string) string {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return prefix + username + "/" + deliverable
}

// LinkIdentity ties participant to an external username, replacing any earlier link.
func (s *Service) LinkIdentity(ctx context.Context, participant, username, token string) (model.IdentityLink, error) {
	const op = "service.link"

	link := model.IdentityLink{
		ParticipantID:    model.NormalizeParticipant(participant),
		ExternalUsername: strings.TrimSpace(username),
		ExternalToken:    token,
		LinkedAt:         s.now().UTC(),
	}
	if link.ParticipantID == "" {
		return model.IdentityLink{}, model.E(op, model.KindValidation, model.ErrMissingParticipant)
	}
	if link.ExternalUsername == "" {
		return model.IdentityLink{}, model.E(op, model.KindValidation, errors.New("username required"))
	}
	if err := s.store.LinkIdentity(ctx, link); err != nil {
		return model.IdentityLink{}, model.E(op, model.KindInternal, err)
	}
	s.logger.Info(ctx, "identity linked",
		logger.String("participant", link.ParticipantID),
		logger.String("username", link.ExternalUsername),
	)
	return link, nil
}

// TopN returns the top N leaderboard entries.
func (s *Service) TopN(ctx context.Context, n int) ([]model.ScoreEntry, error) {
	return s.store.TopN(ctx, n)
}

// Rank returns the leaderboard entry of participant.
func (s *Service) Rank(ctx context.Context, participant string) (model.ScoreEntry, error) {
	entry, err := s.store.Rank(ctx, model.NormalizeParticipant(participant))
	if err != nil {
		return model.ScoreEntry{}, err
	}
	return entry, nil
}

// Unclaimed lists the completed weeks of participant that are not yet paid.
func (s *Service) Unclaimed(ctx context.Context, participant string) ([]int, error) {
	return s.distributor.Unclaimed(ctx, participant)
}

// Participants reports how many participants hold a score.
func (s *Service) Participants(ctx context.Context) (int, error) {
	n, err := s.store.Count(ctx)
	if err != nil {
		return 0, err
	}
	metrics.UpdateParticipantsScored(n)
	return n, nil
}
