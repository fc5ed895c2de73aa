package replay

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/okian/homework/internal/domain/curriculum"
	"github.com/okian/homework/internal/domain/model"
	"github.com/okian/homework/pkg/logger"
)

// verifyProgress checks every participant reports exactly the replayed weeks
// and the matching reward total.
func (r *Runner) verifyProgress(ctx context.Context, participants []Participant, stats *Stats) error {
	var (
		mu       sync.Mutex
		problems []string
	)
	r.each(ctx, len(participants), func(i int) {
		p := participants[i]
		got, err := r.client.Progress(ctx, p.Address)
		var problem string
		switch {
		case err != nil:
			problem = fmt.Sprintf("%s: %v", p.Username, err)
		case len(got.CompletedWeeks) != p.Weeks:
			problem = fmt.Sprintf("%s: %d weeks completed, want %d", p.Username, len(got.CompletedWeeks), p.Weeks)
		case got.TotalEarned != expectedEarned(p.Weeks):
			problem = fmt.Sprintf("%s: earned %d, want %d", p.Username, got.TotalEarned, expectedEarned(p.Weeks))
		}
		mu.Lock()
		defer mu.Unlock()
		if problem != "" {
			problems = append(problems, problem)
			return
		}
		stats.ProgressVerified++
	})
	if len(problems) > 0 {
		sort.Strings(problems)
		for _, p := range problems {
			r.log.Error(ctx, "progress mismatch", logger.String("detail", p))
		}
		return fmt.Errorf("%w: %d participants with wrong progress", ErrVerification, len(problems))
	}
	r.log.Info(ctx, "progress verified", logger.Int("participants", stats.ProgressVerified))
	return nil
}

func expectedEarned(weeks int) int64 {
	ws := make([]int, weeks)
	for i := range ws {
		ws[i] = i + 1
	}
	return curriculum.SumRewards(ws)
}

// verifyLeaderboard checks the top entries are ordered, ranked densely and
// led by the participant with the most weeks.
func (r *Runner) verifyLeaderboard(ctx context.Context, participants []Participant, stats *Stats) error {
	top, err := r.client.Leaderboard(ctx, r.cfg.TopN)
	if err != nil {
		return fmt.Errorf("leaderboard retrieval failed: %w", err)
	}
	stats.LeaderboardEntries = len(top)
	if len(top) == 0 {
		return fmt.Errorf("%w: empty leaderboard", ErrVerification)
	}

	best := 0
	for _, p := range participants {
		if p.Weeks > best {
			best = p.Weeks
		}
	}
	if top[0].Score < int64(best) {
		return fmt.Errorf("%w: top score %d below best replayed %d", ErrVerification, top[0].Score, best)
	}
	if top[0].Rank != 1 {
		return fmt.Errorf("%w: first entry has rank %d", ErrVerification, top[0].Rank)
	}
	for i := 1; i < len(top); i++ {
		prev, cur := top[i-1], top[i]
		if cur.Score > prev.Score {
			return fmt.Errorf("%w: entry %d scores above entry %d", ErrVerification, i, i-1)
		}
		if cur.Score == prev.Score && cur.Rank != prev.Rank {
			return fmt.Errorf("%w: tied entries %d and %d ranked differently", ErrVerification, i-1, i)
		}
		if cur.Score < prev.Score && cur.Rank != prev.Rank+1 {
			return fmt.Errorf("%w: rank gap after entry %d", ErrVerification, i-1)
		}
	}
	r.log.Info(ctx, "leaderboard verified",
		logger.Int("entries", len(top)),
		logger.String("leader", model.NormalizeParticipant(top[0].ParticipantID)),
		logger.Int64("score", top[0].Score))
	return nil
}

// verifyRedelivery sends the first participant's push again, once under its
// original delivery ID and once under a fresh one, and expects no new weeks.
func (r *Runner) verifyRedelivery(ctx context.Context, participants []Participant) error {
	if len(participants) == 0 {
		return nil
	}
	p := participants[0]
	for _, id := range []string{p.DeliveryID, uuid.NewString()} {
		res, err := r.client.Deliver(ctx, id, p.Body)
		if err != nil {
			return fmt.Errorf("redelivery failed: %w", err)
		}
		if res.Matched != 0 {
			return fmt.Errorf("%w: redelivery %s matched %d weeks", ErrVerification, id, res.Matched)
		}
		if id != p.DeliveryID && res.Duplicate {
			return fmt.Errorf("%w: fresh delivery %s reported as duplicate", ErrVerification, id)
		}
	}
	r.log.Info(ctx, "redelivery left the ledger unchanged", logger.String("username", p.Username))
	return nil
}
