package replay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/homework/internal/domain/curriculum"
	"github.com/okian/homework/pkg/logger"
)

// ErrVerification is returned when the service state does not match what was replayed.
var ErrVerification = errors.New("replay verification failed")

// Runner replays synthetic pushes against a service.
type Runner struct {
	cfg     *Config
	client  *Client
	catalog *curriculum.Catalog
	log     logger.Logger
}

// NewRunner creates a runner. catalog must match the service's curriculum.
func NewRunner(cfg *Config, client *Client, catalog *curriculum.Catalog) *Runner {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	return &Runner{cfg: cfg, client: client, catalog: catalog, log: logger.Named("replay")}
}

// Run links participants, delivers their pushes and verifies progress and leaderboard.
func (r *Runner) Run(ctx context.Context) (*Stats, error) {
	stats := &Stats{StartTime: time.Now()}

	r.log.Info(ctx, "starting push replay",
		logger.String("baseURL", r.cfg.BaseURL),
		logger.Int("participants", r.cfg.Participants),
		logger.Int("workers", r.cfg.Workers),
		logger.Duration("timeout", r.cfg.Timeout))

	if err := r.client.Health(ctx); err != nil {
		return stats, fmt.Errorf("service health check failed: %w", err)
	}

	participants, err := Generate(r.cfg, r.catalog)
	if err != nil {
		return stats, fmt.Errorf("generate participants: %w", err)
	}

	if err := r.link(ctx, participants, stats); err != nil {
		return stats, err
	}
	r.deliver(ctx, participants, stats)
	if stats.DeliveriesFailed > 0 {
		return stats, fmt.Errorf("%w: %d deliveries failed", ErrVerification, stats.DeliveriesFailed)
	}

	if err := r.verifyProgress(ctx, participants, stats); err != nil {
		return stats, err
	}
	if err := r.verifyLeaderboard(ctx, participants, stats); err != nil {
		return stats, err
	}
	if err := r.verifyRedelivery(ctx, participants); err != nil {
		return stats, err
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	r.displayFinalStats(ctx, stats)
	return stats, nil
}

func (r *Runner) link(ctx context.Context, participants []Participant, stats *Stats) error {
	var failed atomic.Int64
	r.each(ctx, len(participants), func(i int) {
		if err := r.client.Link(ctx, participants[i]); err != nil {
			failed.Add(1)
			r.log.Warn(ctx, "link failed", logger.String("username", participants[i].Username), logger.Error(err))
		}
	})
	if n := failed.Load(); n > 0 {
		return fmt.Errorf("%w: %d links failed", ErrVerification, n)
	}
	stats.ParticipantsLinked = len(participants)
	return nil
}

func (r *Runner) deliver(ctx context.Context, participants []Participant, stats *Stats) {
	var delivered, failed, matched atomic.Int64
	r.each(ctx, len(participants), func(i int) {
		res, err := r.client.Deliver(ctx, participants[i].DeliveryID, participants[i].Body)
		delivered.Add(1)
		if err != nil {
			failed.Add(1)
			r.log.Warn(ctx, "delivery failed", logger.String("username", participants[i].Username), logger.Error(err))
			return
		}
		matched.Add(int64(res.Matched))
		if r.cfg.Verbose {
			r.log.Debug(ctx, "delivered", logger.String("username", participants[i].Username), logger.Int("matched", res.Matched))
		}
	})
	stats.Deliveries = int(delivered.Load())
	stats.DeliveriesFailed = int(failed.Load())
	stats.WeeksMatched = int(matched.Load())
}

// each runs fn for indices [0, n) on the configured number of workers.
func (r *Runner) each(ctx context.Context, n int, fn func(i int)) {
	jobs := make(chan int, r.cfg.Workers*2)
	var wg sync.WaitGroup
	for w := 0; w < r.cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				fn(i)
			}
		}()
	}
	for i := 0; i < n; i++ {
		select {
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()
}

func (r *Runner) displayFinalStats(ctx context.Context, stats *Stats) {
	var perSecond float64
	if stats.Duration > 0 {
		perSecond = float64(stats.Deliveries) / stats.Duration.Seconds()
	}
	r.log.Info(ctx, "final statistics",
		logger.Int("participantsLinked", stats.ParticipantsLinked),
		logger.Int("deliveries", stats.Deliveries),
		logger.Int("deliveriesFailed", stats.DeliveriesFailed),
		logger.Int("weeksMatched", stats.WeeksMatched),
		logger.Int("progressVerified", stats.ProgressVerified),
		logger.Int("leaderboardEntries", stats.LeaderboardEntries),
		logger.Duration("duration", stats.Duration),
		logger.Float64("deliveriesPerSecond", perSecond))
}
