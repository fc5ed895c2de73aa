// Package service wires the ledger, matcher, distributor and badge issuer
// behind the dependencies required by the HTTP API and the operator CLI.
package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/okian/homework/internal/adapters/github"
	repository "github.com/okian/homework/internal/adapters/repository"
	"github.com/okian/homework/internal/config"
	"github.com/okian/homework/internal/domain/badge"
	"github.com/okian/homework/internal/domain/curriculum"
	"github.com/okian/homework/internal/domain/dedupe"
	"github.com/okian/homework/internal/domain/model"
	"github.com/okian/homework/internal/domain/rewards"
	"github.com/okian/homework/internal/domain/webhook"
	"github.com/okian/homework/pkg/logger"
	"github.com/okian/homework/pkg/metrics"
)

// Publisher receives ledger events. *worker.Publisher and events.Nop implement it.
type Publisher interface {
	Publish(ctx context.Context, ev model.LedgerEvent) error
	Close() error
}

// Pusher commits deliverables to the homework repository. *github.Client implements it.
type Pusher interface {
	PushFile(ctx context.Context, path string, content []byte, message string) (github.PushResult, error)
}

// Service implements the API dependencies for the homework pipeline.
type Service struct {
	mu sync.RWMutex

	cfg *config.Config

	// Core components
	store       repository.Store
	catalog     *curriculum.Catalog
	transfer    rewards.Transferrer
	publisher   Publisher
	pusher      Pusher
	matcher     *webhook.Matcher
	distributor *rewards.Distributor
	issuer      *badge.Issuer

	// State
	started   bool
	startedAt time.Time
	now       func() time.Time

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithConfig sets the configuration components are built from.
func WithConfig(cfg *config.Config) Option {
	return func(s *Service) {
		if cfg != nil {
			s.cfg = cfg
		}
	}
}

// WithStore uses store instead of opening the configured driver.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		s.store = store
	}
}

// WithCatalog replaces the curriculum otherwise loaded from config.
func WithCatalog(c *curriculum.Catalog) Option {
	return func(s *Service) {
		s.catalog = c
	}
}

// WithTransferrer replaces the configured transfer client.
func WithTransferrer(t rewards.Transferrer) Option {
	return func(s *Service) {
		s.transfer = t
	}
}

// WithPublisher replaces the configured ledger event publisher.
func WithPublisher(p Publisher) Option {
	return func(s *Service) {
		s.publisher = p
	}
}

// WithPusher enables deliverable submission through p.
func WithPusher(p Pusher) Option {
	return func(s *Service) {
		s.pusher = p
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(logger logger.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the time source used for links and ledger records.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New constructs a new Service. Components are built on Start.
func New(opts ...Option) *Service {
	s := &Service{
		cfg: config.New(),
		now: time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start builds every component not supplied through options.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}

	s.logger.Info(ctx, "starting homework service...")

	if s.catalog == nil {
		catalog, err := curriculum.LoadFile(s.cfg.CurriculumPath)
		if err != nil {
			return fmt.Errorf("load curriculum: %w", err)
		}
		s.catalog = catalog
	}

	if s.store == nil {
		store, err := openStore(ctx, s.cfg)
		if err != nil {
			return err
		}
		s.store = store
		s.logger.Info(ctx, "ledger store opened", logger.String("driver", s.cfg.StoreDriver))
	}

	if err := s.buildAdapters(ctx); err != nil {
		_ = s.store.Close()
		s.store = nil
		return err
	}

	matcherOpts := []webhook.Option{
		webhook.WithPathPrefix(s.cfg.ParticipantPathPrefix),
		webhook.WithPublisher(s.publisher),
		webhook.WithClock(s.now),
		webhook.WithLogger(s.logger.Named("webhook")),
	}
	if s.cfg.DeliveryDedupeSize > 0 {
		matcherOpts = append(matcherOpts,
			webhook.WithDeduper(dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.cfg.DeliveryDedupeSize))))
	}
	s.matcher = webhook.NewMatcher(s.cfg.WebhookSecret, s.catalog, s.store, matcherOpts...)
	s.distributor = rewards.NewDistributor(s.catalog, s.store, s.transfer,
		rewards.WithMarkerTTL(s.cfg.MarkerTTL()),
		rewards.WithPublisher(s.publisher),
		rewards.WithClock(s.now),
		rewards.WithLogger(s.logger.Named("rewards")),
	)
	s.issuer = badge.NewIssuer(s.store)

	if s.cfg.WebhookSecret == "" {
		s.logger.Warn(ctx, "webhook secret is empty; every delivery will be rejected")
	}

	s.started = true
	s.startedAt = s.now()
	s.logger.Info(ctx, "homework service started",
		logger.Int("weeks", s.catalog.Len()),
		logger.String("transferMode", s.cfg.TransferMode),
		logger.Bool("submission", s.pusher != nil),
		logger.Bool("events", s.cfg.KafkaEnabled()),
	)

	return nil
}

func (s *Service) buildAdapters(ctx context.Context) error {
	if s.transfer == nil {
		t, err := newTransferrer(s.cfg)
		if err != nil {
			return err
		}
		s.transfer = t
	}
	if s.publisher == nil {
		p, err := newPublisher(ctx, s.cfg, s.logger.Named("events"))
		if err != nil {
			return err
		}
		s.publisher = p
	}
	if s.pusher == nil && s.cfg.GitHubEnabled() {
		p, err := newPusher(s.cfg)
		if err != nil {
			return err
		}
		s.pusher = p
	}
	return nil
}

// Stop closes the publisher and the store.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	ctx := context.Background()
	s.logger.Info(ctx, "stopping homework service...")

	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			s.logger.Warn(ctx, "close publisher", logger.Error(err))
		}
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Warn(ctx, "close store", logger.Error(err))
		}
	}

	s.started = false
	s.logger.Info(ctx, "homework service stopped")
}

// GetStats returns service statistics for monitoring. Once started it also
// reports the leaderboard population and the rewards still pending payout.
func (s *Service) GetStats(ctx context.Context) map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]any{
		"started":        s.started,
		"storeDriver":    s.cfg.StoreDriver,
		"transferMode":   s.cfg.TransferMode,
		"submission":     s.pusher != nil,
		"maxTotalReward": curriculum.MaxTotalReward(),
	}
	if !s.started {
		return stats
	}

	stats["curriculumWeeks"] = s.catalog.Len()
	stats["uptimeSeconds"] = int64(s.now().Sub(s.startedAt).Seconds())

	if count, err := s.store.Count(ctx); err == nil {
		stats["participantsScored"] = count
		metrics.UpdateParticipantsScored(count)
	}
	if pending, err := s.pendingTotals(ctx); err == nil {
		stats["pendingRewards"] = pending
	} else {
		s.logger.Warn(ctx, "pending totals unavailable", logger.Error(err))
	}
	return stats
}

// PendingTotals counts (participant, week) pairs awaiting payout and their
// combined reward.
type PendingTotals struct {
	Entries int   `json:"entries"`
	Amount  int64 `json:"amount"`
}

func (s *Service) pendingTotals(ctx context.Context) (PendingTotals, error) {
	var out PendingTotals
	for _, e := range s.catalog.Entries() {
		ps, err := s.store.PendingParticipants(ctx, e.Week)
		if err != nil {
			return PendingTotals{}, err
		}
		out.Entries += len(ps)
		out.Amount += int64(len(ps)) * curriculum.WeekReward(e.Week)
	}
	return out, nil
}
