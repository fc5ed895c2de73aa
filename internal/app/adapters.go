package service

import (
	"context"
	"fmt"

	"github.com/okian/homework/internal/adapters/events"
	"github.com/okian/homework/internal/adapters/github"
	"github.com/okian/homework/internal/adapters/mq/worker"
	repository "github.com/okian/homework/internal/adapters/repository"
	"github.com/okian/homework/internal/adapters/transfer"
	"github.com/okian/homework/internal/config"
	"github.com/okian/homework/internal/domain/inflight"
	"github.com/okian/homework/internal/domain/rewards"
	"github.com/okian/homework/pkg/logger"
)

func openStore(ctx context.Context, cfg *config.Config) (repository.Store, error) {
	switch cfg.StoreDriver {
	case config.DriverSQLite:
		store, err := repository.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return store, nil
	case config.DriverPostgres:
		store, err := repository.OpenPostgres(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		return store, nil
	default:
		return repository.NewMemoryStore(repository.WithMarkers(inflight.NewMemory())), nil
	}
}

func newTransferrer(cfg *config.Config) (rewards.Transferrer, error) {
	switch cfg.TransferMode {
	case config.TransferHTTP:
		return transfer.NewHTTPClient(cfg.TransferEndpoint,
			transfer.WithAuthToken(cfg.TransferAuthToken),
			transfer.WithTimeout(cfg.TransferTimeout()),
		), nil
	case config.TransferSimulated, "":
		minLatency, maxLatency := cfg.TransferLatency()
		return transfer.NewSimulated(transfer.WithLatencyRange(minLatency, maxLatency)), nil
	default:
		return nil, fmt.Errorf("unknown transfer mode %q", cfg.TransferMode)
	}
}

// newPublisher queues ledger events in front of Kafka.
func newPublisher(ctx context.Context, cfg *config.Config, log logger.Logger) (Publisher, error) {
	if !cfg.KafkaEnabled() {
		return events.Nop{}, nil
	}
	kp, err := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, events.WithLogger(log.Named("kafka")))
	if err != nil {
		return nil, fmt.Errorf("kafka publisher: %w", err)
	}
	return worker.NewPublisher(ctx, kp, cfg.EventQueueCapacity, cfg.EventWorkers, log), nil
}

func newPusher(cfg *config.Config) (Pusher, error) {
	source, err := github.NewAppTokenSource(cfg.GitHubAppID, cfg.GitHubInstallationID,
		[]byte(cfg.GitHubAppPrivateKey),
		github.WithSourceAPIURL(cfg.GitHubAPIURL),
	)
	if err != nil {
		return nil, fmt.Errorf("github app: %w", err)
	}
	tokens := github.NewTokenCache(source)
	return github.NewClient(cfg.GitHubRepoOwner, cfg.GitHubRepoName, tokens,
		github.WithAPIURL(cfg.GitHubAPIURL),
	), nil
}
