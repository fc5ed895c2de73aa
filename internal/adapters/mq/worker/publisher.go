package worker

import (
	"context"
	"errors"
	"time"

	"github.com/okian/homework/internal/adapters/mq/queue"
	"github.com/okian/homework/internal/domain/model"
	"github.com/okian/homework/pkg/logger"
)

const closeTimeout = 10 * time.Second

// SinkCloser is a sink that owns a connection.
type SinkCloser interface {
	Sink
	Close() error
}

// Publisher queues ledger events and publishes them from a worker pool.
// Publish never waits on the sink.
type Publisher struct {
	queue  *queue.InMemoryQueue
	pool   *Pool
	sink   SinkCloser
	cancel context.CancelFunc
	log    logger.Logger
}

// NewPublisher starts workers draining a queue of capacity into sink.
// The workers outlive ctx cancellation and stop on Close.
func NewPublisher(ctx context.Context, sink SinkCloser, capacity, workers int, log logger.Logger) *Publisher {
	if log == nil {
		log = logger.Nop()
	}
	q := queue.NewInMemoryQueue(queue.WithCapacity(capacity))
	pool := NewPool(workers, q, sink, WithPoolLogger(log))

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	pool.Start(runCtx)

	return &Publisher{queue: q, pool: pool, sink: sink, cancel: cancel, log: log}
}

// Publish queues ev. It fails only when the queue is full or closed.
func (p *Publisher) Publish(ctx context.Context, ev model.LedgerEvent) error {
	if !p.queue.Enqueue(ctx, ev) {
		if p.queue.IsClosed() {
			return queue.ErrClosed
		}
		p.log.Warn(ctx, "ledger event not queued",
			logger.String("type", ev.Type),
			logger.String("participant", ev.ParticipantID),
			logger.Int("depth", p.queue.Len(ctx)))
		return queue.ErrFull
	}
	return nil
}

// Close drains queued events into the sink and closes it.
func (p *Publisher) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()

	drainErr := p.pool.Shutdown(ctx)
	p.cancel()
	return errors.Join(drainErr, p.sink.Close())
}
