// Package queue holds ledger events between the write that produced them and
// the worker that publishes them.
//
// The queue is bounded and never blocks a producer: when it is full the event
// is refused and the caller decides whether that matters.
package queue

import (
	"context"
	"sync"
	"time"

	"github.com/okian/homework/internal/domain/model"
	"github.com/okian/homework/pkg/metrics"
)

const defaultQueueCapacity = 10_000

// Envelope is one queued ledger event and the time it was accepted.
type Envelope struct {
	Event    model.LedgerEvent
	QueuedAt time.Time
}

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds an event. It returns false when the queue is full or closed.
	Enqueue(ctx context.Context, ev model.LedgerEvent) bool

	// Dequeue returns the channel workers read from. It is closed by Close
	// once the buffered events have been drained.
	Dequeue(ctx context.Context) <-chan Envelope

	// Len returns the number of queued events.
	Len(ctx context.Context) int

	// Close stops accepting events.
	Close() error

	// IsClosed returns true if the queue has been closed.
	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	items    chan Envelope
	capacity int
	now      func() time.Time

	mu     sync.RWMutex
	closed bool
}

// NewInMemoryQueue creates a queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{
		capacity: defaultQueueCapacity,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(q)
	}
	q.items = make(chan Envelope, q.capacity)

	metrics.UpdateEventQueueCapacity(q.capacity)
	metrics.UpdateEventQueueDepth(0)
	return q
}

// Enqueue adds an event to the queue.
func (q *InMemoryQueue) Enqueue(ctx context.Context, ev model.LedgerEvent) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordEventEnqueue("closed")
		return false
	}
	if ctx.Err() != nil {
		metrics.RecordEventEnqueue("cancelled")
		return false
	}

	select {
	case q.items <- Envelope{Event: ev, QueuedAt: q.now()}:
		metrics.RecordEventEnqueue("queued")
		metrics.UpdateEventQueueDepth(len(q.items))
		return true
	default:
		metrics.RecordEventEnqueue("full")
		metrics.RecordErrorByComponent("queue", "queue_full")
		return false
	}
}

// Dequeue returns the channel events are delivered on.
func (q *InMemoryQueue) Dequeue(context.Context) <-chan Envelope {
	return q.items
}

// Len returns the current number of queued events.
func (q *InMemoryQueue) Len(context.Context) int {
	size := len(q.items)
	metrics.UpdateEventQueueDepth(size)
	return size
}

// Close stops accepting events. Already queued events stay readable.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	close(q.items)
	q.closed = true
	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
