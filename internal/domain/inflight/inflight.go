// Package inflight tracks short-lived, owner-tokened markers that serialize
// work on a single key across concurrent callers.
package inflight

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Markers is a set of expiring, owner-held keys.
type Markers interface {
	// TryAcquire sets key to owner if the key is free or its previous marker expired.
	// Returns true when the caller now holds the marker.
	TryAcquire(ctx context.Context, key, owner string, ttl time.Duration) bool

	// Release removes key only if owner still holds it.
	// Returns true when a marker was removed.
	Release(ctx context.Context, key, owner string) bool

	Size() int64
}

type marker struct {
	owner   string
	expires time.Time
}

type memoryMarkers struct {
	mu         sync.Mutex
	held       map[string]marker
	now        func() time.Time
	sweepEvery int
	acquires   int
	size       atomic.Int64
}

// NewMemory creates an in-process marker set.
func NewMemory(opts ...Option) Markers {
	m := &memoryMarkers{
		held:       make(map[string]marker),
		now:        time.Now,
		sweepEvery: 1024,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *memoryMarkers) TryAcquire(_ context.Context, key, owner string, ttl time.Duration) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.acquires++
	if m.sweepEvery > 0 && m.acquires%m.sweepEvery == 0 {
		m.sweepLocked(now)
	}

	if cur, ok := m.held[key]; ok {
		if now.Before(cur.expires) {
			return false
		}
		// expired marker is taken over
		m.held[key] = marker{owner: owner, expires: now.Add(ttl)}
		return true
	}
	m.held[key] = marker{owner: owner, expires: now.Add(ttl)}
	m.size.Add(1)
	return true
}

func (m *memoryMarkers) Release(_ context.Context, key, owner string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.held[key]
	if !ok || cur.owner != owner {
		return false
	}
	delete(m.held, key)
	m.size.Add(-1)
	return true
}

func (m *memoryMarkers) Size() int64 {
	return m.size.Load()
}

func (m *memoryMarkers) sweepLocked(now time.Time) {
	for k, v := range m.held {
		if !now.Before(v.expires) {
			delete(m.held, k)
			m.size.Add(-1)
		}
	}
}
