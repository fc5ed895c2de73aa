package inflight

import "time"

// Option configures the in-memory marker set.
type Option func(*memoryMarkers)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(m *memoryMarkers) {
		if now != nil {
			m.now = now
		}
	}
}

// WithSweepEvery sets how many acquisitions pass between sweeps of expired markers.
// Zero or negative disables sweeping; expired markers are still taken over on acquire.
func WithSweepEvery(n int) Option {
	return func(m *memoryMarkers) {
		m.sweepEvery = n
	}
}
