package repository

import (
	"github.com/okian/homework/internal/domain/inflight"
)

// MemoryOption applies a configuration option to the MemoryStore.
type MemoryOption func(*MemoryStore)

// WithMarkers replaces the in-process marker set.
func WithMarkers(m inflight.Markers) MemoryOption {
	return func(s *MemoryStore) {
		if m != nil {
			s.markers = m
		}
	}
}
