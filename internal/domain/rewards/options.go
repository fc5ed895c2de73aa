package rewards

import (
	"time"

	"github.com/okian/homework/pkg/logger"
)

// Option applies a configuration option to the Distributor.
type Option func(*Distributor)

// WithMarkerTTL sets how long an in-flight marker lives.
func WithMarkerTTL(ttl time.Duration) Option {
	return func(d *Distributor) {
		if ttl > 0 {
			d.markerTTL = ttl
		}
	}
}

// WithPublisher sets where reward events are sent.
func WithPublisher(p Publisher) Option {
	return func(d *Distributor) {
		d.publisher = p
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(d *Distributor) {
		if now != nil {
			d.now = now
		}
	}
}

// WithOwnerFunc replaces the marker owner token generator.
func WithOwnerFunc(fn func() string) Option {
	return func(d *Distributor) {
		if fn != nil {
			d.newOwner = fn
		}
	}
}

// WithLogger sets the distributor logger.
func WithLogger(l logger.Logger) Option {
	return func(d *Distributor) {
		if l != nil {
			d.log = l
		}
	}
}
