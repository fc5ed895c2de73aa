package events

import (
	"time"

	"github.com/okian/homework/pkg/logger"
)

// Option applies a configuration option to the KafkaPublisher.
type Option func(*KafkaPublisher)

// WithTimeout bounds a single publish.
func WithTimeout(d time.Duration) Option {
	return func(p *KafkaPublisher) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithLogger sets the publisher logger.
func WithLogger(l logger.Logger) Option {
	return func(p *KafkaPublisher) {
		if l != nil {
			p.log = l
		}
	}
}
