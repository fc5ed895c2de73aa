package webhook

import (
	"strings"
	"time"

	"github.com/okian/homework/pkg/logger"
)

// DefaultPathPrefix is where participant folders live in the homework repository.
const DefaultPathPrefix = "participants/"

// Option applies a configuration option to the Matcher.
type Option func(*Matcher)

// WithPathPrefix sets the folder prefix usernames are read from.
func WithPathPrefix(prefix string) Option {
	return func(m *Matcher) {
		if prefix == "" {
			return
		}
		if !strings.HasSuffix(prefix, "/") {
			prefix += "/"
		}
		m.pattern = participantPattern(prefix)
	}
}

// WithPublisher sets where ledger events are sent.
func WithPublisher(p Publisher) Option {
	return func(m *Matcher) {
		m.publisher = p
	}
}

// WithDeduper skips deliveries whose ID was already applied.
func WithDeduper(d Deduper) Option {
	return func(m *Matcher) {
		m.dedupe = d
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Matcher) {
		if now != nil {
			m.now = now
		}
	}
}

// WithLogger sets the matcher logger.
func WithLogger(l logger.Logger) Option {
	return func(m *Matcher) {
		if l != nil {
			m.log = l
		}
	}
}
