package github

import (
	"net/http"
	"strings"
	"time"
)

// CacheOption applies a configuration option to TokenCache.
type CacheOption func(*TokenCache)

// WithRefreshBuffer sets how early before expiry the token is replaced.
func WithRefreshBuffer(d time.Duration) CacheOption {
	return func(c *TokenCache) {
		if d >= 0 {
			c.buffer = d
		}
	}
}

// WithCacheClock replaces time.Now.
func WithCacheClock(now func() time.Time) CacheOption {
	return func(c *TokenCache) {
		if now != nil {
			c.now = now
		}
	}
}

// SourceOption applies a configuration option to AppTokenSource.
type SourceOption func(*AppTokenSource)

// WithSourceAPIURL points the token source at another API host.
func WithSourceAPIURL(u string) SourceOption {
	return func(s *AppTokenSource) {
		if u != "" {
			s.apiURL = strings.TrimRight(u, "/")
		}
	}
}

// WithSourceHTTPClient replaces the token source http.Client.
func WithSourceHTTPClient(hc *http.Client) SourceOption {
	return func(s *AppTokenSource) {
		if hc != nil {
			s.client = hc
		}
	}
}

// WithSourceClock replaces time.Now for JWT timestamps.
func WithSourceClock(now func() time.Time) SourceOption {
	return func(s *AppTokenSource) {
		if now != nil {
			s.now = now
		}
	}
}

// ClientOption applies a configuration option to Client.
type ClientOption func(*Client)

// WithAPIURL points the client at another API host.
func WithAPIURL(u string) ClientOption {
	return func(c *Client) {
		if u != "" {
			c.apiURL = strings.TrimRight(u, "/")
		}
	}
}

// WithHTTPClient replaces the client http.Client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.client = hc
		}
	}
}
