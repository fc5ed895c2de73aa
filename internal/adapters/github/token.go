// Package github talks to the GitHub REST API as a GitHub App installation.
package github

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/okian/homework/pkg/metrics"
)

// DefaultRefreshBuffer is how long before expiry a cached token is replaced.
const DefaultRefreshBuffer = 5 * time.Minute

// Errors returned by this package.
var (
	ErrNotConfigured = errors.New("github app not configured")
	ErrTokenRequest  = errors.New("installation token request failed")
	ErrPushFailed    = errors.New("push to repository failed")
)

// Token is an installation access token.
type Token struct {
	Value     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// TokenSource mints a fresh installation token.
type TokenSource interface {
	Token(ctx context.Context) (Token, error)
}

// TokenCache holds one installation token and refreshes it before it expires.
// It is safe for concurrent use; concurrent refreshes are collapsed into one.
type TokenCache struct {
	source TokenSource
	buffer time.Duration
	now    func() time.Time

	mu     sync.Mutex
	cached *Token
}

// NewTokenCache creates a cache in front of source.
func NewTokenCache(source TokenSource, opts ...CacheOption) *TokenCache {
	c := &TokenCache{
		source: source,
		buffer: DefaultRefreshBuffer,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the cached token, refreshing it when it expires within the buffer.
func (c *TokenCache) Get(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fresh() {
		metrics.RecordTokenCacheRefresh("hit")
		return c.cached.Value, nil
	}
	return c.refreshLocked(ctx)
}

// Refresh fetches a new token regardless of the cached one.
func (c *TokenCache) Refresh(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refreshLocked(ctx)
}

// Invalidate drops the cached token.
func (c *TokenCache) Invalidate() {
	c.mu.Lock()
	c.cached = nil
	c.mu.Unlock()
}

func (c *TokenCache) fresh() bool {
	return c.cached != nil && c.cached.ExpiresAt.After(c.now().Add(c.buffer))
}

func (c *TokenCache) refreshLocked(ctx context.Context) (string, error) {
	if c.source == nil {
		return "", ErrNotConfigured
	}
	tok, err := c.source.Token(ctx)
	if err != nil {
		metrics.RecordTokenCacheRefresh("failed")
		return "", err
	}
	c.cached = &tok
	metrics.RecordTokenCacheRefresh("refreshed")
	return tok.Value, nil
}
