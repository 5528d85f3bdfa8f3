// Package tokencache holds a single bearer token for one provider client.
package tokencache

import (
	"context"
	"sync"
	"time"

	domainErrors "github.com/cassiomorais/paygate/internal/domain/errors"
)

// DefaultSafetyMargin is how long before expiry a cached token stops being used.
const DefaultSafetyMargin = 60 * time.Second

// Token is an access token and its absolute expiry.
type Token struct {
	Value     string
	ExpiresAt time.Time
}

// Grant is what a provider's authentication exchange returns. A zero
// Lifetime means the provider did not declare one.
type Grant struct {
	Value    string
	Lifetime time.Duration
}

// FetchFunc performs the provider's authentication exchange.
type FetchFunc func(ctx context.Context) (Grant, error)

// Cache is a single-slot token cache. Refreshes are not serialized: callers
// racing on an expired slot may each fetch, and the last write wins.
type Cache struct {
	fetch           FetchFunc
	defaultLifetime time.Duration
	margin          time.Duration
	now             func() time.Time
	onRefresh       func()

	mu    sync.RWMutex
	token *Token
}

type Option func(*Cache)

// WithSafetyMargin overrides DefaultSafetyMargin.
func WithSafetyMargin(d time.Duration) Option {
	return func(c *Cache) { c.margin = d }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithRefreshHook is called after every successful fetch.
func WithRefreshHook(fn func()) Option {
	return func(c *Cache) { c.onRefresh = fn }
}

// New creates a cache. defaultLifetime applies when the provider omits one.
func New(fetch FetchFunc, defaultLifetime time.Duration, opts ...Option) *Cache {
	c := &Cache{
		fetch:           fetch,
		defaultLifetime: defaultLifetime,
		margin:          DefaultSafetyMargin,
		now:             time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Get returns the cached token while it is more than the safety margin away
// from expiry, and fetches a new one otherwise.
func (c *Cache) Get(ctx context.Context) (string, error) {
	if tok, ok := c.cached(); ok {
		return tok, nil
	}

	grant, err := c.fetch(ctx)
	if err != nil {
		return "", err
	}
	if grant.Value == "" {
		return "", domainErrors.ErrAuthenticationFailed
	}

	lifetime := grant.Lifetime
	if lifetime <= 0 {
		lifetime = c.defaultLifetime
	}

	c.mu.Lock()
	c.token = &Token{Value: grant.Value, ExpiresAt: c.now().Add(lifetime)}
	c.mu.Unlock()

	if c.onRefresh != nil {
		c.onRefresh()
	}
	return grant.Value, nil
}

// Now reads the cache's clock.
func (c *Cache) Now() time.Time { return c.now() }

// Invalidate drops the cached token so the next Get re-authenticates.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.token = nil
	c.mu.Unlock()
}

// Peek returns a copy of the current slot.
func (c *Cache) Peek() (Token, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.token == nil {
		return Token{}, false
	}
	return *c.token, true
}

func (c *Cache) cached() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.token == nil {
		return "", false
	}
	if !c.now().Before(c.token.ExpiresAt.Add(-c.margin)) {
		return "", false
	}
	return c.token.Value, true
}
