package mpesa

import (
	"context"
	"errors"
	"sync"
	"time"
)

// TokenCache holds one OAuth access token and its expiry. Get never returns a token
// whose expiry (minus skew) has passed; it refreshes instead. Concurrent callers that
// find the token stale wait for a single refresh.
type TokenCache struct {
	mu        sync.Mutex
	token     string
	expiresAt time.Time
	skew      time.Duration
	now       func() time.Time
	fetch     func(ctx context.Context) (string, time.Duration, error)
}

func NewTokenCache(skew time.Duration, fetch func(ctx context.Context) (string, time.Duration, error)) *TokenCache {
	return &TokenCache{skew: skew, now: time.Now, fetch: fetch}
}

// Get returns a valid token, fetching a new one when needed.
func (c *TokenCache) Get(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Before(c.expiresAt.Add(-c.skew)) {
		return c.token, nil
	}
	c.token = ""

	tok, ttl, err := c.fetch(ctx)
	if err != nil {
		return "", err
	}
	if tok == "" || ttl <= 0 {
		return "", errors.New("token endpoint returned an empty or already expired token")
	}
	c.token = tok
	c.expiresAt = c.now().Add(ttl)
	return tok, nil
}

// Invalidate drops the cached token, e.g. after the provider answered 401.
func (c *TokenCache) Invalidate() {
	c.mu.Lock()
	c.token = ""
	c.expiresAt = time.Time{}
	c.mu.Unlock()
}
