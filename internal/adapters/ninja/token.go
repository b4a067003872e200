package ninja

import (
	"context"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"leadpipe/internal/core/ports"
)

// TokenCache caches the provider token for slightly less than its real
// expiry. Concurrent callers share the cached value; when it lapses,
// exactly one refresh is in flight at a time.
type TokenCache struct {
	tokenURL string
	apiKey   string
	ttl      time.Duration
	http     *http.Client
	now      func() time.Time

	group singleflight.Group

	mu     sync.RWMutex
	token  string
	expiry time.Time
}

// NewTokenCache creates a TokenCache. ttl should sit just under the
// provider's token lifetime (23h against a 24h token in production).
func NewTokenCache(tokenURL, apiKey string, ttl, timeout time.Duration) *TokenCache {
	return &TokenCache{
		tokenURL: tokenURL,
		apiKey:   apiKey,
		ttl:      ttl,
		http:     newHTTPClient(timeout),
		now:      time.Now,
	}
}

var _ ports.TokenSource = (*TokenCache)(nil)

// Token returns a valid token, fetching a fresh one if the cache lapsed.
func (tc *TokenCache) Token(ctx context.Context) (string, error) {
	tc.mu.RLock()
	token, expiry := tc.token, tc.expiry
	tc.mu.RUnlock()
	if token != "" && tc.now().Before(expiry) {
		return token, nil
	}

	value, err, _ := tc.group.Do("token", func() (any, error) {
		// A racing caller may have refreshed while we waited on the flight.
		tc.mu.RLock()
		token, expiry := tc.token, tc.expiry
		tc.mu.RUnlock()
		if token != "" && tc.now().Before(expiry) {
			return token, nil
		}

		fresh, err := fetchToken(ctx, tc.http, tc.tokenURL, tc.apiKey)
		if err != nil {
			return "", err
		}

		tc.mu.Lock()
		tc.token = fresh
		tc.expiry = tc.now().Add(tc.ttl)
		tc.mu.Unlock()
		return fresh, nil
	})
	if err != nil {
		return "", err
	}
	return value.(string), nil
}

// Invalidate drops the cached token, forcing the next caller to refresh.
func (tc *TokenCache) Invalidate() {
	tc.mu.Lock()
	tc.token = ""
	tc.expiry = time.Time{}
	tc.mu.Unlock()
}
