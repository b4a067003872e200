package ninja

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tokenServer(t *testing.T, hits *atomic.Int64, delay time.Duration) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := hits.Add(1)
		if delay > 0 {
			time.Sleep(delay)
		}
		fmt.Fprintf(w, `{"token":"tok-%d"}`, n)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestTokenIsCachedUntilTTL(t *testing.T) {
	var hits atomic.Int64
	srv := tokenServer(t, &hits, 0)
	tc := NewTokenCache(srv.URL, "key", time.Hour, 5*time.Second)

	first, err := tc.Token(context.Background())
	require.NoError(t, err)
	second, err := tc.Token(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "tok-1", first)
	assert.Equal(t, first, second)
	assert.EqualValues(t, 1, hits.Load())
}

func TestTokenRefreshesAfterExpiry(t *testing.T) {
	var hits atomic.Int64
	srv := tokenServer(t, &hits, 0)
	tc := NewTokenCache(srv.URL, "key", time.Hour, 5*time.Second)

	now := time.Now()
	tc.now = func() time.Time { return now }

	first, err := tc.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-1", first)

	now = now.Add(2 * time.Hour)
	refreshed, err := tc.Token(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "tok-2", refreshed)
	assert.EqualValues(t, 2, hits.Load())
}

func TestConcurrentRefreshIsCoalesced(t *testing.T) {
	var hits atomic.Int64
	srv := tokenServer(t, &hits, 50*time.Millisecond)
	tc := NewTokenCache(srv.URL, "key", time.Hour, 5*time.Second)

	var wg sync.WaitGroup
	tokens := make([]string, 10)
	errs := make([]error, 10)
	for i := range tokens {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tokens[i], errs[i] = tc.Token(context.Background())
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, 1, hits.Load(), "concurrent misses share one refresh")
	for i, tok := range tokens {
		require.NoError(t, errs[i])
		assert.Equal(t, "tok-1", tok)
	}
}

func TestInvalidateForcesRefresh(t *testing.T) {
	var hits atomic.Int64
	srv := tokenServer(t, &hits, 0)
	tc := NewTokenCache(srv.URL, "key", time.Hour, 5*time.Second)

	_, err := tc.Token(context.Background())
	require.NoError(t, err)

	tc.Invalidate()
	refreshed, err := tc.Token(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "tok-2", refreshed)
}

func TestTokenFetchErrorsPropagate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	t.Cleanup(srv.Close)
	tc := NewTokenCache(srv.URL, "key", time.Hour, 5*time.Second)

	_, err := tc.Token(context.Background())
	assert.ErrorContains(t, err, "403")
}

func TestTokenRejectsEmptyPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{}`)
	}))
	t.Cleanup(srv.Close)
	tc := NewTokenCache(srv.URL, "key", time.Hour, 5*time.Second)

	_, err := tc.Token(context.Background())
	assert.ErrorContains(t, err, "no token")
}
