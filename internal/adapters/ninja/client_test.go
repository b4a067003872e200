package ninja

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadpipe/internal/core/domain"
)

func TestVerifyDecodesVerdict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "ada@x.com", r.URL.Query().Get("email"))
		assert.Equal(t, "tok", r.URL.Query().Get("token"))
		fmt.Fprint(w, `{"code":"ok","message":"Accepted Email"}`)
	}))
	t.Cleanup(srv.Close)

	c := NewClient(srv.URL)
	verdict, err := c.Verify(context.Background(), "ada@x.com", "tok")
	require.NoError(t, err)

	assert.Equal(t, "ok", verdict.Code)
	assert.Equal(t, "Accepted Email", verdict.Message)
}

func TestVerifyEscapesQueryValues(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "a+b@x.com", r.URL.Query().Get("email"))
		fmt.Fprint(w, `{"code":"ok"}`)
	}))
	t.Cleanup(srv.Close)

	c := NewClient(srv.URL)
	_, err := c.Verify(context.Background(), "a+b@x.com", "tok")
	require.NoError(t, err)
}

func TestVerifyMaps429ToOverload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	t.Cleanup(srv.Close)

	c := NewClient(srv.URL)
	_, err := c.Verify(context.Background(), "ada@x.com", "tok")

	require.Error(t, err)
	assert.True(t, domain.IsOverloaded(err))
}

func TestVerifyReportsOtherHTTPErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "token expired", http.StatusUnauthorized)
	}))
	t.Cleanup(srv.Close)

	c := NewClient(srv.URL)
	_, err := c.Verify(context.Background(), "ada@x.com", "tok")

	require.Error(t, err)
	assert.False(t, domain.IsOverloaded(err))
	assert.ErrorContains(t, err, "401")
}

func TestVerifyHonorsContextCancellation(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(block) })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewClient(srv.URL)
	_, err := c.Verify(ctx, "ada@x.com", "tok")
	require.Error(t, err)
}
