package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPFetcher_FetchSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(HTTPOptions{MaxRetries: 2})
	body, status, err := f.Fetch(context.Background(), srv.URL, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"ok":true}`, string(body))
}

func TestHTTPFetcher_RetriesOn5xxThenSucceeds(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("done"))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(HTTPOptions{MaxRetries: 5})
	body, status, err := f.Fetch(context.Background(), srv.URL, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "done", string(body))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestHTTPFetcher_ExhaustsRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := NewHTTPFetcher(HTTPOptions{MaxRetries: 2})
	_, _, err := f.Fetch(context.Background(), srv.URL, nil)
	assert.Error(t, err)
}

func TestHTTPFetcher_Post(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("created"))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(HTTPOptions{MaxRetries: 2})
	body, status, err := f.Post(context.Background(), srv.URL, []byte(`{"a":1}`), nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "created", string(body))
}

func TestAdaptiveLimiter_OnSuccessAndOnRateLimit(t *testing.T) {
	a := NewAdaptiveLimiter(10, 10)
	a.OnSuccess()
	assert.InDelta(t, 12, float64(a.Limit()), 0.01)

	a.OnRateLimit()
	assert.InDelta(t, 6, float64(a.Limit()), 0.01)
}

func TestAdaptiveLimiter_BoundsRespected(t *testing.T) {
	a := NewAdaptiveLimiter(10, 10)
	for range 20 {
		a.OnSuccess()
	}
	assert.InDelta(t, 20, float64(a.Limit()), 0.01)

	for range 20 {
		a.OnRateLimit()
	}
	assert.InDelta(t, 2.5, float64(a.Limit()), 0.01)
}

func TestHTTPFetcher_HonorsContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	f := NewHTTPFetcher(HTTPOptions{MaxRetries: 1})
	_, _, err := f.Fetch(ctx, srv.URL, nil)
	assert.Error(t, err)
}
