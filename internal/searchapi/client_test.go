package searchapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_Search(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "testkey", r.URL.Query().Get("api_key"))
		assert.Equal(t, "acme careers", r.URL.Query().Get("q"))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"organic_results":[{"title":"Acme Careers","link":"https://boards.greenhouse.io/acme","snippet":"Jobs at Acme"}]}`))
	}))
	defer srv.Close()

	c := NewClient([]string{"testkey"}, WithBaseURL(srv.URL))
	results, err := c.Search(context.Background(), "acme careers")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Acme Careers", results[0].Title)
	assert.Equal(t, "https://boards.greenhouse.io/acme", results[0].Link)
}

func TestClient_RotatesKeys(t *testing.T) {
	var seenKeys []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenKeys = append(seenKeys, r.URL.Query().Get("api_key"))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"organic_results":[]}`))
	}))
	defer srv.Close()

	c := NewClient([]string{"k1", "k2", "k3"}, WithBaseURL(srv.URL))
	ctx := context.Background()
	for range 4 {
		_, err := c.Search(ctx, "q")
		require.NoError(t, err)
	}

	assert.Equal(t, []string{"k1", "k2", "k3", "k1"}, seenKeys)
}

func TestClient_NoKeysConfigured(t *testing.T) {
	c := NewClient(nil)
	_, err := c.Search(context.Background(), "q")
	assert.Error(t, err)
}

func TestClient_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte("quota exceeded"))
	}))
	defer srv.Close()

	c := NewClient([]string{"k1"}, WithBaseURL(srv.URL))
	_, err := c.Search(context.Background(), "q")
	assert.Error(t, err)
}
