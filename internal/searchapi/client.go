// Package searchapi provides a web-search client used by board discovery
// and the indeed_search connector, backed by a rotating pool of API keys.
package searchapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/rotisserie/eris"
)

const defaultBaseURL = "https://serpapi.com/search"

// Result is one organic search result.
type Result struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
}

// Client performs web searches.
type Client interface {
	Search(ctx context.Context, query string) ([]Result, error)
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = u
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	mu      sync.Mutex
	keys    []string
	cursor  int
	baseURL string
	http    *http.Client
}

// NewClient creates a search client backed by a rotating pool of API keys.
// Each call to Search uses the next key in round-robin order.
func NewClient(keys []string, opts ...Option) Client {
	c := &httpClient{
		keys:    keys,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) nextKey() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.keys) == 0 {
		return ""
	}
	key := c.keys[c.cursor%len(c.keys)]
	c.cursor++
	return key
}

type searchResponse struct {
	OrganicResults []Result `json:"organic_results"`
}

func (c *httpClient) Search(ctx context.Context, query string) ([]Result, error) {
	key := c.nextKey()
	if key == "" {
		return nil, eris.New("searchapi: no API keys configured")
	}

	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, eris.Wrap(err, "searchapi: parse base url")
	}
	q := u.Query()
	q.Set("q", query)
	q.Set("api_key", key)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "searchapi: create request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "searchapi: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "searchapi: read response")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("searchapi: unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var result searchResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "searchapi: unmarshal response")
	}

	return result.OrganicResults, nil
}
