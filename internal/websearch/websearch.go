// Package websearch implements the external web-search collaborator used
// by the self-learning loop. The client speaks the SearxNG JSON API via
// plain HTTP and throttles itself with a token bucket so a burst of
// low-confidence queries cannot hammer the search instance.
package websearch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"
)

// defaultRateLimit is the sustained search request rate (requests/second).
const defaultRateLimit = 1

// defaultRateBurst allows short spikes without immediate throttling.
const defaultRateBurst = 3

// Result is one web search hit.
type Result struct {
	// Title is the page title.
	Title string
	// Snippet is the search engine's content excerpt.
	Snippet string
	// URL is the page address.
	URL string
}

// Searcher is the web-search collaborator contract.
// Implementations must be safe to call from multiple goroutines.
type Searcher interface {
	// Search returns up to maxResults hits for the query. An empty result
	// slice with a nil error means the search ran but found nothing.
	Search(ctx context.Context, query string, maxResults int) ([]Result, error)
}

// SearxConfig holds the settings for constructing a SearxClient.
type SearxConfig struct {
	// BaseURL is the SearxNG instance base URL (e.g. "http://localhost:8888").
	BaseURL string
	// RateLimit is the sustained request rate per second (default 1).
	RateLimit float64
	// RateBurst is the maximum burst size (default 3).
	RateBurst int
}

// SearxClient implements Searcher against a SearxNG instance.
type SearxClient struct {
	// baseURL is the instance base URL.
	baseURL string
	// limiter throttles outbound search requests.
	limiter *rate.Limiter
	// client is the shared HTTP client with a sensible timeout.
	client *http.Client
}

// NewSearxClient constructs a SearxClient from the given config.
func NewSearxClient(cfg *SearxConfig) (*SearxClient, error) {
	if cfg == nil || cfg.BaseURL == "" {
		return nil, fmt.Errorf("websearch: base URL is required")
	}
	rps := cfg.RateLimit
	if rps <= 0 {
		rps = defaultRateLimit
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = defaultRateBurst
	}
	return &SearxClient{
		baseURL: cfg.BaseURL,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		client:  &http.Client{Timeout: 15 * time.Second},
	}, nil
}

// searxResponse is the JSON body returned by the SearxNG search endpoint.
type searxResponse struct {
	Results []struct {
		Title   string `json:"title"`
		Content string `json:"content"`
		URL     string `json:"url"`
	} `json:"results"`
}

// Search queries the SearxNG instance and returns up to maxResults hits.
func (c *SearxClient) Search(ctx context.Context, query string, maxResults int) ([]Result, error) {
	if maxResults <= 0 {
		maxResults = 5
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("websearch: rate limit wait: %w", err)
	}

	u := fmt.Sprintf("%s/search?q=%s&format=json", c.baseURL, url.QueryEscape(query))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("websearch: create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("websearch: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("websearch: HTTP %d", resp.StatusCode)
	}

	var body searxResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("websearch: decode response: %w", err)
	}

	results := make([]Result, 0, maxResults)
	for _, r := range body.Results {
		if r.Content == "" {
			continue
		}
		results = append(results, Result{Title: r.Title, Snippet: r.Content, URL: r.URL})
		if len(results) == maxResults {
			break
		}
	}
	return results, nil
}
