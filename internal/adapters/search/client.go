// Package search talks to a Brave-compatible web search API.
package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"scour/internal/ports"
)

const (
	defaultEndpoint = "https://api.search.brave.com/res/v1/web/search"
	defaultTimeout  = 8 * time.Second
	maxCount        = 20
)

type Config struct {
	Endpoint string
	APIKey   string
	Timeout  time.Duration
}

type Client struct {
	cfg        Config
	httpClient *http.Client
}

func NewClient(cfg Config, httpClient *http.Client) *Client {
	cfg.Endpoint = strings.TrimSpace(cfg.Endpoint)
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultEndpoint
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{cfg: cfg, httpClient: httpClient}
}

type searchResponse struct {
	Web struct {
		Results []struct {
			URL         string `json:"url"`
			Title       string `json:"title"`
			Description string `json:"description"`
			Age         string `json:"age"`
			PageAge     string `json:"page_age"`
		} `json:"results"`
	} `json:"web"`
}

// Search issues one bounded search call.
func (c *Client) Search(ctx context.Context, q ports.SearchQuery) ([]ports.SearchResult, error) {
	query := strings.TrimSpace(q.Query)
	if query == "" {
		return nil, errors.New("search: query required")
	}
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return nil, errors.New("search: api key required")
	}
	count := q.Count
	if count <= 0 || count > maxCount {
		count = maxCount
	}
	params := url.Values{}
	params.Set("q", query)
	params.Set("count", strconv.Itoa(count))
	if f := freshnessParam(q.Freshness); f != "" {
		params.Set("freshness", f)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.Endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("search: new request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return nil, fmt.Errorf("search: read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("search: http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var parsed searchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("search: decode: %w", err)
	}
	out := make([]ports.SearchResult, 0, len(parsed.Web.Results))
	for _, r := range parsed.Web.Results {
		age := r.Age
		if age == "" {
			age = r.PageAge
		}
		out = append(out, ports.SearchResult{
			URL:         strings.TrimSpace(r.URL),
			Title:       strings.TrimSpace(r.Title),
			Description: strings.TrimSpace(r.Description),
			Age:         strings.TrimSpace(age),
		})
	}
	return out, nil
}

func freshnessParam(f ports.Freshness) string {
	switch f {
	case ports.FreshnessDay:
		return "pd"
	case ports.FreshnessWeek:
		return "pw"
	case ports.FreshnessMonth:
		return "pm"
	}
	return ""
}
