package search

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scour/internal/ports"
)

func TestSearchSendsFreshnessAndDecodes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "pw", r.URL.Query().Get("freshness"))
		assert.Equal(t, "site:example.com protest", r.URL.Query().Get("q"))
		assert.Equal(t, "k", r.Header.Get("X-Subscription-Token"))
		payload := map[string]any{
			"web": map[string]any{
				"results": []any{
					map[string]any{"url": "https://example.com/a", "title": "A", "description": "d", "age": "2 days ago"},
					map[string]any{"url": "https://example.com/b", "title": "B", "page_age": "2026-03-01T00:00:00"},
				},
			},
		}
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			t.Fatalf("encode response: %v", err)
		}
	}))
	defer server.Close()

	c := NewClient(Config{Endpoint: server.URL, APIKey: "k", Timeout: time.Second}, nil)
	res, err := c.Search(context.Background(), ports.SearchQuery{Query: "site:example.com protest", Freshness: ports.FreshnessWeek, Count: 10})
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, "2 days ago", res[0].Age)
	assert.Equal(t, "2026-03-01T00:00:00", res[1].Age)
}

func TestSearchHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer server.Close()

	c := NewClient(Config{Endpoint: server.URL, APIKey: "k"}, nil)
	_, err := c.Search(context.Background(), ports.SearchQuery{Query: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestSearchRequiresKey(t *testing.T) {
	_, err := NewClient(Config{}, nil).Search(context.Background(), ports.SearchQuery{Query: "x"})
	assert.Error(t, err)
}
