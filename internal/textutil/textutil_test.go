package textutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseRecencyHint(t *testing.T) {
	now := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)
	cases := []struct {
		hint string
		want time.Time
		ok   bool
	}{
		{"3 hours ago", now.Add(-3 * time.Hour), true},
		{"2 days ago", now.Add(-48 * time.Hour), true},
		{"a week ago", now.Add(-7 * 24 * time.Hour), true},
		{"yesterday", now.Add(-24 * time.Hour), true},
		{"2026-03-01", time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), true},
		{"2026-03-01T08:30:00Z", time.Date(2026, 3, 1, 8, 30, 0, 0, time.UTC), true},
		{"Mar 2, 2026", time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), true},
		{"sometime", time.Time{}, false},
		{"", time.Time{}, false},
	}
	for _, tc := range cases {
		got, ok := ParseRecencyHint(tc.hint, now)
		assert.Equal(t, tc.ok, ok, tc.hint)
		if tc.ok {
			assert.True(t, tc.want.Equal(got), "%s: got %s", tc.hint, got)
		}
	}
}

func TestDateFromURL(t *testing.T) {
	got, ok := DateFromURL("https://news.example.com/world/2026/02/14/storm-hits-coast")
	assert.True(t, ok)
	assert.Equal(t, time.Date(2026, 2, 14, 0, 0, 0, 0, time.UTC), got)

	got, ok = DateFromURL("https://example.org/article-20251203-protest.html")
	assert.True(t, ok)
	assert.Equal(t, time.Date(2025, 12, 3, 0, 0, 0, 0, time.UTC), got)

	_, ok = DateFromURL("https://example.org/2026/02/31/impossible")
	assert.False(t, ok)
	_, ok = DateFromURL("https://example.org/story/123456")
	assert.False(t, ok)
}

func TestNormalizeTitle(t *testing.T) {
	assert.Equal(t, "flood in jakarta", NormalizeTitle("Flooding in Jakarta"))
	assert.Equal(t, "flood in jakarta", NormalizeTitle("Flood in Jakarta!"))
	assert.Equal(t, "protest in sao paulo", NormalizeTitle("Protests in São Paulo"))
	assert.True(t, ContainsPhrase("major flood in jakarta", "flood in jakarta"))
	assert.False(t, ContainsPhrase("flooding", ""))
}
