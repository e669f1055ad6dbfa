package fetch

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"scour/internal/domain"
	"scour/internal/textutil"
)

const feedDescriptionLimit = 600

// ReadFeed parses an RSS/Atom feed into evidence items, newest first as
// published by the feed. The recency hint is the item's publication time.
func (f *Fetcher) ReadFeed(ctx context.Context, rawurl string) ([]domain.EvidenceItem, error) {
	body, _, err := f.get(ctx, rawurl)
	if err != nil {
		return nil, err
	}
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}
	items := make([]domain.EvidenceItem, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item == nil || strings.TrimSpace(item.Link) == "" {
			continue
		}
		ev := domain.EvidenceItem{
			URL:   strings.TrimSpace(item.Link),
			Title: strings.TrimSpace(item.Title),
		}
		desc := item.Description
		if desc == "" {
			desc = item.Content
		}
		if desc != "" {
			_, text := StripHTML([]byte(desc))
			ev.Description = textutil.Truncate(text, feedDescriptionLimit)
		}
		switch {
		case item.PublishedParsed != nil:
			ev.RecencyHint = item.PublishedParsed.UTC().Format(time.RFC3339)
		case item.UpdatedParsed != nil:
			ev.RecencyHint = item.UpdatedParsed.UTC().Format(time.RFC3339)
		}
		items = append(items, ev)
	}
	return items, nil
}
