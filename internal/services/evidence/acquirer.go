// Package evidence gathers the snippets a draft is allowed to be grounded on.
package evidence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/net/publicsuffix"

	"scour/internal/domain"
	"scour/internal/logging"
	"scour/internal/ports"
	"scour/internal/services/quota"
	"scour/internal/textutil"
)

const incidentKeywords = "(protest OR strike OR attack OR explosion OR shooting OR flood OR earthquake OR storm OR wildfire OR outbreak OR evacuation OR closure OR unrest)"

type Config struct {
	SearchTimeout time.Duration
	FetchTimeout  time.Duration
	// MinResults is how many usable results a query needs to be accepted.
	MinResults int
	MaxResults int
	// FetchCap and MinFetchChars bound the direct page fallback.
	FetchCap      int
	MinFetchChars int
}

func DefaultConfig() Config {
	return Config{
		SearchTimeout: 8 * time.Second,
		FetchTimeout:  8 * time.Second,
		MinResults:    2,
		MaxResults:    8,
		FetchCap:      3000,
		MinFetchChars: 100,
	}
}

type Acquirer struct {
	search ports.Searcher
	fetch  ports.Fetcher
	feeds  ports.FeedReader
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
}

// New builds an Acquirer. feeds may be nil when rss sources are not used.
func New(search ports.Searcher, fetch ports.Fetcher, feeds ports.FeedReader, cfg Config, logger *slog.Logger) *Acquirer {
	def := DefaultConfig()
	if cfg.SearchTimeout <= 0 {
		cfg.SearchTimeout = def.SearchTimeout
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = def.FetchTimeout
	}
	if cfg.MinResults <= 0 {
		cfg.MinResults = def.MinResults
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = def.MaxResults
	}
	if cfg.FetchCap <= 0 {
		cfg.FetchCap = def.FetchCap
	}
	if cfg.MinFetchChars <= 0 {
		cfg.MinFetchChars = def.MinFetchChars
	}
	return &Acquirer{
		search: search,
		fetch:  fetch,
		feeds:  feeds,
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, "evidence"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Acquire returns ranked evidence for src and a label for the query that
// produced it. Empty evidence with a nil error means nothing usable was found.
func (a *Acquirer) Acquire(ctx context.Context, src domain.Source, daysBack int) ([]domain.EvidenceItem, string, error) {
	now := a.now()
	var feedItems []domain.EvidenceItem
	if src.Type == domain.SourceTypeRSS && a.feeds != nil && src.URL != "" {
		items, err := a.readFeed(ctx, src.URL, daysBack, now)
		if err != nil {
			a.logger.Warn("feed read failed", "source_id", src.ID, "error", err)
		}
		if len(items) >= a.cfg.MinResults {
			return items, "feed:" + src.URL, nil
		}
		feedItems = items
	}

	var searchErr error
	if a.search != nil {
		freshness := FreshnessFor(daysBack)
		for _, q := range BuildQueries(src) {
			items, err := a.runQuery(ctx, q, freshness, daysBack, now)
			if err != nil {
				// A spent quota is the caller's problem, not the source's.
				if errors.Is(err, quota.ErrQuotaExceeded) {
					return nil, "", err
				}
				searchErr = err
				a.logger.Debug("search query failed", "source_id", src.ID, "query", q, "error", err)
				if ctx.Err() != nil {
					return nil, "", ctx.Err()
				}
				continue
			}
			if len(items) >= a.cfg.MinResults {
				return items, q, nil
			}
		}
	}

	if len(feedItems) > 0 {
		return feedItems, "feed:" + src.URL, nil
	}

	if a.fetch != nil && src.URL != "" {
		item, ok, err := a.fetchPage(ctx, src.URL)
		if err != nil {
			if searchErr != nil {
				return nil, "", errors.Join(searchErr, err)
			}
			return nil, "", err
		}
		if ok {
			return []domain.EvidenceItem{item}, "fetch:" + src.URL, nil
		}
		return nil, "fetch:" + src.URL, nil
	}
	if searchErr != nil {
		return nil, "", searchErr
	}
	return nil, "", nil
}

func (a *Acquirer) runQuery(ctx context.Context, query string, freshness ports.Freshness, daysBack int, now time.Time) ([]domain.EvidenceItem, error) {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.SearchTimeout)
	defer cancel()
	results, err := a.search.Search(ctx, ports.SearchQuery{Query: query, Freshness: freshness, Count: 10})
	if err != nil {
		return nil, err
	}
	items := make([]domain.EvidenceItem, 0, len(results))
	for _, r := range results {
		items = append(items, domain.EvidenceItem{
			URL:         r.URL,
			Title:       r.Title,
			Description: r.Description,
			RecencyHint: r.Age,
		})
	}
	return a.rank(items, daysBack, now), nil
}

func (a *Acquirer) readFeed(ctx context.Context, feedURL string, daysBack int, now time.Time) ([]domain.EvidenceItem, error) {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.FetchTimeout)
	defer cancel()
	items, err := a.feeds.ReadFeed(ctx, feedURL)
	if err != nil {
		return nil, err
	}
	return a.rank(items, daysBack, now), nil
}

func (a *Acquirer) fetchPage(ctx context.Context, pageURL string) (domain.EvidenceItem, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.FetchTimeout)
	defer cancel()
	page, err := a.fetch.FetchText(ctx, pageURL)
	if err != nil {
		return domain.EvidenceItem{}, false, fmt.Errorf("fetch %s: %w", pageURL, err)
	}
	text := textutil.Truncate(strings.TrimSpace(page.Text), a.cfg.FetchCap)
	if utf8.RuneCountInString(text) < a.cfg.MinFetchChars {
		return domain.EvidenceItem{}, false, nil
	}
	u := page.URL
	if u == "" {
		u = pageURL
	}
	return domain.EvidenceItem{URL: u, Title: page.Title, Description: text}, true, nil
}

type ranked struct {
	item  domain.EvidenceItem
	at    time.Time
	dated bool
	order int
}

// rank drops junk, duplicates and items older than the lookback window, then
// orders newest first with undated items after dated ones in input order.
func (a *Acquirer) rank(items []domain.EvidenceItem, daysBack int, now time.Time) []domain.EvidenceItem {
	cutoff := textutil.StartOfDayUTC(now).AddDate(0, 0, -max(daysBack, 1))
	seen := make(map[string]bool, len(items))
	var keep []ranked
	for i, it := range items {
		key, ok := canonicalURL(it.URL)
		if !ok || IsJunkURL(it.URL) || seen[key] {
			continue
		}
		seen[key] = true
		r := ranked{item: it, order: i}
		if at, ok := textutil.ParseRecencyHint(it.RecencyHint, now); ok {
			if at.Before(cutoff) {
				continue
			}
			r.at, r.dated = at, true
		}
		keep = append(keep, r)
	}
	sort.SliceStable(keep, func(i, j int) bool {
		if keep[i].dated != keep[j].dated {
			return keep[i].dated
		}
		if keep[i].dated && !keep[i].at.Equal(keep[j].at) {
			return keep[i].at.After(keep[j].at)
		}
		return keep[i].order < keep[j].order
	})
	if len(keep) > a.cfg.MaxResults {
		keep = keep[:a.cfg.MaxResults]
	}
	out := make([]domain.EvidenceItem, len(keep))
	for i, r := range keep {
		out[i] = r.item
	}
	return out
}

// FreshnessFor maps a lookback window to the search freshness hint.
func FreshnessFor(daysBack int) ports.Freshness {
	switch {
	case daysBack <= 1:
		return ports.FreshnessDay
	case daysBack <= 7:
		return ports.FreshnessWeek
	default:
		return ports.FreshnessMonth
	}
}

// BuildQueries returns up to three queries, narrowest first.
func BuildQueries(src domain.Source) []string {
	host := sourceHost(src.URL)
	topics := strings.TrimSpace(strings.Join(src.Topics, " "))
	var out []string
	if host != "" && topics != "" {
		out = append(out, fmt.Sprintf("site:%s %s %s", host, topics, incidentKeywords))
	}
	if host != "" {
		out = append(out, fmt.Sprintf("site:%s %s", host, incidentKeywords))
	}
	if broad := strings.TrimSpace(src.Country + " " + topics); broad != "" {
		out = append(out, broad+" "+incidentKeywords)
	}
	return out
}

func sourceHost(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

var junkSegments = map[string]bool{
	"tag": true, "tags": true, "category": true, "categories": true,
	"opinion": true, "opinions": true, "op-ed": true, "editorial": true, "editorials": true,
	"author": true, "authors": true, "search": true, "archive": true, "archives": true,
	"topic": true, "topics": true, "page": true, "login": true, "subscribe": true,
}

// IsJunkURL reports listing, tag, opinion and other non-article URLs, and URLs
// that do not parse to an http(s) address on a registrable domain.
func IsJunkURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Hostname() == "" {
		return true
	}
	if _, err := publicsuffix.EffectiveTLDPlusOne(u.Hostname()); err != nil {
		return true
	}
	path := strings.Trim(strings.ToLower(u.Path), "/")
	if path == "" || path == "index.html" || path == "index.php" {
		return true
	}
	for _, seg := range strings.Split(path, "/") {
		if junkSegments[seg] {
			return true
		}
	}
	q := u.Query()
	return q.Has("s") || q.Has("q") || q.Has("tag")
}

func canonicalURL(raw string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Hostname() == "" {
		return "", false
	}
	u.Fragment = ""
	u.Host = strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	q := u.Query()
	for k := range q {
		if strings.HasPrefix(strings.ToLower(k), "utm_") {
			q.Del(k)
		}
	}
	u.RawQuery = q.Encode()
	u.Path = strings.TrimSuffix(u.Path, "/")
	u.Scheme = "https"
	return u.String(), true
}
