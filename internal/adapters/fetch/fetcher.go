// Package fetch retrieves pages and feeds over HTTP and reduces them to
// evidence text.
package fetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"
	"golang.org/x/net/html"

	"scour/internal/ports"
)

const (
	defaultTimeout = 8 * time.Second
	maxBodyBytes   = 4 << 20
	defaultUA      = "scour/1.0 (+incident monitoring)"
)

// Fetcher implements ports.Fetcher and ports.FeedReader.
type Fetcher struct {
	client    *http.Client
	userAgent string
	timeout   time.Duration
	now       func() time.Time
}

type Option func(*Fetcher)

func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) {
		if c != nil {
			f.client = c
		}
	}
}

func WithUserAgent(ua string) Option {
	return func(f *Fetcher) {
		if strings.TrimSpace(ua) != "" {
			f.userAgent = ua
		}
	}
}

func New(timeout time.Duration, opts ...Option) *Fetcher {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	tr := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 60 * time.Second}).DialContext,
		MaxIdleConns:        50,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 5 * time.Second,
	}
	f := &Fetcher{
		client:    &http.Client{Timeout: timeout, Transport: tr},
		userAgent: defaultUA,
		timeout:   timeout,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *Fetcher) get(ctx context.Context, rawurl string) ([]byte, *url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(rawurl))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, nil, fmt.Errorf("fetch: invalid url %q", rawurl)
	}
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch: new request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch %s: %w", u.Host, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, nil, fmt.Errorf("fetch %s: http %d", u.Host, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, nil, fmt.Errorf("fetch %s: read body: %w", u.Host, err)
	}
	return body, u, nil
}

// FetchText returns the readable text of a page. Readability extraction is
// tried first; pages it cannot handle are reduced by stripping markup.
func (f *Fetcher) FetchText(ctx context.Context, rawurl string) (ports.PageText, error) {
	body, u, err := f.get(ctx, rawurl)
	if err != nil {
		return ports.PageText{}, err
	}
	out := ports.PageText{URL: u.String()}
	if article, err := readability.FromReader(bytes.NewReader(body), u); err == nil && strings.TrimSpace(article.TextContent) != "" {
		out.Title = strings.TrimSpace(article.Title)
		out.Text = collapseSpace(article.TextContent)
		return out, nil
	}
	title, text := StripHTML(body)
	out.Title = title
	out.Text = text
	return out, nil
}

// StripHTML drops scripts, styles and tags and returns the page title and
// whitespace-collapsed body text.
func StripHTML(body []byte) (title, text string) {
	z := html.NewTokenizer(bytes.NewReader(body))
	var sb strings.Builder
	skip := 0
	inTitle := false
	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.TrimSpace(title), collapseSpace(sb.String())
		case html.StartTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "script", "style", "noscript", "nav", "footer", "header", "svg":
				skip++
			case "title":
				inTitle = true
			case "p", "br", "div", "li", "h1", "h2", "h3", "h4", "tr":
				sb.WriteByte(' ')
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "script", "style", "noscript", "nav", "footer", "header", "svg":
				if skip > 0 {
					skip--
				}
			case "title":
				inTitle = false
			}
		case html.TextToken:
			if inTitle {
				title += string(z.Text())
				continue
			}
			if skip == 0 {
				sb.Write(z.Text())
				sb.WriteByte(' ')
			}
		}
	}
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
