// Package duckduckgo scrapes the DuckDuckGo lite HTML interface.
package duckduckgo

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog/log"

	"github.com/wilhg/sagebot/pkg/adapters/search"
)

// DefaultEndpoint is the lite search form target.
const DefaultEndpoint = "https://lite.duckduckgo.com/lite/"

const (
	maxHits     = 5
	maxBackoff  = 30 * time.Second
	maxAttempts = 3
)

// Client implements search.Searcher. Queries are spaced at least Interval apart.
type Client struct {
	http     *http.Client
	endpoint string
	interval time.Duration

	backoff  time.Duration

	mu   sync.Mutex
	last time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option { return func(d *Client) { d.http = c } }

// WithEndpoint overrides the search URL.
func WithEndpoint(u string) Option { return func(d *Client) { d.endpoint = u } }

// WithInterval sets the minimum gap between queries. Zero disables rate limiting.
func WithInterval(d time.Duration) Option { return func(c *Client) { c.interval = d } }

// WithBackoff sets the first delay after a 429 response; it doubles per retry.
func WithBackoff(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.backoff = d
		}
	}
}

// New returns a DuckDuckGo searcher limited to one query per second.
func New(opts ...Option) *Client {
	c := &Client{
		http:     search.NewHTTPClient(15 * time.Second),
		endpoint: DefaultEndpoint,
		interval: time.Second,
		backoff:  time.Second,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Client) Name() string { return "duckduckgo" }

// Search posts the query to the lite page and parses the result table.
func (c *Client) Search(ctx context.Context, query string) ([]search.Hit, error) {
	if strings.TrimSpace(query) == "" {
		return nil, errors.New("query is empty")
	}
	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set("q", query)

	var resp *http.Response
	delay := c.backoff
	for attempt := 1; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(form.Encode()))
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", search.UserAgent)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		resp, err = c.http.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusTooManyRequests {
			break
		}
		_ = resp.Body.Close()
		if attempt >= maxAttempts {
			return nil, fmt.Errorf("duckduckgo http %d after %d attempts", http.StatusTooManyRequests, attempt)
		}
		log.Debug().Dur("delay", delay).Int("attempt", attempt).Msg("duckduckgo: rate limited, backing off")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		if delay < maxBackoff {
			delay *= 2
		}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("duckduckgo http %d", resp.StatusCode)
	}
	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("duckduckgo: parse html: %w", err)
	}
	return parseLite(doc), nil
}

func (c *Client) wait(ctx context.Context) error {
	if c.interval <= 0 {
		return nil
	}
	c.mu.Lock()
	next := c.last.Add(c.interval)
	now := time.Now()
	if next.Before(now) {
		next = now
	}
	c.last = next
	c.mu.Unlock()

	wait := time.Until(next)
	if wait <= 0 {
		return nil
	}
	select {
	case <-time.After(wait):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// parseLite pairs each a.result-link with the next td.result-snippet.
func parseLite(doc *goquery.Document) []search.Hit {
	var hits []search.Hit
	links := doc.Find("a.result-link")
	snippets := doc.Find("td.result-snippet")
	links.EachWithBreak(func(i int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		title := strings.TrimSpace(a.Text())
		u := resolveRedirect(strings.TrimSpace(href))
		if u == "" || title == "" {
			return true
		}
		hit := search.Hit{Title: title, URL: u}
		if i < snippets.Length() {
			hit.Snippet = strings.Join(strings.Fields(snippets.Eq(i).Text()), " ")
		}
		hits = append(hits, hit)
		return len(hits) < maxHits
	})
	return hits
}

// resolveRedirect unwraps //duckduckgo.com/l/?uddg=<target> links.
func resolveRedirect(href string) string {
	if !strings.Contains(href, "duckduckgo.com/l/") {
		return href
	}
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	return href
}
