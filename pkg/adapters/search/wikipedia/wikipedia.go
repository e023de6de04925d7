// Package wikipedia queries the MediaWiki API for page intros.
package wikipedia

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/wilhg/sagebot/pkg/adapters/search"
)

// DefaultEndpoint is the English Wikipedia API.
const DefaultEndpoint = "https://en.wikipedia.org/w/api.php"

// Client implements search.Searcher with a single generator=search request.
type Client struct {
	http     *http.Client
	endpoint string
	limit    int
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option { return func(w *Client) { w.http = c } }

// WithEndpoint overrides the API URL.
func WithEndpoint(u string) Option { return func(w *Client) { w.endpoint = u } }

// WithLimit sets the number of pages fetched per query.
func WithLimit(n int) Option {
	return func(w *Client) {
		if n > 0 {
			w.limit = n
		}
	}
}

// New returns a client fetching the top 3 pages.
func New(opts ...Option) *Client {
	c := &Client{
		http:     search.NewHTTPClient(15 * time.Second),
		endpoint: DefaultEndpoint,
		limit:    3,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Client) Name() string { return "wikipedia" }

type apiResponse struct {
	Query struct {
		Pages []struct {
			PageID  int    `json:"pageid"`
			Title   string `json:"title"`
			Index   int    `json:"index"`
			Extract string `json:"extract"`
			Missing bool   `json:"missing"`
		} `json:"pages"`
	} `json:"query"`
	Error *struct {
		Code string `json:"code"`
		Info string `json:"info"`
	} `json:"error"`
}

// Search returns the matching pages in relevance order, with their plain-text intro as Snippet.
func (c *Client) Search(ctx context.Context, query string) ([]search.Hit, error) {
	if strings.TrimSpace(query) == "" {
		return nil, errors.New("query is empty")
	}
	q := url.Values{}
	q.Set("action", "query")
	q.Set("format", "json")
	q.Set("formatversion", "2")
	q.Set("generator", "search")
	q.Set("gsrsearch", query)
	q.Set("gsrlimit", strconv.Itoa(c.limit))
	q.Set("prop", "extracts")
	q.Set("exintro", "1")
	q.Set("explaintext", "1")
	q.Set("exlimit", strconv.Itoa(c.limit))
	q.Set("redirects", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", search.UserAgent)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("wikipedia http %d", resp.StatusCode)
	}

	var body apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("wikipedia: decode: %w", err)
	}
	if body.Error != nil {
		return nil, fmt.Errorf("wikipedia: %s: %s", body.Error.Code, body.Error.Info)
	}

	pages := body.Query.Pages
	sort.SliceStable(pages, func(i, j int) bool { return pages[i].Index < pages[j].Index })
	hits := make([]search.Hit, 0, len(pages))
	for _, p := range pages {
		if p.Missing || p.Title == "" {
			continue
		}
		hits = append(hits, search.Hit{
			Title:   p.Title,
			URL:     "https://en.wikipedia.org/wiki/" + url.PathEscape(strings.ReplaceAll(p.Title, " ", "_")),
			Snippet: strings.TrimSpace(p.Extract),
		})
	}
	return hits, nil
}
