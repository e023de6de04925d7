// Package search defines the boundary to web and encyclopedia lookup backends.
package search

import (
	"context"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Hit is one search result.
type Hit struct {
	Title   string
	URL     string
	Snippet string
}

// Searcher runs a free-text query against a backend.
type Searcher interface {
	Name() string
	Search(ctx context.Context, query string) ([]Hit, error)
}

// UserAgent is sent by the HTTP backends.
const UserAgent = "Mozilla/5.0 (compatible; sagebot/1.0; +https://github.com/wilhg/sagebot)"

// NewHTTPClient returns a traced client with the given timeout.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}
