package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/wilhg/sagebot/pkg/adapters/search"
)

const (
	noWebResults  = "No good DuckDuckGo Search Result was found"
	noWikiResults = "No good Wikipedia Search Result was found"

	// WikiMaxChars bounds the combined wikipedia_query output.
	WikiMaxChars = 1000
)

var errNoBackend = errors.New("no search backend configured")

// WebSearch answers with one "title: snippet (url)" line per hit.
type WebSearch struct{ Backend search.Searcher }

func (WebSearch) Name() string { return "search" }

func (WebSearch) Description() string {
	return "Use DuckDuckGo to search the web for real-time information and recent updates."
}

func (t WebSearch) Invoke(ctx context.Context, input string) (string, error) {
	if t.Backend == nil {
		return "", errNoBackend
	}
	hits, err := t.Backend.Search(ctx, input)
	if err != nil {
		return "", err
	}
	if len(hits) == 0 {
		return noWebResults, nil
	}
	lines := make([]string, 0, len(hits))
	for _, h := range hits {
		line := h.Title
		if h.Snippet != "" {
			line += ": " + h.Snippet
		}
		if h.URL != "" {
			line += " (" + h.URL + ")"
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n"), nil
}

// WikipediaQuery answers with page summaries of the top results.
type WikipediaQuery struct {
	Backend  search.Searcher
	TopK     int
	MaxChars int
}

func (WikipediaQuery) Name() string { return "wikipedia_query" }

func (WikipediaQuery) Description() string {
	return "Use Wikipedia to find factual, encyclopedic summaries of people, events, or topics."
}

func (t WikipediaQuery) Invoke(ctx context.Context, input string) (string, error) {
	if t.Backend == nil {
		return "", errNoBackend
	}
	hits, err := t.Backend.Search(ctx, input)
	if err != nil {
		return "", err
	}
	topK := t.TopK
	if topK <= 0 {
		topK = 3
	}
	if len(hits) > topK {
		hits = hits[:topK]
	}
	parts := make([]string, 0, len(hits))
	for _, h := range hits {
		parts = append(parts, fmt.Sprintf("Page: %s\nSummary: %s", h.Title, h.Snippet))
	}
	if len(parts) == 0 {
		return noWikiResults, nil
	}
	maxChars := t.MaxChars
	if maxChars <= 0 {
		maxChars = WikiMaxChars
	}
	return truncateRunes(strings.Join(parts, "\n\n"), maxChars), nil
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
