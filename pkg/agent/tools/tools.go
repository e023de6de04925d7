// Package tools implements the research tool set: web and encyclopedia lookup,
// append-only file savers and two pure text helpers.
package tools

import (
	"time"

	"github.com/wilhg/sagebot/pkg/adapters/search"
	"github.com/wilhg/sagebot/pkg/agent"
)

// Config wires the tools to their backends and output directory.
type Config struct {
	Web       search.Searcher
	Wiki      search.Searcher
	OutputDir string
	Now       func() time.Time
}

// All returns the six research tools in catalog order.
func All(cfg Config) []agent.Tool {
	files := NewAppender()
	return []agent.Tool{
		WebSearch{Backend: cfg.Web},
		WikipediaQuery{Backend: cfg.Wiki},
		SaveText{Dir: cfg.OutputDir, Files: files, Now: cfg.Now},
		SaveJSON{Dir: cfg.OutputDir, Files: files},
		ShortenSummary{},
		FormatMarkdown{},
	}
}

// NewRegistry builds a registry holding All(cfg).
func NewRegistry(cfg Config) (*agent.Registry, error) {
	return agent.NewRegistry(All(cfg)...)
}
