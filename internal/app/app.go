// Package app assembles the SageBot components from a Config. Everything is
// constructed once here and passed down; nothing registers itself globally.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/wilhg/sagebot/internal/config"
	"github.com/wilhg/sagebot/pkg/adapters/llm"
	"github.com/wilhg/sagebot/pkg/adapters/llm/gemini"
	"github.com/wilhg/sagebot/pkg/adapters/llm/openai"
	"github.com/wilhg/sagebot/pkg/adapters/llm/scripted"
	"github.com/wilhg/sagebot/pkg/adapters/search"
	"github.com/wilhg/sagebot/pkg/adapters/search/duckduckgo"
	"github.com/wilhg/sagebot/pkg/adapters/search/wikipedia"
	"github.com/wilhg/sagebot/pkg/agent"
	"github.com/wilhg/sagebot/pkg/agent/tools"
	"github.com/wilhg/sagebot/pkg/mcpclient"
	otto "github.com/wilhg/sagebot/pkg/otel"
	"github.com/wilhg/sagebot/pkg/prompt"
	"github.com/wilhg/sagebot/pkg/runtime"
	"github.com/wilhg/sagebot/pkg/runtime/assembler"
	"github.com/wilhg/sagebot/pkg/store"
	"github.com/wilhg/sagebot/pkg/store/sqlstore"
)

// Version is reported to tracing and MCP clients.
var Version = "dev"

// searchTimeout bounds one search backend request.
const searchTimeout = 15 * time.Second

// estimatorModel selects the tiktoken encoding used for budgeting.
const estimatorModel = "gpt-4o"

// App holds the long-lived components.
type App struct {
	Config    config.Config
	Providers *llm.Providers
	Model     llm.LLM
	Registry  *agent.Registry
	Prompts   *prompt.Store
	Store     store.Store // nil when database_url is "none"
	Runner    *runtime.Runner

	estimate assembler.TokenEstimator
	closers  []func(context.Context) error
}

// Option overrides a component, mostly for tests.
type Option func(*options)

type options struct {
	model     llm.LLM
	web, wiki search.Searcher
	store     store.Store
	estimate  assembler.TokenEstimator
	noTracing bool
}

// WithModel skips provider resolution and uses m.
func WithModel(m llm.LLM) Option { return func(o *options) { o.model = m } }

// WithSearchers replaces the web and encyclopedia backends.
func WithSearchers(web, wiki search.Searcher) Option {
	return func(o *options) { o.web, o.wiki = web, wiki }
}

// WithStore uses st instead of opening database_url.
func WithStore(st store.Store) Option { return func(o *options) { o.store = st } }

// WithTokenEstimator skips loading the tiktoken encoding.
func WithTokenEstimator(est assembler.TokenEstimator) Option {
	return func(o *options) { o.estimate = est }
}

// WithoutModel is for commands that never query a model (mcp, history,
// prompt): no provider is opened and no API key is required.
func WithoutModel() Option { return func(o *options) { o.model = scripted.New() } }

// WithoutTracing leaves the global tracer provider alone.
func WithoutTracing() Option { return func(o *options) { o.noTracing = true } }

// NewProviders returns the provider registry with every built-in backend.
func NewProviders() *llm.Providers {
	p := llm.NewProviders()
	_ = p.Register("gemini", gemini.Factory)
	_ = p.Register("openai", openai.Factory)
	_ = p.Register("scripted", scripted.Factory)
	return p
}

// New validates cfg and builds the application. On error, anything already
// opened is closed.
func New(ctx context.Context, cfg config.Config, opts ...Option) (_ *App, err error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.model == nil {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	a := &App{Config: cfg, Providers: NewProviders()}
	defer func() {
		if err != nil {
			_ = a.Close(context.Background())
		}
	}()

	if !o.noTracing {
		shutdown, err := otto.Init(ctx, otto.Config{ServiceName: "sagebot", ServiceVersion: Version, UseStdout: cfg.TraceStdout})
		if err != nil {
			return nil, fmt.Errorf("tracing: %w", err)
		}
		a.closers = append(a.closers, shutdown)
	}

	a.Model = o.model
	if a.Model == nil {
		if a.Model, err = a.openModel(ctx); err != nil {
			return nil, err
		}
	}

	if a.Registry, err = a.buildRegistry(ctx, o.web, o.wiki); err != nil {
		return nil, err
	}

	a.Prompts = prompt.NewDefaultStore()
	if cfg.PromptFile != "" {
		saved, err := a.Prompts.LoadFile(cfg.PromptFile)
		if err != nil {
			return nil, err
		}
		log.Info().Int("prompts", len(saved)).Str("file", cfg.PromptFile).Msg("app: prompts loaded")
	}

	a.Store = o.store
	if a.Store == nil && cfg.DatabaseURL != "" && cfg.DatabaseURL != "none" {
		st, err := sqlstore.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("run store: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) error { return st.Close() })
		if err := st.Migrate(ctx); err != nil {
			return nil, err
		}
		a.Store = st
	}

	a.estimate = o.estimate
	if a.estimate == nil {
		if est, err := assembler.NewTikTokenEstimator(estimatorModel); err == nil {
			a.estimate = est
		} else {
			log.Debug().Err(err).Msg("app: tiktoken unavailable, counting runes")
			a.estimate = assembler.RuneEstimator
		}
	}

	if a.Runner, err = a.NewRunner(a.Model, runtime.WithStore(a.Store)); err != nil {
		return nil, err
	}
	return a, nil
}

// NewRunner builds a runner over the app's tools and prompts with a different model.
func (a *App) NewRunner(model llm.LLM, extra ...runtime.RunnerOption) (*runtime.Runner, error) {
	opts := []runtime.RunnerOption{
		runtime.WithMaxTurns(a.Config.MaxTurns),
		runtime.WithMaxCorrections(a.Config.MaxCorrections),
		runtime.WithPrompts(a.Prompts, a.Config.PromptVersion),
		runtime.WithToolOutputBudget(a.estimate, a.Config.ToolOutputTokens),
	}
	if a.Config.Model != "" {
		opts = append(opts, runtime.WithModelOptions(map[string]any{"model": a.Config.Model}))
	}
	return runtime.NewRunner(model, a.Registry, append(opts, extra...)...)
}

func (a *App) openModel(ctx context.Context) (llm.LLM, error) {
	cfg := map[string]any{}
	if a.Config.APIKey != "" {
		cfg["api_key"] = a.Config.APIKey
	}
	if a.Config.Model != "" {
		cfg["model"] = a.Config.Model
	}
	if a.Config.BaseURL != "" {
		cfg["base_url"] = a.Config.BaseURL
	}
	if a.Config.Script != "" {
		b, err := os.ReadFile(a.Config.Script)
		if err != nil {
			return nil, fmt.Errorf("script: %w", err)
		}
		cfg["steps"] = b
	}
	return a.Providers.Open(ctx, a.Config.Provider, cfg)
}

func (a *App) buildRegistry(ctx context.Context, web, wiki search.Searcher) (*agent.Registry, error) {
	if web == nil {
		web = duckduckgo.New(duckduckgo.WithHTTPClient(search.NewHTTPClient(searchTimeout)))
	}
	if wiki == nil {
		wiki = wikipedia.New(wikipedia.WithHTTPClient(search.NewHTTPClient(searchTimeout)))
	}
	reg, err := tools.NewRegistry(tools.Config{Web: web, Wiki: wiki, OutputDir: a.Config.OutputDir})
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(a.Config.MCPCommand) == "" {
		return reg, nil
	}
	client, err := mcpclient.Spawn(ctx, a.Config.MCPCommand)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func(context.Context) error { return client.Close() })
	remote, err := client.Tools(ctx)
	if err != nil {
		return nil, err
	}
	for _, t := range remote {
		if err := reg.Register(t); err != nil {
			return nil, err
		}
	}
	log.Info().Int("tools", len(remote)).Msg("app: MCP tools registered")
	return reg, nil
}

// Close releases everything New opened, newest first.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
