package llm

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ToolInputParam is the single string parameter every tool is declared with.
const ToolInputParam = "input"

// Message represents a chat message with a role and content.
// An assistant message may carry the tool call it made; a tool message carries
// the output of that call in Content and the tool name in ToolName.
type Message struct {
	Role       string
	Content    string
	ToolCall   *ToolCall
	ToolName   string
	ToolCallID string
}

// ToolSpec declares a callable tool to the model.
type ToolSpec struct {
	Name        string
	Description string
}

// ToolCall is a model request to run a tool with one text input.
type ToolCall struct {
	ID    string
	Name  string
	Input string
}

// Request is one generation request: the whole conversation plus the tool menu.
type Request struct {
	Messages []Message
	Tools    []ToolSpec
	Options  map[string]any
}

// GenerateResult contains either a tool call or final text, and token usage if available.
type GenerateResult struct {
	Text         string
	ToolCall     *ToolCall
	PromptTokens int
	OutputTokens int
	TotalTokens  int
	Model        string
}

// LLM defines a minimal chat generation interface with tool calling.
type LLM interface {
	// Name returns provider name (e.g., "gemini").
	Name() string
	// Generate sends the conversation and returns the next action.
	Generate(ctx context.Context, req Request) (GenerateResult, error)
}

// Factory constructs an LLM from provider-specific config.
type Factory func(ctx context.Context, cfg map[string]any) (LLM, error)

// Providers maps provider names to factories. Build one at startup and pass it around.
type Providers struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewProviders returns an empty provider registry.
func NewProviders() *Providers {
	return &Providers{factories: map[string]Factory{}}
}

// Register registers an LLM factory under a provider name.
func (p *Providers) Register(name string, f Factory) error {
	if name == "" {
		return fmt.Errorf("llm: empty provider name")
	}
	if f == nil {
		return fmt.Errorf("llm: nil factory for %q", name)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.factories == nil {
		p.factories = map[string]Factory{}
	}
	if _, exists := p.factories[name]; exists {
		return fmt.Errorf("llm: provider %q already registered", name)
	}
	p.factories[name] = f
	return nil
}

// Resolve gets a registered factory by name.
func (p *Providers) Resolve(name string) (Factory, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	f, ok := p.factories[name]
	return f, ok
}

// Names lists registered providers alphabetically.
func (p *Providers) Names() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]string, 0, len(p.factories))
	for n := range p.factories {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Open resolves name and builds the model.
func (p *Providers) Open(ctx context.Context, name string, cfg map[string]any) (LLM, error) {
	f, ok := p.Resolve(name)
	if !ok {
		return nil, fmt.Errorf("llm: unknown provider %q (have %v)", name, p.Names())
	}
	return f(ctx, cfg)
}
