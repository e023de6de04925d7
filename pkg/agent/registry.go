package agent

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/wilhg/sagebot/pkg/errmodel"
)

// Registry keeps tools by name in registration order.
// It is built once at startup and only read afterwards.
type Registry struct {
	mu    sync.RWMutex
	order []string
	tools map[string]Tool
}

// NewRegistry returns a registry holding the given tools. It fails on the first duplicate.
func NewRegistry(tools ...Tool) (*Registry, error) {
	r := &Registry{tools: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a tool under its Name.
func (r *Registry) Register(t Tool) error {
	if t == nil {
		return errmodel.Validation("bad_tool", "tool is nil", nil)
	}
	name := t.Name()
	if name == "" {
		return errmodel.Validation("bad_tool", "tool name is empty", nil)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.tools == nil {
		r.tools = map[string]Tool{}
	}
	if _, exists := r.tools[name]; exists {
		return errmodel.System(errmodel.CodeDuplicateTool, fmt.Sprintf("tool %q already registered", name), map[string]any{"tool": name}, nil)
	}
	r.tools[name] = t
	r.order = append(r.order, name)
	return nil
}

// Lookup returns a Tool by name.
func (r *Registry) Lookup(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// List returns name/description pairs in registration order.
func (r *Registry) List() []ToolSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ToolSpec, 0, len(r.order))
	for _, n := range r.order {
		out = append(out, DescribeTool(r.tools[n]))
	}
	return out
}

// Names returns the registered tool names sorted alphabetically.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := append([]string(nil), r.order...)
	sort.Strings(out)
	return out
}

// Invoke runs the named tool. The only error it returns is unknown_tool;
// everything the tool itself does wrong comes back as a failed Result.
func (r *Registry) Invoke(ctx context.Context, name, input string) (Result, error) {
	t, ok := r.Lookup(name)
	if !ok || t == nil {
		return Result{}, errmodel.Validation(errmodel.CodeUnknownTool, fmt.Sprintf("tool %q does not exist", name), map[string]any{
			"tool":      name,
			"available": strings.Join(r.Names(), ", "),
		})
	}

	ctx, span := otel.Tracer("agent/registry").Start(ctx, "Registry.Invoke", trace.WithAttributes(
		attribute.String("tool.name", name),
		attribute.Int("tool.input_len", len(input)),
	))
	defer span.End()

	res := safeInvoke(ctx, t, input)
	span.SetAttributes(attribute.Bool("tool.failed", res.Failed))
	if res.Failed {
		span.SetStatus(codes.Error, res.Output)
		log.Warn().Str("tool", name).Str("output", res.Output).Msg("agent: tool failed")
	}
	return res, nil
}

func safeInvoke(ctx context.Context, t Tool, input string) (res Result) {
	name := t.Name()
	defer func() {
		if p := recover(); p != nil {
			res = Failure(name, input, fmt.Sprintf("tool %s failed: panic: %v", name, p))
		}
	}()
	out, err := t.Invoke(ctx, input)
	if err != nil {
		return Failure(name, input, fmt.Sprintf("tool %s failed: %v", name, err))
	}
	return Result{Tool: name, Input: input, Output: out}
}
