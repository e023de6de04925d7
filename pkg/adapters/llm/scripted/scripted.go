// Package scripted replays a fixed sequence of model responses. It backs tests,
// offline evaluation and the "scripted" provider.
package scripted

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/wilhg/sagebot/pkg/adapters/llm"
)

// ErrExhausted is returned once every step has been consumed and Repeat is off.
var ErrExhausted = errors.New("scripted: no more responses")

// Step is one canned response: a tool call when Tool is set, final text otherwise.
// A non-empty Error makes the step fail like a transport error.
type Step struct {
	Tool  string `json:"tool,omitempty" yaml:"tool,omitempty"`
	Input string `json:"input,omitempty" yaml:"input,omitempty"`
	Text  string `json:"text,omitempty" yaml:"text,omitempty"`
	Error string `json:"error,omitempty" yaml:"error,omitempty"`
}

// Model implements llm.LLM over a list of steps.
type Model struct {
	mu       sync.Mutex
	steps    []Step
	next     int
	repeat   bool
	requests []llm.Request
}

// New returns a model that answers with steps in order.
func New(steps ...Step) *Model {
	return &Model{steps: steps}
}

// Repeating returns a model that replays its last step forever once the script ends.
func Repeating(steps ...Step) *Model {
	return &Model{steps: steps, repeat: true}
}

func (m *Model) Name() string { return "scripted" }

func (m *Model) Generate(ctx context.Context, req llm.Request) (llm.GenerateResult, error) {
	if err := ctx.Err(); err != nil {
		return llm.GenerateResult{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, cloneRequest(req))

	if m.next >= len(m.steps) {
		if !m.repeat || len(m.steps) == 0 {
			return llm.GenerateResult{}, ErrExhausted
		}
		m.next = len(m.steps) - 1
	}
	s := m.steps[m.next]
	m.next++

	if s.Error != "" {
		return llm.GenerateResult{}, errors.New(s.Error)
	}
	out := llm.GenerateResult{Model: "scripted"}
	if s.Tool != "" {
		out.ToolCall = &llm.ToolCall{ID: fmt.Sprintf("call_%d", len(m.requests)), Name: s.Tool, Input: s.Input}
		return out, nil
	}
	out.Text = s.Text
	return out, nil
}

// Requests returns copies of every request received so far.
func (m *Model) Requests() []llm.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]llm.Request(nil), m.requests...)
}

// Calls is the number of Generate calls so far.
func (m *Model) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

func cloneRequest(r llm.Request) llm.Request {
	r.Messages = append([]llm.Message(nil), r.Messages...)
	r.Tools = append([]llm.ToolSpec(nil), r.Tools...)
	return r
}

// Factory builds a Model from cfg["steps"], either []Step or a JSON array of steps.
// cfg["repeat"] enables Repeating behavior.
func Factory(_ context.Context, cfg map[string]any) (llm.LLM, error) { // nolint: revive
	var steps []Step
	switch v := cfg["steps"].(type) {
	case nil:
	case []Step:
		steps = v
	case string:
		if err := json.Unmarshal([]byte(v), &steps); err != nil {
			return nil, fmt.Errorf("scripted: decode steps: %w", err)
		}
	case []byte:
		if err := json.Unmarshal(v, &steps); err != nil {
			return nil, fmt.Errorf("scripted: decode steps: %w", err)
		}
	default:
		return nil, fmt.Errorf("scripted: unsupported steps type %T", v)
	}
	repeat, _ := cfg["repeat"].(bool)
	return &Model{steps: steps, repeat: repeat}, nil
}
