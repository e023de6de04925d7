// Package agent defines the tool contract used by the research loop and the
// registry that exposes tools to a language model by name.
//
// A tool takes one text input and returns one text output. Tools may have
// side effects (file appends) and are not assumed idempotent. Faults never
// cross the registry boundary: Invoke turns errors and panics into a failed
// Result so the loop and the model can see them and adapt.
package agent

import (
	"context"
	"strings"
)

// Tool is a named text-in/text-out capability.
type Tool interface {
	// Name is the stable identifier the model uses to request the tool.
	Name() string
	// Description is guidance text shown to the model; it carries no behavior.
	Description() string
	// Invoke runs the tool. Returned errors are converted to failed results by the Registry.
	Invoke(ctx context.Context, input string) (string, error)
}

// ToolSpec is the public (name, description) view of a tool.
type ToolSpec struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Result is the tagged outcome of a tool invocation.
type Result struct {
	Tool   string `json:"tool"`
	Input  string `json:"input"`
	Output string `json:"output"`
	Failed bool   `json:"failed,omitempty"`
}

// FailurePrefix marks Output text of a failed Result.
const FailurePrefix = "Error: "

// Failure builds a failed Result with the standard prefix.
func Failure(tool, input, reason string) Result {
	if !strings.HasPrefix(reason, FailurePrefix) {
		reason = FailurePrefix + reason
	}
	return Result{Tool: tool, Input: input, Output: reason, Failed: true}
}

// Func adapts a plain function to the Tool interface.
type Func struct {
	ToolName string
	Desc     string
	Fn       func(ctx context.Context, input string) (string, error)
}

func (f Func) Name() string        { return f.ToolName }
func (f Func) Description() string { return f.Desc }

func (f Func) Invoke(ctx context.Context, input string) (string, error) {
	return f.Fn(ctx, input)
}

// DescribeTool is a helper to get a ToolSpec from a Tool (nil-safe).
func DescribeTool(t Tool) ToolSpec {
	if t == nil {
		return ToolSpec{}
	}
	return ToolSpec{Name: t.Name(), Description: t.Description()}
}
