package runtime

import (
	"fmt"

	"github.com/wilhg/sagebot/pkg/adapters/llm"
)

// Turn is one completed step of a run: either a tool turn (Tool/Input/Output/Failed)
// or a correction turn (Answer/Correction).
type Turn struct {
	CallID string `json:"call_id,omitempty"`
	Tool   string `json:"tool,omitempty"`
	Input  string `json:"input,omitempty"`
	Output string `json:"output,omitempty"`
	Failed bool   `json:"failed,omitempty"`

	Answer     string `json:"answer,omitempty"`
	Correction string `json:"correction,omitempty"`
}

// IsCorrection reports whether t asked the model to fix a malformed answer.
func (t Turn) IsCorrection() bool { return t.Correction != "" }

// Conversation is the per-run context sent to the model on every turn.
// It only grows; nothing in it is shared between runs.
type Conversation struct {
	System string
	Query  string
	Turns  []Turn
}

// Messages renders the conversation for the model.
func (c *Conversation) Messages() []llm.Message {
	msgs := make([]llm.Message, 0, 2+2*len(c.Turns))
	msgs = append(msgs,
		llm.Message{Role: llm.RoleSystem, Content: c.System},
		llm.Message{Role: llm.RoleUser, Content: c.Query},
	)
	for _, t := range c.Turns {
		if t.IsCorrection() {
			msgs = append(msgs,
				llm.Message{Role: llm.RoleAssistant, Content: t.Answer},
				llm.Message{Role: llm.RoleUser, Content: t.Correction},
			)
			continue
		}
		msgs = append(msgs,
			llm.Message{Role: llm.RoleAssistant, ToolCall: &llm.ToolCall{ID: t.CallID, Name: t.Tool, Input: t.Input}},
			llm.Message{Role: llm.RoleTool, ToolName: t.Tool, ToolCallID: t.CallID, Content: t.Output},
		)
	}
	return msgs
}

// CorrectionText is the instruction appended after a malformed final answer.
func CorrectionText(reason string) string {
	return fmt.Sprintf("Your last output did not match the required shape; reason: %s. "+
		"Respond again with only the JSON object described in the format instructions.", reason)
}
