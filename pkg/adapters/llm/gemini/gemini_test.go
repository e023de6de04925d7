package gemini

import (
	"context"
	"testing"

	genai "google.golang.org/genai"

	"github.com/wilhg/sagebot/pkg/adapters/llm"
	"github.com/wilhg/sagebot/pkg/errmodel"
)

func TestToContentsMapsToolTurns(t *testing.T) {
	msgs := []llm.Message{
		{Role: llm.RoleSystem, Content: "be brief"},
		{Role: llm.RoleUser, Content: "who was Ada Lovelace"},
		{Role: llm.RoleAssistant, ToolCall: &llm.ToolCall{ID: "c1", Name: "wikipedia_query", Input: "Ada Lovelace"}},
		{Role: llm.RoleTool, ToolName: "wikipedia_query", ToolCallID: "c1", Content: "Page: Ada Lovelace"},
	}
	contents, system := toContents(msgs)
	if system == nil || len(system.Parts) != 1 || system.Parts[0].Text != "be brief" {
		t.Fatalf("system=%+v", system)
	}
	if len(contents) != 3 {
		t.Fatalf("contents=%d", len(contents))
	}
	call := contents[1].Parts[0].FunctionCall
	if contents[1].Role != string(genai.RoleModel) || call == nil || call.Name != "wikipedia_query" || call.Args[llm.ToolInputParam] != "Ada Lovelace" {
		t.Fatalf("call turn=%+v", contents[1])
	}
	resp := contents[2].Parts[0].FunctionResponse
	if resp == nil || resp.Name != "wikipedia_query" || resp.Response["output"] != "Page: Ada Lovelace" {
		t.Fatalf("response turn=%+v", contents[2])
	}
}

func TestDeclarationsUseSingleInput(t *testing.T) {
	decls := toDeclarations([]llm.ToolSpec{{Name: "search", Description: "web"}})
	if len(decls) != 1 || decls[0].Name != "search" {
		t.Fatalf("decls=%+v", decls)
	}
	p := decls[0].Parameters
	if p.Type != genai.TypeObject || p.Properties[llm.ToolInputParam] == nil || p.Required[0] != llm.ToolInputParam {
		t.Fatalf("params=%+v", p)
	}
}

func TestFromFunctionCall(t *testing.T) {
	c := fromFunctionCall(&genai.FunctionCall{Name: "search", Args: map[string]any{"input": "go"}})
	if c.Input != "go" {
		t.Fatalf("input=%q", c.Input)
	}
	c = fromFunctionCall(&genai.FunctionCall{Name: "save_as_json", Args: map[string]any{"data": "x"}})
	if c.Input != `{"data":"x"}` {
		t.Fatalf("input=%q", c.Input)
	}
}

func TestFactoryRequiresKey(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "")
	_, err := Factory(context.Background(), map[string]any{})
	if !errmodel.HasCode(err, errmodel.CodeMissingAPIKey) {
		t.Fatalf("err=%v", err)
	}
}
