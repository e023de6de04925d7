package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/wilhg/sagebot/pkg/adapters/llm"
	"github.com/wilhg/sagebot/pkg/errmodel"
)

func TestInputFromArguments(t *testing.T) {
	if got := inputFromArguments(`{"input":"golang"}`); got != "golang" {
		t.Fatalf("got=%q", got)
	}
	if got := inputFromArguments(`{"q":"x"}`); got != `{"q":"x"}` {
		t.Fatalf("got=%q", got)
	}
	if got := inputFromArguments(`not json`); got != "not json" {
		t.Fatalf("got=%q", got)
	}
}

func TestFactoryRequiresKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	_, err := Factory(context.Background(), map[string]any{})
	if !errmodel.HasCode(err, errmodel.CodeMissingAPIKey) {
		t.Fatalf("err=%v", err)
	}
}

func TestGenerateAgainstFakeServer(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("path=%s", r.URL.Path)
		}
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id":"x","object":"chat.completion","created":1,"model":"gpt-5-nano",
			"choices":[{"index":0,"finish_reason":"tool_calls","message":{"role":"assistant","content":"",
				"tool_calls":[{"id":"call_1","type":"function","function":{"name":"search","arguments":"{\"input\":\"go 1.25\"}"}}]}}],
			"usage":{"prompt_tokens":10,"completion_tokens":5,"total_tokens":15}}`))
	}))
	defer srv.Close()

	m, err := Factory(context.Background(), map[string]any{"api_key": "test", "base_url": srv.URL})
	if err != nil {
		t.Fatal(err)
	}
	res, err := m.Generate(context.Background(), llm.Request{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: "sys"},
			{Role: llm.RoleUser, Content: "what's new in go"},
			{Role: llm.RoleAssistant, ToolCall: &llm.ToolCall{Name: "wikipedia_query", Input: "Go"}},
			{Role: llm.RoleTool, ToolName: "wikipedia_query", Content: "Page: Go"},
		},
		Tools: []llm.ToolSpec{{Name: "search", Description: "web search"}},
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if res.ToolCall == nil || res.ToolCall.Name != "search" || res.ToolCall.Input != "go 1.25" || res.ToolCall.ID != "call_1" {
		t.Fatalf("res=%+v", res)
	}
	if res.TotalTokens != 15 {
		t.Fatalf("tokens=%d", res.TotalTokens)
	}
	msgs, _ := body["messages"].([]any)
	if len(msgs) != 4 {
		t.Fatalf("sent messages=%d", len(msgs))
	}
	tools, _ := body["tools"].([]any)
	if len(tools) != 1 {
		t.Fatalf("sent tools=%v", body["tools"])
	}
}
