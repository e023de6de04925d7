package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	oa "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"github.com/wilhg/sagebot/pkg/adapters/llm"
	"github.com/wilhg/sagebot/pkg/errmodel"
)

const (
	defaultModel = "gpt-5-nano"
)

type clientWrapper struct {
	client oa.Client
	model  string
}

func (c *clientWrapper) Name() string { return "openai" }

func (c *clientWrapper) Generate(ctx context.Context, req llm.Request) (llm.GenerateResult, error) {
	model := c.model
	if v, ok := req.Options["model"].(string); ok && v != "" {
		model = v
	}

	params := oa.ChatCompletionNewParams{
		Model:    shared.ChatModel(model),
		Messages: toMessages(req.Messages),
	}
	if len(req.Tools) > 0 {
		params.Tools = toTools(req.Tools)
	}
	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return llm.GenerateResult{}, err
	}
	usage := resp.Usage
	out := llm.GenerateResult{
		PromptTokens: int(usage.PromptTokens),
		OutputTokens: int(usage.CompletionTokens),
		TotalTokens:  int(usage.TotalTokens),
		Model:        model,
	}
	if len(resp.Choices) == 0 {
		return out, nil
	}
	msg := resp.Choices[0].Message
	for _, tc := range msg.ToolCalls {
		if tc.Function.Name == "" {
			continue
		}
		out.ToolCall = &llm.ToolCall{ID: tc.ID, Name: tc.Function.Name, Input: inputFromArguments(tc.Function.Arguments)}
		return out, nil
	}
	out.Text = msg.Content
	return out, nil
}

// toMessages flattens tool turns into plain text so the history never depends on call ids.
func toMessages(messages []llm.Message) []oa.ChatCompletionMessageParamUnion {
	mm := make([]oa.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case llm.RoleUser:
			mm = append(mm, oa.UserMessage(m.Content))
		case llm.RoleSystem:
			mm = append(mm, oa.SystemMessage(m.Content))
		case llm.RoleAssistant:
			if m.ToolCall != nil {
				mm = append(mm, oa.AssistantMessage(fmt.Sprintf("Calling tool %s with input: %s", m.ToolCall.Name, m.ToolCall.Input)))
				continue
			}
			mm = append(mm, oa.AssistantMessage(m.Content))
		case llm.RoleTool:
			mm = append(mm, oa.UserMessage(fmt.Sprintf("Tool %s returned:\n%s", m.ToolName, m.Content)))
		default:
			mm = append(mm, oa.UserMessage(m.Content))
		}
	}
	return mm
}

func toTools(tools []llm.ToolSpec) []oa.ChatCompletionToolUnionParam {
	out := make([]oa.ChatCompletionToolUnionParam, 0, len(tools))
	for _, t := range tools {
		out = append(out, oa.ChatCompletionFunctionTool(shared.FunctionDefinitionParam{
			Name:        t.Name,
			Description: oa.String(t.Description),
			Parameters: shared.FunctionParameters{
				"type": "object",
				"properties": map[string]any{
					llm.ToolInputParam: map[string]any{"type": "string", "description": "text input for the tool"},
				},
				"required": []string{llm.ToolInputParam},
			},
		}))
	}
	return out
}

// inputFromArguments extracts the "input" argument, or passes the raw arguments through.
func inputFromArguments(args string) string {
	var m map[string]any
	if err := json.Unmarshal([]byte(args), &m); err != nil {
		return args
	}
	if s, ok := m[llm.ToolInputParam].(string); ok {
		return s
	}
	return args
}

// Factory registers the OpenAI LLM provider: cfg keys: api_key, model
func Factory(ctx context.Context, cfg map[string]any) (llm.LLM, error) { // nolint: revive
	_ = ctx
	apiKey := os.Getenv("OPENAI_API_KEY")
	if v, ok := cfg["api_key"].(string); ok && v != "" {
		apiKey = v
	}
	if apiKey == "" {
		return nil, errmodel.Policy(errmodel.CodeMissingAPIKey, "openai: missing API key; set OPENAI_API_KEY", map[string]any{"provider": "openai"})
	}
	model := defaultModel
	if v, ok := cfg["model"].(string); ok && v != "" {
		model = v
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if v, ok := cfg["base_url"].(string); ok && v != "" {
		opts = append(opts, option.WithBaseURL(v))
	}
	c := oa.NewClient(opts...)
	return &clientWrapper{client: c, model: model}, nil
}
