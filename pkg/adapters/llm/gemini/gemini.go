package gemini

import (
	"context"
	"encoding/json"
	"os"

	genai "google.golang.org/genai"

	"github.com/wilhg/sagebot/pkg/adapters/llm"
	"github.com/wilhg/sagebot/pkg/errmodel"
)

const defaultModel = "gemini-2.5-flash-lite"

type clientWrapper struct {
	client *genai.Client
	model  string
}

func (c *clientWrapper) Name() string { return "gemini" }

func (c *clientWrapper) Generate(ctx context.Context, req llm.Request) (llm.GenerateResult, error) {
	model := c.model
	if v, ok := req.Options["model"].(string); ok && v != "" {
		model = v
	}
	contents, system := toContents(req.Messages)
	cfg := &genai.GenerateContentConfig{SystemInstruction: system}
	if len(req.Tools) > 0 {
		cfg.Tools = []*genai.Tool{{FunctionDeclarations: toDeclarations(req.Tools)}}
	}
	if v, ok := req.Options["temperature"].(float64); ok {
		t := float32(v)
		cfg.Temperature = &t
	}

	res, err := c.client.Models.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		return llm.GenerateResult{}, err
	}
	out := llm.GenerateResult{Model: model}
	if u := res.UsageMetadata; u != nil {
		out.PromptTokens = int(u.PromptTokenCount)
		out.OutputTokens = int(u.CandidatesTokenCount)
		out.TotalTokens = int(u.TotalTokenCount)
	}
	if calls := res.FunctionCalls(); len(calls) > 0 {
		out.ToolCall = fromFunctionCall(calls[0])
		return out, nil
	}
	out.Text = res.Text()
	return out, nil
}

// toContents maps the conversation to Gemini turns; system messages become the system instruction.
func toContents(msgs []llm.Message) ([]*genai.Content, *genai.Content) {
	var system *genai.Content
	contents := make([]*genai.Content, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case llm.RoleSystem:
			if system == nil {
				system = &genai.Content{}
			}
			system.Parts = append(system.Parts, &genai.Part{Text: m.Content})
		case llm.RoleAssistant:
			if m.ToolCall != nil {
				contents = append(contents, &genai.Content{Role: string(genai.RoleModel), Parts: []*genai.Part{{
					FunctionCall: &genai.FunctionCall{
						ID:   m.ToolCall.ID,
						Name: m.ToolCall.Name,
						Args: map[string]any{llm.ToolInputParam: m.ToolCall.Input},
					},
				}}})
				continue
			}
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		case llm.RoleTool:
			contents = append(contents, &genai.Content{Role: string(genai.RoleUser), Parts: []*genai.Part{{
				FunctionResponse: &genai.FunctionResponse{
					ID:       m.ToolCallID,
					Name:     m.ToolName,
					Response: map[string]any{"output": m.Content},
				},
			}}})
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}
	return contents, system
}

func toDeclarations(tools []llm.ToolSpec) []*genai.FunctionDeclaration {
	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					llm.ToolInputParam: {Type: genai.TypeString, Description: "text input for the tool"},
				},
				Required: []string{llm.ToolInputParam},
			},
		})
	}
	return decls
}

func fromFunctionCall(fc *genai.FunctionCall) *llm.ToolCall {
	call := &llm.ToolCall{ID: fc.ID, Name: fc.Name}
	if s, ok := fc.Args[llm.ToolInputParam].(string); ok {
		call.Input = s
	} else if len(fc.Args) > 0 {
		b, _ := json.Marshal(fc.Args)
		call.Input = string(b)
	}
	return call
}

// Factory creates a Gemini LLM client. The key comes from cfg.api_key, then
// GEMINI_API_KEY, then GOOGLE_API_KEY.
func Factory(ctx context.Context, cfg map[string]any) (llm.LLM, error) { // nolint: revive
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		apiKey = os.Getenv("GOOGLE_API_KEY")
	}
	if v, ok := cfg["api_key"].(string); ok && v != "" {
		apiKey = v
	}
	if apiKey == "" {
		return nil, errmodel.Policy(errmodel.CodeMissingAPIKey, "gemini: missing API key; set GEMINI_API_KEY or GOOGLE_API_KEY", map[string]any{"provider": "gemini"})
	}
	// Prefer Gemini API backend
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, err
	}
	model := defaultModel
	if v, ok := cfg["model"].(string); ok && v != "" {
		model = v
	}
	return &clientWrapper{client: client, model: model}, nil
}
