// Package mcpserver exposes the research tools over the Model Context Protocol,
// so other MCP clients can call them directly.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	mcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog/log"

	"github.com/wilhg/sagebot/pkg/adapters/llm"
	"github.com/wilhg/sagebot/pkg/agent"
)

// Server wraps an MCP server whose tools are backed by a Registry.
type Server struct {
	srv *mcp.Server
	reg *agent.Registry
}

// Option configures the Server.
type Option func(*options)

type options struct {
	name    string
	version string
}

// WithImplementation sets the name and version reported to clients.
func WithImplementation(name, version string) Option {
	return func(o *options) {
		if name != "" {
			o.name = name
		}
		if version != "" {
			o.version = version
		}
	}
}

// inputSchema is shared by every tool: one string argument.
var inputSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		llm.ToolInputParam: map[string]any{"type": "string", "description": "tool input text"},
	},
	"required": []string{llm.ToolInputParam},
}

// New creates a server exporting every tool in reg.
func New(reg *agent.Registry, opts ...Option) (*Server, error) {
	if reg == nil {
		return nil, fmt.Errorf("mcpserver: registry is nil")
	}
	o := options{name: "sagebot", version: "dev"}
	for _, opt := range opts {
		opt(&o)
	}
	s := &Server{
		srv: mcp.NewServer(&mcp.Implementation{Name: o.name, Version: o.version}, nil),
		reg: reg,
	}
	for _, spec := range reg.List() {
		s.srv.AddTool(&mcp.Tool{
			Name:        spec.Name,
			Description: spec.Description,
			InputSchema: inputSchema,
		}, s.handler(spec.Name))
	}
	return s, nil
}

func (s *Server) handler(name string) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args map[string]any
		if len(req.Params.Arguments) > 0 {
			if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
				return nil, fmt.Errorf("decode arguments: %w", err)
			}
		}
		input, _ := args[llm.ToolInputParam].(string)
		res, err := s.reg.Invoke(ctx, name, input)
		if err != nil {
			return nil, err
		}
		log.Debug().Str("tool", name).Bool("failed", res.Failed).Msg("mcpserver: call")
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: res.Output}},
			IsError: res.Failed,
		}, nil
	}
}

// MCP returns the underlying SDK server.
func (s *Server) MCP() *mcp.Server { return s.srv }

// Connect serves one session over t; the session ends when the client disconnects.
func (s *Server) Connect(ctx context.Context, t mcp.Transport) (*mcp.ServerSession, error) {
	return s.srv.Connect(ctx, t, nil)
}

// ServeStdio runs the server on stdin/stdout until the client disconnects or ctx ends.
func (s *Server) ServeStdio(ctx context.Context) error {
	return s.srv.Run(ctx, &mcp.StdioTransport{})
}
