// Package mcpclient imports tools from an external MCP server so the research
// loop can call them like local tools.
package mcpclient

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	mcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/wilhg/sagebot/pkg/adapters/llm"
	"github.com/wilhg/sagebot/pkg/agent"
)

// Client is a connected MCP client session.
type Client struct {
	session *mcp.ClientSession
}

// Connect opens a session over t.
func Connect(ctx context.Context, t mcp.Transport) (*Client, error) {
	c := mcp.NewClient(&mcp.Implementation{Name: "sagebot", Version: "dev"}, nil)
	s, err := c.Connect(ctx, t, nil)
	if err != nil {
		return nil, fmt.Errorf("mcp connect: %w", err)
	}
	return &Client{session: s}, nil
}

// Spawn starts command (split on spaces) and connects to it over stdio.
func Spawn(ctx context.Context, command string) (*Client, error) {
	argv := strings.Fields(command)
	if len(argv) == 0 {
		return nil, errors.New("mcp command is empty")
	}
	return Connect(ctx, &mcp.CommandTransport{Command: exec.Command(argv[0], argv[1:]...)})
}

// Close ends the session.
func (c *Client) Close() error { return c.session.Close() }

// Tools lists the server's tools as agent.Tool values.
func (c *Client) Tools(ctx context.Context) ([]agent.Tool, error) {
	res, err := c.session.ListTools(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("mcp list tools: %w", err)
	}
	out := make([]agent.Tool, 0, len(res.Tools))
	for _, t := range res.Tools {
		out = append(out, &remoteTool{session: c.session, name: t.Name, desc: t.Description})
	}
	return out, nil
}

// remoteTool passes the input text as the "input" argument and joins the text content of the reply.
type remoteTool struct {
	session *mcp.ClientSession
	name    string
	desc    string
}

func (t *remoteTool) Name() string        { return t.name }
func (t *remoteTool) Description() string { return t.desc }

func (t *remoteTool) Invoke(ctx context.Context, input string) (string, error) {
	res, err := t.session.CallTool(ctx, &mcp.CallToolParams{
		Name:      t.name,
		Arguments: map[string]any{llm.ToolInputParam: input},
	})
	if err != nil {
		return "", err
	}
	var parts []string
	for _, c := range res.Content {
		if tc, ok := c.(*mcp.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	text := strings.Join(parts, "\n")
	if res.IsError {
		return "", errors.New(strings.TrimPrefix(text, agent.FailurePrefix))
	}
	return text, nil
}
