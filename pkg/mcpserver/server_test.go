package mcpserver

import (
	"context"
	"errors"
	"testing"

	mcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/wilhg/sagebot/pkg/agent"
)

func connect(t *testing.T, reg *agent.Registry) *mcp.ClientSession {
	t.Helper()
	srv, err := New(reg, WithImplementation("sagebot-test", "test"))
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	clientT, serverT := mcp.NewInMemoryTransports()
	ss, err := srv.Connect(ctx, serverT)
	if err != nil {
		cancel()
		t.Fatalf("server connect: %v", err)
	}
	client := mcp.NewClient(&mcp.Implementation{Name: "client", Version: "test"}, nil)
	cs, err := client.Connect(context.Background(), clientT, nil)
	if err != nil {
		cancel()
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() {
		_ = cs.Close()
		_ = ss.Close()
		cancel()
	})
	return cs
}

func text(res *mcp.CallToolResult) string {
	for _, c := range res.Content {
		if tc, ok := c.(*mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestServer_ListAndCall(t *testing.T) {
	reg, err := agent.NewRegistry(
		agent.Func{ToolName: "echo", Desc: "echoes", Fn: func(_ context.Context, in string) (string, error) { return "echo: " + in, nil }},
		agent.Func{ToolName: "broken", Desc: "fails", Fn: func(context.Context, string) (string, error) { return "", errors.New("nope") }},
	)
	if err != nil {
		t.Fatal(err)
	}
	cs := connect(t, reg)
	ctx := context.Background()

	list, err := cs.ListTools(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(list.Tools) != 2 {
		t.Fatalf("tools=%d", len(list.Tools))
	}
	names := map[string]string{}
	for _, tl := range list.Tools {
		names[tl.Name] = tl.Description
	}
	if names["echo"] != "echoes" || names["broken"] != "fails" {
		t.Fatalf("tools=%v", names)
	}

	res, err := cs.CallTool(ctx, &mcp.CallToolParams{Name: "echo", Arguments: map[string]any{"input": "hi"}})
	if err != nil {
		t.Fatal(err)
	}
	if res.IsError || text(res) != "echo: hi" {
		t.Fatalf("res=%+v text=%q", res, text(res))
	}

	res, err = cs.CallTool(ctx, &mcp.CallToolParams{Name: "broken", Arguments: map[string]any{"input": "x"}})
	if err != nil {
		t.Fatal(err)
	}
	if !res.IsError || text(res) != "Error: tool broken failed: nope" {
		t.Fatalf("res=%+v text=%q", res, text(res))
	}
}

func TestNew_NilRegistry(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Fatal("want error")
	}
}
