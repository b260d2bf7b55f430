package tools

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type echoInput struct {
	Text string `json:"text" jsonschema:"Text to echo back"`
}

// newRegistryServer builds an in-process MCP server with one echo tool and
// one always-failing tool.
func newRegistryServer(t *testing.T) *mcp.Server {
	t.Helper()

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "test-registry",
		Version: "1.0.0",
	}, nil)

	schema, err := jsonschema.For[echoInput](nil)
	if err != nil {
		t.Fatalf("schema: %v", err)
	}
	mcp.AddTool(server, &mcp.Tool{
		Name:        "echo",
		Description: "Echo the given text",
		InputSchema: schema,
	}, func(ctx context.Context, req *mcp.CallToolRequest, in echoInput) (*mcp.CallToolResult, any, error) {
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: "echo: " + in.Text}},
		}, nil, nil
	})
	mcp.AddTool(server, &mcp.Tool{
		Name:        "always_fails",
		Description: "Fails on every call",
		InputSchema: schema,
	}, func(ctx context.Context, req *mcp.CallToolRequest, in echoInput) (*mcp.CallToolResult, any, error) {
		return &mcp.CallToolResult{
			IsError: true,
			Content: []mcp.Content{&mcp.TextContent{Text: "broken on purpose"}},
		}, nil, nil
	})

	return server
}

// newTestRegistryClient wires a RegistryClient to the server over in-memory
// transports, dialing a fresh session per call the way the HTTP transport
// does.
func newTestRegistryClient(t *testing.T, server *mcp.Server) *RegistryClient {
	t.Helper()

	client := NewRegistryClient("http://registry.invalid/mcp", 5*time.Second)
	client.dial = func(ctx context.Context) (*mcp.ClientSession, error) {
		serverTransport, clientTransport := mcp.NewInMemoryTransports()
		if _, err := server.Connect(ctx, serverTransport, nil); err != nil {
			return nil, err
		}
		sdkClient := mcp.NewClient(&mcp.Implementation{
			Name:    "test-client",
			Version: "1.0.0",
		}, nil)
		return sdkClient.Connect(ctx, clientTransport, nil)
	}
	return client
}

func TestRegistryDefinitions(t *testing.T) {
	client := newTestRegistryClient(t, newRegistryServer(t))

	defs, err := client.Definitions(context.Background())
	if err != nil {
		t.Fatalf("Definitions: %v", err)
	}
	if len(defs) != 2 {
		t.Fatalf("expected 2 definitions, got %d", len(defs))
	}

	var echo bool
	for _, d := range defs {
		if d.Function.Name != "echo" {
			continue
		}
		echo = true
		if d.Type != "function" {
			t.Errorf("type = %q", d.Type)
		}
		if d.Function.Description != "Echo the given text" {
			t.Errorf("description = %q", d.Function.Description)
		}
		if !strings.Contains(string(d.Function.Parameters), `"text"`) {
			t.Errorf("parameters = %s", d.Function.Parameters)
		}
	}
	if !echo {
		t.Error("echo tool not advertised")
	}
}

func TestRegistryCall(t *testing.T) {
	client := newTestRegistryClient(t, newRegistryServer(t))

	content, err := client.Call(context.Background(), "echo", map[string]any{"text": "hello"})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if content != "echo: hello" {
		t.Errorf("content = %q", content)
	}
}

func TestRegistryCallToolError(t *testing.T) {
	client := newTestRegistryClient(t, newRegistryServer(t))

	_, err := client.Call(context.Background(), "always_fails", map[string]any{"text": "x"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "broken on purpose") {
		t.Errorf("error = %v", err)
	}
}
