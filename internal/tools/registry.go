package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nebulacms/nebula/internal/chat"
)

// RegistryClient talks to an external MCP tool registry over streamable
// HTTP. Connections are established per call and torn down immediately;
// the registry is consulted rarely enough that holding a session open is
// not worth the reconnect handling.
type RegistryClient struct {
	endpoint string
	timeout  time.Duration

	// dial is replaced in tests with an in-memory transport.
	dial func(ctx context.Context) (*mcp.ClientSession, error)
}

// NewRegistryClient creates a client for the MCP registry at endpoint.
func NewRegistryClient(endpoint string, timeout time.Duration) *RegistryClient {
	c := &RegistryClient{
		endpoint: endpoint,
		timeout:  timeout,
	}
	c.dial = c.connect
	return c
}

func (c *RegistryClient) connect(ctx context.Context) (*mcp.ClientSession, error) {
	client := mcp.NewClient(&mcp.Implementation{
		Name:    "nebula",
		Version: "1.0.0",
	}, nil)

	transport := &mcp.StreamableClientTransport{Endpoint: c.endpoint}
	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return nil, fmt.Errorf("connect tool registry: %w", err)
	}
	return session, nil
}

// Definitions lists the registry's tools in completion-request form.
func (c *RegistryClient) Definitions(ctx context.Context) ([]chat.ToolDefinition, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	session, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = session.Close() }()

	result, err := session.ListTools(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("list registry tools: %w", err)
	}

	defs := make([]chat.ToolDefinition, 0, len(result.Tools))
	for _, tool := range result.Tools {
		params, err := json.Marshal(tool.InputSchema)
		if err != nil {
			continue
		}
		defs = append(defs, chat.ToolDefinition{
			Type: "function",
			Function: chat.FunctionDef{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  params,
			},
		})
	}
	return defs, nil
}

// Call invokes a registry tool and returns its concatenated text content.
func (c *RegistryClient) Call(ctx context.Context, name string, args map[string]any) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	session, err := c.dial(ctx)
	if err != nil {
		return "", err
	}
	defer func() { _ = session.Close() }()

	result, err := session.CallTool(ctx, &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		return "", fmt.Errorf("call registry tool %s: %w", name, err)
	}

	var sb strings.Builder
	for _, content := range result.Content {
		if text, ok := content.(*mcp.TextContent); ok {
			sb.WriteString(text.Text)
		}
	}
	if result.IsError {
		return "", fmt.Errorf("registry tool %s failed: %s", name, sb.String())
	}
	return sb.String(), nil
}
