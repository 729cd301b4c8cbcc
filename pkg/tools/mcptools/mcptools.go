// Package mcptools adapts an MCP (Model Context Protocol) server into the
// tools.Registry interface consumed by the agent.
package mcptools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/docuchatco/docuchat/pkg/tools"
	"github.com/docuchatco/docuchat/pkg/utils"
)

// Config holds connection settings for the MCP registry.
type Config struct {
	// Endpoint is the MCP server URL (streamable HTTP transport).
	Endpoint string

	// Logger is the configured zap logger.
	Logger *zap.Logger
}

// Registry is an MCP-backed tool registry. One client session is
// established per Registry; CallTool is serialized because a single MCP
// session is not safe for interleaved concurrent calls. Callers needing
// parallel sessions should construct one Registry per session.
type Registry struct {
	session *mcp.ClientSession
	logger  *zap.Logger

	// callMu serializes tool invocations over the shared session.
	callMu sync.Mutex
}

// Connect establishes an MCP client session against the configured endpoint.
func Connect(ctx context.Context, c Config) (*Registry, error) {
	if c.Endpoint == "" {
		return nil, fmt.Errorf("MCP endpoint is required")
	}

	client := mcp.NewClient(&mcp.Implementation{
		Name:    "docuchat",
		Version: utils.Version,
	}, nil)

	transport := &mcp.StreamableClientTransport{Endpoint: c.Endpoint}
	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return nil, fmt.Errorf("connecting to MCP server %s: %w", c.Endpoint, err)
	}

	c.Logger.Info("connected to MCP server",
		zap.String("endpoint", c.Endpoint),
	)

	return &Registry{
		session: session,
		logger:  c.Logger,
	}, nil
}

// List returns descriptors for every tool the server advertises.
func (r *Registry) List(ctx context.Context) ([]tools.Descriptor, error) {
	resp, err := r.session.ListTools(ctx, &mcp.ListToolsParams{})
	if err != nil {
		return nil, fmt.Errorf("listing tools: %w", err)
	}

	descriptors := make([]tools.Descriptor, 0, len(resp.Tools))
	for _, tool := range resp.Tools {
		var params json.RawMessage
		if tool.InputSchema != nil {
			params, err = json.Marshal(tool.InputSchema)
			if err != nil {
				return nil, fmt.Errorf("marshaling schema for tool %s: %w", tool.Name, err)
			}
		}

		descriptors = append(descriptors, tools.Descriptor{
			Name:        tool.Name,
			Description: tool.Description,
			Parameters:  params,
		})
	}

	r.logger.Debug("listed MCP tools",
		zap.Int("count", len(descriptors)),
	)

	return descriptors, nil
}

// Call invokes the named tool. Remote-side failures come back as
// Result.IsError; transport failures surface as errors.
func (r *Registry) Call(ctx context.Context, name string, args map[string]any) (*tools.Result, error) {
	r.callMu.Lock()
	defer r.callMu.Unlock()

	resp, err := r.session.CallTool(ctx, &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		return nil, fmt.Errorf("calling tool %s: %w", name, err)
	}

	return &tools.Result{
		IsError: resp.IsError,
		Content: flattenContent(resp.Content),
	}, nil
}

// Close terminates the client session.
func (r *Registry) Close() error {
	return r.session.Close()
}

// flattenContent concatenates the text blocks of a tool result into a
// single payload string.
func flattenContent(content []mcp.Content) string {
	var sb strings.Builder
	for _, block := range content {
		if text, ok := block.(*mcp.TextContent); ok {
			if sb.Len() > 0 {
				sb.WriteString("\n")
			}
			sb.WriteString(text.Text)
		}
	}
	return sb.String()
}

var _ tools.Registry = (*Registry)(nil)
