package docstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/docuchatco/docuchat/pkg/embeddings"
	"github.com/docuchatco/docuchat/pkg/utils"
)

// ServerConfig holds the collaborators for the document tool server.
type ServerConfig struct {
	// Store is the document database the tools operate on.
	Store *Store

	// Embedder converts vector_search query text to an embedding.
	// Optional; without it the vector_search tool is not registered.
	Embedder embeddings.Embedder

	// Logger is the configured zap logger
	Logger *zap.Logger
}

// Server exposes the document store helpers as MCP tools over streamable HTTP.
type Server struct {
	config    ServerConfig
	mcpServer *mcp.Server
	handler   *mcp.StreamableHTTPHandler
}

// NewServer creates a new MCP server with the document database tools.
func NewServer(c ServerConfig) (*Server, error) {
	if c.Store == nil {
		return nil, errors.New("document store is required")
	}
	if c.Logger == nil {
		return nil, errors.New("logger is required")
	}

	s := &Server{
		config: c,
	}

	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    "docuchat",
			Version: utils.Version,
		},
		&mcp.ServerOptions{},
	)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        "list_databases",
		Description: "List the names of all databases in the document store.",
	}, s.handleListDatabases)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        "list_collections",
		Description: "List the names of all collections in a database.",
	}, s.handleListCollections)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        "get_count",
		Description: "Count the documents in a collection.",
	}, s.handleCount)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        "get_document_by_field",
		Description: "Fetch documents whose field equals the given value, optionally projecting a subset of fields.",
	}, s.handleFindByField)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        "get_schema",
		Description: "Infer a collection's schema (field names and types) from a sampled document.",
	}, s.handleSchema)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        "sample_documents",
		Description: "Return a few randomly sampled documents from a collection.",
	}, s.handleSample)

	// Vector search needs an embedder to turn query text into a vector.
	if c.Embedder != nil {
		mcp.AddTool(mcpServer, &mcp.Tool{
			Name:        "vector_search",
			Description: "Find the documents most semantically similar to a text query, searching over a stored embedding field.",
		}, s.handleVectorSearch)
	}

	s.mcpServer = mcpServer

	// Create a streamable HTTP net/http handler for stateless operations
	s.handler = mcp.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcp.Server {
			return mcpServer
		},
		&mcp.StreamableHTTPOptions{
			Stateless: true,
		},
	)

	return s, nil
}

// Handler returns the HTTP handler for the MCP server.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ToolOutput is the payload every document tool returns: the result plus the
// query that produced it.
type ToolOutput struct {
	Result any    `json:"result"`
	Query  string `json:"query"`
}

// success wraps a helper result in the MCP result envelope, serializing the
// structured output as JSON in a TextContent block per the MCP spec's
// backwards-compatibility guidance.
func (s *Server) success(result any, query string) (*mcp.CallToolResult, ToolOutput, error) {
	output := ToolOutput{Result: result, Query: query}

	jsonBytes, err := json.Marshal(output)
	if err != nil {
		s.config.Logger.Error("failed to marshal tool output", zap.Error(err))
		return s.failure(query, fmt.Errorf("serializing result: %w", err))
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(jsonBytes)},
		},
	}, output, nil
}

// failure reports a helper error as a tool-level error result rather than a
// protocol error, so the model can recover conversationally.
func (s *Server) failure(query string, err error) (*mcp.CallToolResult, ToolOutput, error) {
	s.config.Logger.Error("document tool failed",
		zap.String("query", query),
		zap.Error(err),
	)

	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf("Query %q failed: %v", query, err)},
		},
	}, ToolOutput{Query: query}, nil
}
