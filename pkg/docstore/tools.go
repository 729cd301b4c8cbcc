package docstore

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// ListDatabasesInput represents the input arguments for the list_databases tool.
type ListDatabasesInput struct{}

func (s *Server) handleListDatabases(ctx context.Context, _ *mcp.CallToolRequest, _ ListDatabasesInput) (*mcp.CallToolResult, ToolOutput, error) {
	names, query, err := s.config.Store.ListDatabases(ctx)
	if err != nil {
		return s.failure(query, err)
	}

	return s.success(names, query)
}

// ListCollectionsInput represents the input arguments for the list_collections tool.
type ListCollectionsInput struct {
	Database string `json:"database" jsonschema:"the database to list collections from"`
}

func (s *Server) handleListCollections(ctx context.Context, _ *mcp.CallToolRequest, input ListCollectionsInput) (*mcp.CallToolResult, ToolOutput, error) {
	names, query, err := s.config.Store.ListCollections(ctx, input.Database)
	if err != nil {
		return s.failure(query, err)
	}

	return s.success(names, query)
}

// CountInput represents the input arguments for the get_count tool.
type CountInput struct {
	Database   string `json:"database" jsonschema:"the database holding the collection"`
	Collection string `json:"collection" jsonschema:"the collection to count documents in"`
}

func (s *Server) handleCount(ctx context.Context, _ *mcp.CallToolRequest, input CountInput) (*mcp.CallToolResult, ToolOutput, error) {
	n, query, err := s.config.Store.Count(ctx, input.Database, input.Collection)
	if err != nil {
		return s.failure(query, err)
	}

	return s.success(n, query)
}

// FindByFieldInput represents the input arguments for the get_document_by_field tool.
type FindByFieldInput struct {
	Database   string   `json:"database" jsonschema:"the database holding the collection"`
	Collection string   `json:"collection" jsonschema:"the collection to search"`
	Field      string   `json:"field" jsonschema:"the document field to match on"`
	Value      string   `json:"value" jsonschema:"the value the field must equal"`
	Projection []string `json:"projection,omitempty" jsonschema:"optional list of fields to include in the results"`
}

func (s *Server) handleFindByField(ctx context.Context, _ *mcp.CallToolRequest, input FindByFieldInput) (*mcp.CallToolResult, ToolOutput, error) {
	docs, query, err := s.config.Store.FindByField(ctx, input.Database, input.Collection, input.Field, input.Value, input.Projection)
	if err != nil {
		return s.failure(query, err)
	}

	return s.success(docs, query)
}

// SchemaInput represents the input arguments for the get_schema tool.
type SchemaInput struct {
	Database   string `json:"database" jsonschema:"the database holding the collection"`
	Collection string `json:"collection" jsonschema:"the collection to infer the schema of"`
}

func (s *Server) handleSchema(ctx context.Context, _ *mcp.CallToolRequest, input SchemaInput) (*mcp.CallToolResult, ToolOutput, error) {
	schema, query, err := s.config.Store.Schema(ctx, input.Database, input.Collection)
	if err != nil {
		return s.failure(query, err)
	}

	return s.success(schema, query)
}

// SampleInput represents the input arguments for the sample_documents tool.
type SampleInput struct {
	Database   string `json:"database" jsonschema:"the database holding the collection"`
	Collection string `json:"collection" jsonschema:"the collection to sample from"`
	N          int    `json:"n,omitempty" jsonschema:"number of documents to sample (default: 3)"`
}

func (s *Server) handleSample(ctx context.Context, _ *mcp.CallToolRequest, input SampleInput) (*mcp.CallToolResult, ToolOutput, error) {
	n := input.N
	if n <= 0 {
		n = 3
	}

	docs, query, err := s.config.Store.Sample(ctx, input.Database, input.Collection, n)
	if err != nil {
		return s.failure(query, err)
	}

	return s.success(docs, query)
}

// VectorSearchInput represents the input arguments for the vector_search tool.
type VectorSearchInput struct {
	Database   string `json:"database" jsonschema:"the database holding the collection"`
	Collection string `json:"collection" jsonschema:"the collection to search"`
	Query      string `json:"query" jsonschema:"the text to search for semantically"`
	Path       string `json:"path,omitempty" jsonschema:"the embedding field searched over (default: embedding)"`
	TopK       int    `json:"top_k,omitempty" jsonschema:"number of results to return (default: 5)"`
}

func (s *Server) handleVectorSearch(ctx context.Context, _ *mcp.CallToolRequest, input VectorSearchInput) (*mcp.CallToolResult, ToolOutput, error) {
	topK := input.TopK
	if topK <= 0 {
		topK = 5
	}

	path := input.Path
	if path == "" {
		path = "embedding"
	}

	embedding, err := s.config.Embedder.Embed(ctx, input.Query)
	if err != nil {
		return s.failure("embedding query text", err)
	}

	docs, query, err := s.config.Store.VectorSearch(ctx, input.Database, input.Collection, embedding, path, topK)
	if err != nil {
		return s.failure(query, err)
	}

	return s.success(docs, query)
}
