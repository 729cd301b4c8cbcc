// Package api provides the HTTP surface of the docuchat system: the chat
// endpoint (SSE streaming out), per-user history retrieval, and the mounted
// MCP tool handler.
package api

// Config is the API server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8081")
	ListenAddr string
}
