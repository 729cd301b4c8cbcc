package llm

import "encoding/json"

// Tool describes a callable function advertised to the model. Parameters is
// the raw JSON schema for the tool's arguments, passed through verbatim from
// the registry that discovered it.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// ChatRequest is a single streaming chat completion request.
//
// The agent issues every request with Temperature zero and parallel tool
// calls disabled so that the response stream carries at most one tool call
// per round. Providers translate this into their native wire format.
type ChatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Tools    []Tool    `json:"tools,omitempty"`

	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
}
