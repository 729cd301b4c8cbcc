// Package tools defines the registry abstraction through which the agent
// discovers and invokes remote tools.
package tools

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrToolNotFound is returned when a named tool is not known to the registry.
var ErrToolNotFound = errors.New("tool not found")

// Descriptor describes a single callable tool. Parameters is the tool's
// argument JSON schema, passed through to the model verbatim.
type Descriptor struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// Result is the outcome of one tool invocation. IsError marks a
// remote-side failure reported by the tool itself, as opposed to a
// transport error which surfaces as a Go error from Call.
type Result struct {
	IsError bool   `json:"is_error,omitempty"`
	Content string `json:"content"`
}

// Registry discovers and invokes tools.
type Registry interface {
	// List returns the descriptors of every available tool.
	List(ctx context.Context) ([]Descriptor, error)

	// Call invokes the named tool with the given argument record.
	Call(ctx context.Context, name string, args map[string]any) (*Result, error)

	// Close releases the registry's connection.
	Close() error
}
