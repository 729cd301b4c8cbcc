package testutils

import (
	"context"
	"fmt"

	"github.com/docuchatco/docuchat/pkg/tools"
)

// ToolCall records one invocation made through the mock registry.
type ToolCall struct {
	Name string
	Args map[string]any
}

// MockRegistry is a test tool registry with scripted results per tool name.
type MockRegistry struct {
	// Tools is returned by List.
	Tools []tools.Descriptor

	// Results maps tool name to the result Call returns for it.
	Results map[string]*tools.Result

	// Calls accumulates every invocation in order.
	Calls []ToolCall

	// FailCall causes Call to return a transport error.
	FailCall bool
}

// NewMockRegistry creates a new mock tool registry.
func NewMockRegistry() *MockRegistry {
	return &MockRegistry{
		Results: make(map[string]*tools.Result),
	}
}

func (m *MockRegistry) List(_ context.Context) ([]tools.Descriptor, error) {
	return m.Tools, nil
}

func (m *MockRegistry) Call(_ context.Context, name string, args map[string]any) (*tools.Result, error) {
	m.Calls = append(m.Calls, ToolCall{Name: name, Args: args})

	if m.FailCall {
		return nil, fmt.Errorf("mock transport failure calling %s", name)
	}

	if res, ok := m.Results[name]; ok {
		return res, nil
	}

	return nil, fmt.Errorf("%w: %s", tools.ErrToolNotFound, name)
}

func (m *MockRegistry) Close() error {
	return nil
}
