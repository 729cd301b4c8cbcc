package mcptools

import (
	"context"
	"sync"

	"github.com/docuchatco/docuchat/pkg/tools"
)

// LazyRegistry defers the MCP session dial until the first List or Call.
// The combined server mounts its tool endpoint on the same listener as the
// chat API, so a connect-at-construction registry would dial an address
// that is not yet listening. Failed dials are retried on the next use.
type LazyRegistry struct {
	config Config

	mu       sync.Mutex
	registry *Registry
}

// NewLazyRegistry creates a registry that connects on first use.
func NewLazyRegistry(c Config) *LazyRegistry {
	return &LazyRegistry{config: c}
}

// get returns the connected registry, dialing if needed.
func (l *LazyRegistry) get(ctx context.Context) (*Registry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.registry != nil {
		return l.registry, nil
	}

	registry, err := Connect(ctx, l.config)
	if err != nil {
		return nil, err
	}

	l.registry = registry
	return registry, nil
}

// List returns the descriptors of every available tool.
func (l *LazyRegistry) List(ctx context.Context) ([]tools.Descriptor, error) {
	registry, err := l.get(ctx)
	if err != nil {
		return nil, err
	}
	return registry.List(ctx)
}

// Call invokes the named tool with the given argument record.
func (l *LazyRegistry) Call(ctx context.Context, name string, args map[string]any) (*tools.Result, error) {
	registry, err := l.get(ctx)
	if err != nil {
		return nil, err
	}
	return registry.Call(ctx, name, args)
}

// Close releases the underlying session, if one was ever established.
func (l *LazyRegistry) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.registry == nil {
		return nil
	}

	err := l.registry.Close()
	l.registry = nil
	return err
}
