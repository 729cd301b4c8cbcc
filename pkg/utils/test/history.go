package testutils

import (
	"context"
	"fmt"
	"sync"

	"github.com/docuchatco/docuchat/pkg/history"
)

// MockStore is a test history store that records writes and returns
// configurable similarity results.
type MockStore struct {
	mu sync.Mutex

	// Appended accumulates all turns passed to Append.
	Appended []history.Turn

	// SimilarResults is returned by Similar for any query.
	SimilarResults []history.ScoredTurn

	// Users records every user passed to EnsureUser.
	Users []string

	// FailAppend causes Append to return an error.
	FailAppend bool

	// FailSimilar causes Similar to return an error.
	FailSimilar bool
}

// NewMockStore creates a new mock history store.
func NewMockStore() *MockStore {
	return &MockStore{}
}

func (m *MockStore) EnsureUser(_ context.Context, user string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Users = append(m.Users, user)
	return nil
}

func (m *MockStore) Append(_ context.Context, turn *history.Turn) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailAppend {
		return fmt.Errorf("mock append failure")
	}
	m.Appended = append(m.Appended, *turn)
	return nil
}

func (m *MockStore) Similar(_ context.Context, _ string, _ []float32, k int) ([]history.ScoredTurn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailSimilar {
		return nil, fmt.Errorf("mock similarity failure")
	}
	if len(m.SimilarResults) > k {
		return m.SimilarResults[:k], nil
	}
	return m.SimilarResults, nil
}

func (m *MockStore) All(_ context.Context, user string) ([]history.Turn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	turns := make([]history.Turn, 0, len(m.Appended))
	for _, t := range m.Appended {
		if t.User == user {
			turns = append(turns, t)
		}
	}
	if len(turns) == 0 {
		return nil, history.ErrNotFound{User: user}
	}
	return turns, nil
}

// AppendedTurns returns a snapshot of everything written so far. Safe to
// call while an async persister is still running.
func (m *MockStore) AppendedTurns() []history.Turn {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]history.Turn, len(m.Appended))
	copy(out, m.Appended)
	return out
}

func (m *MockStore) Close() error {
	return nil
}
