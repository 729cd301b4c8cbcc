// Package inmemory provides a map-backed history store for tests and
// single-process development runs.
package inmemory

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/docuchatco/docuchat/pkg/history"
)

// Store keeps every user's turns in process memory. Safe for concurrent use.
type Store struct {
	mu         sync.RWMutex
	partitions map[string][]history.Turn
}

// NewStore creates an empty in-memory history store.
func NewStore() *Store {
	return &Store{
		partitions: make(map[string][]history.Turn),
	}
}

// EnsureUser creates the partition for a user if it does not already exist.
func (s *Store) EnsureUser(_ context.Context, user string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.partitions[user]; !ok {
		s.partitions[user] = nil
	}
	return nil
}

// Append writes one turn into the user's partition, creating it if absent.
func (s *Store) Append(_ context.Context, turn *history.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.partitions[turn.User] = append(s.partitions[turn.User], *turn)
	return nil
}

// Similar returns up to k turns closest to the embedding by cosine
// similarity, closest first.
func (s *Store) Similar(_ context.Context, user string, embedding []float32, k int) ([]history.ScoredTurn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	turns, ok := s.partitions[user]
	if !ok {
		return nil, history.ErrNotFound{User: user}
	}

	scored := make([]history.ScoredTurn, 0, len(turns))
	for _, turn := range turns {
		scored = append(scored, history.ScoredTurn{
			Turn:  turn,
			Score: Cosine(embedding, turn.Embedding),
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		// Recency breaks score ties.
		return scored[i].Timestamp.After(scored[j].Timestamp)
	})

	if k > 0 && len(scored) > k {
		scored = scored[:k]
	}
	return scored, nil
}

// All returns every turn in the user's partition ordered by timestamp
// ascending.
func (s *Store) All(_ context.Context, user string) ([]history.Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	turns, ok := s.partitions[user]
	if !ok {
		return nil, history.ErrNotFound{User: user}
	}

	out := make([]history.Turn, len(turns))
	copy(out, turns)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out, nil
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error {
	return nil
}

// Cosine returns the cosine similarity of two vectors. Mismatched lengths
// or zero vectors score 0.
func Cosine(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}

var _ history.Store = (*Store)(nil)
