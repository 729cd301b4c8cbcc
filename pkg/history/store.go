package history

import "context"

// ScoredTurn is a similarity search result. Score is cosine similarity
// (higher = more similar), normalized to the same scale across drivers.
type ScoredTurn struct {
	Turn

	Score float32
}

// Store is the durable per-user conversation log.
type Store interface {
	// EnsureUser creates the partition for a user if it does not already
	// exist. Idempotent; calling it for an existing user is a no-op.
	EnsureUser(ctx context.Context, user string) error

	// Append writes one turn into the user's partition. Append-only; a
	// duplicate (userMessage, assistantMessage) pair yields a second record
	// with its own id and timestamp.
	Append(ctx context.Context, turn *Turn) error

	// Similar returns up to k turns from the user's partition closest to
	// the given embedding, ordered closest first. A missing partition
	// returns ErrNotFound.
	Similar(ctx context.Context, user string, embedding []float32, k int) ([]ScoredTurn, error)

	// All returns every turn in the user's partition ordered by timestamp
	// ascending. A missing partition returns ErrNotFound.
	All(ctx context.Context, user string) ([]Turn, error)

	// Close releases any resources held by the store.
	Close() error
}
