// Package history provides the durable per-user conversation log backing
// the similarity gate. Stores are append-only: a turn, once written, is
// never updated or deleted on the hot path.
package history

import "time"

// Turn is one completed exchange: a user message paired with the
// assistant's final answer to it.
type Turn struct {
	// ID is a unique identifier, generated at write time.
	ID string `json:"id" bson:"id"`

	// User is the partition key grouping all turns belonging to one
	// conversational participant.
	User string `json:"user" bson:"user"`

	// UserMessage is the raw text of the human input.
	UserMessage string `json:"user_message" bson:"user_message"`

	// AssistantMessage is the final answer produced for the input, whether
	// freshly generated or served from a prior similar turn.
	AssistantMessage string `json:"assistant_message" bson:"assistant_message"`

	// Embedding is the vector representation of UserMessage. Every stored
	// turn within a deployment carries the same dimensionality; mixing
	// dimensions would break distance comparisons.
	Embedding []float32 `json:"embedding" bson:"embedding"`

	// Timestamp is the creation time, used for ordering and recency
	// tie-breaking.
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`
}
