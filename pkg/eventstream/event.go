package eventstream

import (
	"time"

	"github.com/docuchatco/docuchat/pkg/history"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeTurnPersisted is emitted after a conversation turn is persisted.
	EventTypeTurnPersisted = "docuchat.turn.persisted"
)

// TurnPersistedEvent is a transport-neutral event payload for a persisted turn.
type TurnPersistedEvent struct {
	SchemaVersion int          `json:"schema_version"`
	EventType     string       `json:"event_type"`
	EventID       string       `json:"event_id"`
	EmittedAt     time.Time    `json:"emitted_at"`
	Source        EventSource  `json:"source"`
	TurnMeta      TurnMeta     `json:"turn_meta"`
	Turn          history.Turn `json:"turn"`
}

// EventSource identifies where the turn originated.
type EventSource struct {
	Project string `json:"project,omitempty"`
	Model   string `json:"model"`
}

// TurnMeta captures how the turn's answer was produced.
type TurnMeta struct {
	// Cached is true when the answer was replayed from a prior similar
	// turn instead of being freshly generated.
	Cached bool `json:"cached"`

	// SimilarityScore is the gate score of the best prior match, when one
	// was found.
	SimilarityScore float32 `json:"similarity_score,omitempty"`

	// ToolRounds is the number of tool invocations made while generating
	// the answer. Always zero for cached turns.
	ToolRounds int `json:"tool_rounds"`

	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
	DurationMs  int64     `json:"duration_ms"`
}
