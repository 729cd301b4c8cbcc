// Package agent implements the semantic chat-deduplication and
// tool-orchestration loop: embed an incoming user message, short-circuit
// through per-user history when a near-duplicate prior exchange exists,
// otherwise stream a model response while executing the tool calls it
// requests, and persist the completed turn for future similarity lookups.
package agent

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/docuchatco/docuchat/pkg/embeddings"
	"github.com/docuchatco/docuchat/pkg/eventstream"
	"github.com/docuchatco/docuchat/pkg/history"
	"github.com/docuchatco/docuchat/pkg/llm"
	"github.com/docuchatco/docuchat/pkg/tools"
)

// Final is the terminal outcome of one turn.
type Final struct {
	// Answer is the complete assistant answer.
	Answer string `json:"answer"`

	// Cached is true when the answer was replayed from a prior similar turn.
	Cached bool `json:"cached"`

	// Score is the gate similarity score on cache hits.
	Score float32 `json:"score,omitempty"`

	// ToolRounds is the number of tool invocations made during the turn.
	ToolRounds int `json:"tool_rounds"`
}

// Fragment is one element of a turn's output stream. Streaming turns emit a
// sequence of text fragments followed by exactly one terminal fragment
// carrying either Final or Err.
type Fragment struct {
	Text  string
	Final *Final
	Err   error
}

// Config is the configuration options for an Agent.
type Config struct {
	// Streamer issues streaming chat completions.
	Streamer llm.Streamer

	// Registry discovers and invokes tools. Optional; without it the
	// model is offered no tools.
	Registry tools.Registry

	// Store is the durable per-user conversation history.
	Store history.Store

	// Embedder generates user message embeddings for the gate and persister.
	Embedder embeddings.Embedder

	// Publisher optionally receives turn events after persistence.
	Publisher eventstream.Publisher

	// Model is the chat completion model name.
	Model string

	// SystemPrompt, when set, is prepended to every turn's context.
	SystemPrompt string

	// SimilarityThreshold is the gate's cosine similarity cutoff.
	SimilarityThreshold float64

	// TopK is how many nearest prior turns the gate considers.
	TopK uint

	// MaxToolRounds bounds model round-trips per turn.
	MaxToolRounds uint

	// NumWorkers and QueueSize tune the persister pool.
	NumWorkers uint
	QueueSize  uint

	// Logger is the provided zap logger
	Logger *zap.Logger
}

// Agent ties the gate, orchestrator, and persister together into the
// ask-a-question entry point. Safe for concurrent use: each turn owns its
// working context and the persister serializes writes through its pool.
type Agent struct {
	config       *Config
	gate         *Gate
	orchestrator *Orchestrator
	persister    *Persister
	logger       *zap.Logger
}

// New creates an Agent from the given config.
func New(c *Config) (*Agent, error) {
	if c.Streamer == nil {
		return nil, errors.New("agent requires a streamer")
	}
	if c.Store == nil {
		return nil, errors.New("agent requires a history store")
	}
	if c.Embedder == nil {
		return nil, errors.New("agent requires an embedder")
	}
	if c.Logger == nil {
		return nil, errors.New("agent requires a logger")
	}

	persister, err := NewPersister(&PersisterConfig{
		Store:      c.Store,
		Embedder:   c.Embedder,
		Publisher:  c.Publisher,
		Model:      c.Model,
		NumWorkers: c.NumWorkers,
		QueueSize:  c.QueueSize,
		Logger:     c.Logger,
	})
	if err != nil {
		return nil, err
	}

	return &Agent{
		config:       c,
		gate:         NewGate(c.Store, c.Embedder, c.SimilarityThreshold, int(c.TopK), c.Logger),
		orchestrator: NewOrchestrator(c.Streamer, c.Registry, c.Model, int(c.MaxToolRounds), c.Logger),
		persister:    persister,
		logger:       c.Logger,
	}, nil
}

// Ask processes one turn for the given user and message. The returned
// channel yields text fragments as they arrive and is closed after a single
// terminal fragment. Cancelling ctx abandons the turn without persisting.
func (a *Agent) Ask(ctx context.Context, user, message string) <-chan Fragment {
	out := make(chan Fragment)

	go func() {
		defer close(out)
		a.processTurn(ctx, user, message, out)
	}()

	return out
}

func (a *Agent) processTurn(ctx context.Context, user, message string, out chan<- Fragment) {
	started := time.Now().UTC()

	gateRes := a.gate.Check(ctx, user, message)
	if gateRes.Hit {
		if !a.send(ctx, out, Fragment{Text: gateRes.Answer}) {
			return
		}

		a.persister.Enqueue(PersistJob{
			User:             user,
			UserMessage:      message,
			AssistantMessage: gateRes.Answer,
			Embedding:        gateRes.Embedding,
			Cached:           true,
			Score:            gateRes.Score,
			StartedAt:        started,
		})

		a.send(ctx, out, Fragment{Final: &Final{
			Answer: gateRes.Answer,
			Cached: true,
			Score:  gateRes.Score,
		}})
		return
	}

	descriptors := a.listTools(ctx)

	messages := make([]llm.Message, 0, 2)
	if a.config.SystemPrompt != "" {
		messages = append(messages, llm.SystemMessage(a.config.SystemPrompt))
	}
	messages = append(messages, llm.UserMessage(message))

	answer, rounds, err := a.orchestrator.Run(ctx, messages, descriptors, func(delta string) {
		a.send(ctx, out, Fragment{Text: delta})
	})
	if err != nil {
		a.logger.Error("turn failed",
			zap.String("user", user),
			zap.Error(err),
		)
		a.send(ctx, out, Fragment{Err: err})
		return
	}

	a.persister.Enqueue(PersistJob{
		User:             user,
		UserMessage:      message,
		AssistantMessage: answer,
		Embedding:        gateRes.Embedding,
		ToolRounds:       rounds,
		StartedAt:        started,
	})

	a.send(ctx, out, Fragment{Final: &Final{
		Answer:     answer,
		ToolRounds: rounds,
	}})
}

// send delivers a fragment unless the caller has gone away.
func (a *Agent) send(ctx context.Context, out chan<- Fragment, f Fragment) bool {
	select {
	case out <- f:
		return true
	case <-ctx.Done():
		return false
	}
}

// listTools fetches tool descriptors, absorbing failures into an empty set
// so a broken tool server degrades to plain chat.
func (a *Agent) listTools(ctx context.Context) []tools.Descriptor {
	if a.config.Registry == nil {
		return nil
	}

	descriptors, err := a.config.Registry.List(ctx)
	if err != nil {
		a.logger.Warn("listing tools failed, continuing without tools",
			zap.Error(err),
		)
		return nil
	}

	return descriptors
}

// History returns every persisted turn for the user, oldest first. A user
// with no partition yet yields an empty slice.
func (a *Agent) History(ctx context.Context, user string) ([]history.Turn, error) {
	turns, err := a.config.Store.All(ctx, user)
	if err != nil {
		var notFound history.ErrNotFound
		if errors.As(err, &notFound) {
			return []history.Turn{}, nil
		}
		return nil, err
	}

	return turns, nil
}

// Close drains the persister pool. Call during graceful shutdown after the
// serving surface has stopped accepting turns.
func (a *Agent) Close() {
	a.persister.Close()
}
