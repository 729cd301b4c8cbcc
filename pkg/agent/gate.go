package agent

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/docuchatco/docuchat/pkg/embeddings"
	"github.com/docuchatco/docuchat/pkg/history"
)

// GateResult is the outcome of a similarity check. On a hit, Answer carries
// the prior turn's assistant message. Embedding is the query embedding when
// one could be computed, so the persister does not embed the message twice.
type GateResult struct {
	Hit       bool
	Answer    string
	Score     float32
	Embedding []float32
}

// Gate decides whether a sufficiently similar prior exchange exists for a
// user and, if so, short-circuits the model call with its cached answer.
//
// Every failure mode is absorbed into a miss: a gate problem must never
// stop a turn from being answered the slow way.
type Gate struct {
	store     history.Store
	embedder  embeddings.Embedder
	threshold float32
	topK      int
	logger    *zap.Logger
}

// NewGate creates a similarity gate. threshold is a cosine similarity in
// [-1, 1]; a prior turn scoring at or above it is considered a duplicate.
func NewGate(store history.Store, embedder embeddings.Embedder, threshold float64, topK int, logger *zap.Logger) *Gate {
	if topK < 1 {
		topK = 1
	}

	return &Gate{
		store:     store,
		embedder:  embedder,
		threshold: float32(threshold),
		topK:      topK,
		logger:    logger,
	}
}

// Check embeds the message and looks for a near-duplicate prior turn in the
// user's history. Misses are returned with the query embedding populated
// whenever embedding succeeded, hits with the cached answer and its score.
func (g *Gate) Check(ctx context.Context, user, message string) *GateResult {
	emb, err := g.embedder.Embed(ctx, message)
	if err != nil {
		if errors.Is(err, embeddings.ErrUnavailable) {
			g.logger.Warn("no embedding model configured, similarity gate disabled")
		} else {
			g.logger.Warn("embedding failed, treating as cache miss",
				zap.String("user", user),
				zap.Error(err),
			)
		}
		return &GateResult{}
	}

	scored, err := g.store.Similar(ctx, user, emb, g.topK)
	if err != nil {
		var notFound history.ErrNotFound
		if !errors.As(err, &notFound) {
			g.logger.Warn("similarity query failed, treating as cache miss",
				zap.String("user", user),
				zap.Error(err),
			)
		}
		return &GateResult{Embedding: emb}
	}

	if len(scored) == 0 {
		return &GateResult{Embedding: emb}
	}

	best := scored[0]
	if best.Score < g.threshold {
		g.logger.Debug("best prior turn below threshold",
			zap.String("user", user),
			zap.Float32("score", best.Score),
			zap.Float32("threshold", g.threshold),
		)
		return &GateResult{Embedding: emb}
	}

	g.logger.Info("similarity gate hit",
		zap.String("user", user),
		zap.String("turn_id", best.ID),
		zap.Float32("score", best.Score),
	)

	return &GateResult{
		Hit:       true,
		Answer:    best.AssistantMessage,
		Score:     best.Score,
		Embedding: emb,
	}
}
