package agent

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/docuchatco/docuchat/pkg/embeddings"
	"github.com/docuchatco/docuchat/pkg/eventstream"
	"github.com/docuchatco/docuchat/pkg/history"
)

var (
	defaultNumWorkers   uint = 3
	defaultJobQueueSize uint = 256
)

// PersistJob is a unit of work for the persister to execute against.
type PersistJob struct {
	User             string
	UserMessage      string
	AssistantMessage string

	// Embedding is the user message embedding when the gate already
	// computed one; left nil, the worker embeds the message itself.
	Embedding []float32

	// Cached marks a turn answered from a prior similar turn.
	Cached bool

	// Score is the gate score of the matched prior turn on cache hits.
	Score float32

	// ToolRounds is the number of tool invocations made during the turn.
	ToolRounds int

	StartedAt time.Time
}

// PersisterConfig is the configuration options for the persister pool.
type PersisterConfig struct {
	// Store is the history backend turns are appended to.
	Store history.Store

	// Embedder generates the user message embedding when a job carries none.
	Embedder embeddings.Embedder

	// Publisher optionally receives a turn event after each persisted turn.
	Publisher eventstream.Publisher

	// Model names the chat model for the event source field.
	Model string

	// NumWorkers is the number of background workers in the pool.
	NumWorkers uint

	// QueueSize is the capacity of the buffered job channel (defaults to 256).
	QueueSize uint

	// Logger is the provided zap logger
	Logger *zap.Logger
}

// Persister processes persist jobs asynchronously via a worker pool. It
// decouples storage and event publishing from the answer hot path: the
// caller enqueues a job and moves on, and durability is best-effort.
type Persister struct {
	config *PersisterConfig
	queue  chan PersistJob
	wg     sync.WaitGroup
	logger *zap.Logger
}

// NewPersister creates a new Persister and starts its worker goroutines.
func NewPersister(c *PersisterConfig) (*Persister, error) {
	if c.NumWorkers == 0 {
		c.NumWorkers = defaultNumWorkers
	}

	if c.QueueSize == 0 {
		c.QueueSize = defaultJobQueueSize
	}

	if c.NumWorkers > uint(math.MaxInt) {
		return nil, fmt.Errorf("NumWorkers %d exceeds max int", c.NumWorkers)
	}

	p := &Persister{
		config: c,
		queue:  make(chan PersistJob, c.QueueSize),
		logger: c.Logger,
	}

	p.wg.Add(int(c.NumWorkers))
	for i := range c.NumWorkers {
		go p.worker(i)
	}

	return p, nil
}

// Enqueue submits a job for processing by the worker pool.
// Returns true if enqueued, false if the queue is full, resulting in the job being dropped
func (p *Persister) Enqueue(job PersistJob) bool {
	select {
	case p.queue <- job:
		p.logger.Debug("persist job queued",
			zap.String("user", job.User),
			zap.Bool("cached", job.Cached),
		)
		return true
	default:
		p.logger.Error("persist job not queued, queue full, job dropped",
			zap.String("user", job.User),
		)
		return false
	}
}

// Close signals workers to stop and waits for in-flight jobs to drain.
// Call this during graceful shutdown after the serving surface has stopped.
func (p *Persister) Close() {
	close(p.queue)
	p.wg.Wait()
}

// worker is the inner worker thread that continuously pulls jobs off the jobs queue
func (p *Persister) worker(id uint) {
	defer p.wg.Done()
	p.logger.Debug("persist worker started", zap.Uint("worker_id", id))

	for job := range p.queue {
		p.processJob(job)
	}

	p.logger.Debug("persist worker stopped", zap.Uint("worker_id", id))
}

// processJob embeds the user message if needed, writes the turn, and emits
// the turn event. Failures are logged, never propagated: answers were
// already delivered by the time a job runs.
func (p *Persister) processJob(job PersistJob) {
	ctx := context.Background()

	// Every stored turn carries an embedding of the configured
	// dimensionality; a turn that cannot be embedded is dropped rather
	// than written with an empty vector the drivers would reject.
	emb := job.Embedding
	if emb == nil {
		if p.config.Embedder == nil {
			p.logger.Warn("no embedder configured, dropping turn",
				zap.String("user", job.User),
			)
			return
		}

		var err error
		emb, err = p.config.Embedder.Embed(ctx, job.UserMessage)
		if err != nil {
			p.logger.Warn("failed to embed user message, dropping turn",
				zap.String("user", job.User),
				zap.Error(err),
			)
			return
		}
	}

	turn := &history.Turn{
		ID:               uuid.NewString(),
		User:             job.User,
		UserMessage:      job.UserMessage,
		AssistantMessage: job.AssistantMessage,
		Embedding:        emb,
		Timestamp:        time.Now().UTC(),
	}

	if err := p.config.Store.EnsureUser(ctx, job.User); err != nil {
		p.logger.Warn("failed to ensure user partition",
			zap.String("user", job.User),
			zap.Error(err),
		)
		return
	}

	if err := p.config.Store.Append(ctx, turn); err != nil {
		p.logger.Warn("failed to persist turn",
			zap.String("user", job.User),
			zap.String("turn_id", turn.ID),
			zap.Error(err),
		)
		return
	}

	p.logger.Info("turn persisted",
		zap.String("user", job.User),
		zap.String("turn_id", turn.ID),
		zap.Bool("cached", job.Cached),
	)

	p.publishEvent(ctx, job, turn)
}

// publishEvent emits the turn event when a publisher is configured.
func (p *Persister) publishEvent(ctx context.Context, job PersistJob, turn *history.Turn) {
	if p.config.Publisher == nil {
		return
	}

	completed := time.Now().UTC()
	started := job.StartedAt
	if started.IsZero() {
		started = completed
	}

	event := &eventstream.TurnPersistedEvent{
		SchemaVersion: eventstream.SchemaVersionV1,
		EventType:     eventstream.EventTypeTurnPersisted,
		EventID:       uuid.NewString(),
		EmittedAt:     completed,
		Source: eventstream.EventSource{
			Model: p.config.Model,
		},
		TurnMeta: eventstream.TurnMeta{
			Cached:          job.Cached,
			SimilarityScore: job.Score,
			ToolRounds:      job.ToolRounds,
			StartedAt:       started,
			CompletedAt:     completed,
			DurationMs:      completed.Sub(started).Milliseconds(),
		},
		Turn: *turn,
	}

	if err := p.config.Publisher.PublishTurn(ctx, event); err != nil {
		p.logger.Warn("failed to publish turn event",
			zap.String("turn_id", turn.ID),
			zap.Error(err),
		)
	}
}
