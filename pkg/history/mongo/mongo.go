// Package mongo provides a document-database history store. Turns live in a
// single collection partitioned by the user field, with an Atlas-style
// vector index over the stored user-message embeddings.
package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/docuchatco/docuchat/pkg/history"
)

const (
	turnsCollection = "turns"
	usersCollection = "users"

	// DefaultVectorIndex is the name of the vector search index expected on
	// the turns collection.
	DefaultVectorIndex = "turns_embedding"
)

// Config holds connection settings for the mongo history store.
type Config struct {
	// URI is the mongodb connection string.
	URI string

	// Database is the database holding the conversation collections.
	Database string

	// VectorIndex overrides the vector search index name.
	// Defaults to DefaultVectorIndex if empty.
	VectorIndex string
}

// Store implements history.Store over a mongo database.
type Store struct {
	client      *mongo.Client
	db          *mongo.Database
	vectorIndex string
	logger      *zap.Logger
}

// NewStore connects to mongo and prepares the conversation collections.
func NewStore(ctx context.Context, c Config, logger *zap.Logger) (*Store, error) {
	if c.URI == "" {
		return nil, fmt.Errorf("mongo URI is required")
	}
	if c.Database == "" {
		return nil, fmt.Errorf("mongo database name is required")
	}

	vectorIndex := c.VectorIndex
	if vectorIndex == "" {
		vectorIndex = DefaultVectorIndex
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(c.URI))
	if err != nil {
		return nil, fmt.Errorf("connecting to mongo: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("pinging mongo: %w", err)
	}

	s := &Store{
		client:      client,
		db:          client.Database(c.Database),
		vectorIndex: vectorIndex,
		logger:      logger,
	}

	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}

	logger.Info("connected to mongo history store",
		zap.String("database", c.Database),
		zap.String("vector_index", vectorIndex),
	)

	return s, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	coll := s.db.Collection(turnsCollection)
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "user", Value: 1}, {Key: "timestamp", Value: 1}},
			Options: options.Index().SetName("idx_user_timestamp"),
		},
		{
			Keys:    bson.D{{Key: "id", Value: 1}},
			Options: options.Index().SetName("idx_turn_id").SetUnique(true),
		},
	}
	if _, err := coll.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("creating turn indexes: %w", err)
	}
	return nil
}

// EnsureUser registers the user partition if it does not already exist.
func (s *Store) EnsureUser(ctx context.Context, user string) error {
	_, err := s.db.Collection(usersCollection).UpdateOne(ctx,
		bson.M{"_id": user},
		bson.M{"$setOnInsert": bson.M{"created_at": time.Now()}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("ensuring user %q: %w", user, err)
	}
	return nil
}

// Append writes one turn into the user's partition, registering the user if
// absent.
func (s *Store) Append(ctx context.Context, turn *history.Turn) error {
	if err := s.EnsureUser(ctx, turn.User); err != nil {
		return err
	}

	if _, err := s.db.Collection(turnsCollection).InsertOne(ctx, turn); err != nil {
		return fmt.Errorf("appending turn %s: %w", turn.ID, err)
	}

	s.logger.Debug("appended turn",
		zap.String("turn_id", turn.ID),
		zap.String("user", turn.User),
	)

	return nil
}

// Similar returns up to k of the user's turns closest to the embedding,
// closest first. Scores are denormalized back to cosine similarity from the
// search engine's [0,1] normalization.
func (s *Store) Similar(ctx context.Context, user string, embedding []float32, k int) ([]history.ScoredTurn, error) {
	if k <= 0 {
		k = 1
	}

	if err := s.checkUser(ctx, user); err != nil {
		return nil, err
	}

	pipeline := mongo.Pipeline{
		bson.D{{Key: "$vectorSearch", Value: bson.D{
			{Key: "index", Value: s.vectorIndex},
			{Key: "path", Value: "embedding"},
			{Key: "queryVector", Value: embedding},
			{Key: "numCandidates", Value: k * 20},
			{Key: "limit", Value: k},
			{Key: "filter", Value: bson.D{{Key: "user", Value: user}}},
		}}},
		bson.D{{Key: "$addFields", Value: bson.D{
			{Key: "score", Value: bson.D{{Key: "$meta", Value: "vectorSearchScore"}}},
		}}},
	}

	cursor, err := s.db.Collection(turnsCollection).Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("vector search for user %q: %w", user, err)
	}
	defer cursor.Close(ctx)

	var docs []struct {
		history.Turn `bson:",inline"`
		Score        float32 `bson:"score"`
	}
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decoding vector search results: %w", err)
	}

	results := make([]history.ScoredTurn, 0, len(docs))
	for _, doc := range docs {
		results = append(results, history.ScoredTurn{
			Turn: doc.Turn,
			// The engine reports (1 + cosine) / 2 for cosine indexes.
			Score: doc.Score*2 - 1,
		})
	}
	return results, nil
}

// All returns every turn in the user's partition ordered by timestamp
// ascending.
func (s *Store) All(ctx context.Context, user string) ([]history.Turn, error) {
	if err := s.checkUser(ctx, user); err != nil {
		return nil, err
	}

	cursor, err := s.db.Collection(turnsCollection).Find(ctx,
		bson.M{"user": user},
		options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("querying turns for user %q: %w", user, err)
	}
	defer cursor.Close(ctx)

	var turns []history.Turn
	if err := cursor.All(ctx, &turns); err != nil {
		return nil, fmt.Errorf("decoding turns: %w", err)
	}
	return turns, nil
}

// Close disconnects the underlying client.
func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *Store) checkUser(ctx context.Context, user string) error {
	err := s.db.Collection(usersCollection).FindOne(ctx, bson.M{"_id": user}).Err()
	if err == mongo.ErrNoDocuments {
		return history.ErrNotFound{User: user}
	}
	if err != nil {
		return fmt.Errorf("checking user %q: %w", user, err)
	}
	return nil
}

var _ history.Store = (*Store)(nil)
