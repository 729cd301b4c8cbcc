// Package docstore exposes a document database to the agent as a set of MCP
// tools: listing databases and collections, counting, fetching documents by
// field, inferring a collection schema from a sampled document, sampling,
// and vector search over a configured embedding field.
//
// Every helper returns both its result and the query it ran, so the model
// can see (and explain) what was asked of the database.
package docstore

import (
	"context"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// Config holds connection settings for the document store.
type Config struct {
	// URI is the mongodb connection string.
	URI string

	// VectorIndex is the vector search index used by VectorSearch.
	VectorIndex string
}

// Store wraps a mongo client with the query helpers the MCP tools expose.
type Store struct {
	client      *mongo.Client
	vectorIndex string
	logger      *zap.Logger
}

// NewStore connects to the document database.
func NewStore(ctx context.Context, c Config, logger *zap.Logger) (*Store, error) {
	if c.URI == "" {
		return nil, fmt.Errorf("docstore URI is required")
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(c.URI))
	if err != nil {
		return nil, fmt.Errorf("connecting to document store: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("pinging document store: %w", err)
	}

	return &Store{
		client:      client,
		vectorIndex: c.VectorIndex,
		logger:      logger,
	}, nil
}

// Close disconnects from the document database.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// ListDatabases returns the names of all databases.
func (s *Store) ListDatabases(ctx context.Context) ([]string, string, error) {
	query := "listDatabases"

	names, err := s.client.ListDatabaseNames(ctx, bson.D{})
	if err != nil {
		return nil, query, fmt.Errorf("listing databases: %w", err)
	}

	return names, query, nil
}

// ListCollections returns the names of all collections in a database.
func (s *Store) ListCollections(ctx context.Context, database string) ([]string, string, error) {
	query := fmt.Sprintf("listCollections on %s", database)

	names, err := s.client.Database(database).ListCollectionNames(ctx, bson.D{})
	if err != nil {
		return nil, query, fmt.Errorf("listing collections in %s: %w", database, err)
	}

	return names, query, nil
}

// Count returns the number of documents in a collection.
func (s *Store) Count(ctx context.Context, database, collection string) (int64, string, error) {
	query := fmt.Sprintf("countDocuments on %s.%s", database, collection)

	n, err := s.coll(database, collection).CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, query, fmt.Errorf("counting %s.%s: %w", database, collection, err)
	}

	return n, query, nil
}

// FindByField returns documents whose field equals value. projection, when
// non-empty, limits the returned fields.
func (s *Store) FindByField(ctx context.Context, database, collection, field string, value any, projection []string) ([]bson.M, string, error) {
	query := fmt.Sprintf("find {%s: %v} on %s.%s", field, value, database, collection)

	opts := options.Find().SetLimit(maxFindResults)
	if len(projection) > 0 {
		proj := bson.D{}
		for _, p := range projection {
			proj = append(proj, bson.E{Key: p, Value: 1})
		}
		opts.SetProjection(proj)
	}

	cursor, err := s.coll(database, collection).Find(ctx, bson.D{{Key: field, Value: value}}, opts)
	if err != nil {
		return nil, query, fmt.Errorf("finding documents in %s.%s: %w", database, collection, err)
	}
	defer cursor.Close(ctx)

	var docs []bson.M
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, query, fmt.Errorf("decoding documents from %s.%s: %w", database, collection, err)
	}

	return docs, query, nil
}

// Schema infers a collection's shape from one sampled document, mapping
// field names to type names. Internal bookkeeping fields (leading
// underscore) are elided.
func (s *Store) Schema(ctx context.Context, database, collection string) (map[string]string, string, error) {
	query := fmt.Sprintf("sample 1 document from %s.%s", database, collection)

	docs, err := s.sample(ctx, database, collection, 1)
	if err != nil {
		return nil, query, err
	}
	if len(docs) == 0 {
		return map[string]string{}, query, nil
	}

	schema := make(map[string]string, len(docs[0]))
	for field, v := range docs[0] {
		if strings.HasPrefix(field, "_") {
			continue
		}
		schema[field] = typeName(v)
	}

	return schema, query, nil
}

// Sample returns up to n randomly sampled documents from a collection.
func (s *Store) Sample(ctx context.Context, database, collection string, n int) ([]bson.M, string, error) {
	query := fmt.Sprintf("sample %d documents from %s.%s", n, database, collection)

	docs, err := s.sample(ctx, database, collection, n)
	if err != nil {
		return nil, query, err
	}

	return docs, query, nil
}

// VectorSearch returns the k nearest documents to the embedding over the
// given path using the configured vector index.
func (s *Store) VectorSearch(ctx context.Context, database, collection string, embedding []float32, path string, k int) ([]bson.M, string, error) {
	query := fmt.Sprintf("$vectorSearch index=%s path=%s k=%d on %s.%s", s.vectorIndex, path, k, database, collection)

	if s.vectorIndex == "" {
		return nil, query, fmt.Errorf("no vector index configured")
	}

	pipeline := mongo.Pipeline{
		bson.D{{Key: "$vectorSearch", Value: bson.D{
			{Key: "index", Value: s.vectorIndex},
			{Key: "path", Value: path},
			{Key: "queryVector", Value: embedding},
			{Key: "numCandidates", Value: k * candidateMultiplier},
			{Key: "limit", Value: k},
		}}},
		bson.D{{Key: "$addFields", Value: bson.D{
			{Key: "score", Value: bson.D{{Key: "$meta", Value: "vectorSearchScore"}}},
		}}},
		bson.D{{Key: "$project", Value: bson.D{
			{Key: path, Value: 0},
		}}},
	}

	cursor, err := s.coll(database, collection).Aggregate(ctx, pipeline)
	if err != nil {
		return nil, query, fmt.Errorf("vector search in %s.%s: %w", database, collection, err)
	}
	defer cursor.Close(ctx)

	var docs []bson.M
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, query, fmt.Errorf("decoding vector search results from %s.%s: %w", database, collection, err)
	}

	return docs, query, nil
}

const (
	maxFindResults      = 20
	candidateMultiplier = 20
)

func (s *Store) coll(database, collection string) *mongo.Collection {
	return s.client.Database(database).Collection(collection)
}

func (s *Store) sample(ctx context.Context, database, collection string, n int) ([]bson.M, error) {
	pipeline := mongo.Pipeline{
		bson.D{{Key: "$sample", Value: bson.D{{Key: "size", Value: n}}}},
	}

	cursor, err := s.coll(database, collection).Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("sampling %s.%s: %w", database, collection, err)
	}
	defer cursor.Close(ctx)

	var docs []bson.M
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decoding sample from %s.%s: %w", database, collection, err)
	}

	return docs, nil
}

// typeName maps a decoded BSON value to a stable, user-facing type name.
func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "bool"
	case int32, int64, int:
		return "int"
	case float32, float64:
		return "double"
	case bson.M, bson.D, map[string]any:
		return "object"
	case bson.A, []any:
		return "array"
	default:
		return fmt.Sprintf("%T", v)
	}
}
