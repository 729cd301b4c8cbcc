// Package sqlitevec provides a SQLite-backed history store using sqlite-vec
// for KNN similarity queries over stored user-message embeddings.
package sqlitevec

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/docuchatco/docuchat/pkg/history"
)

// Store implements history.Store using SQLite with sqlite-vec.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// Config holds configuration for the SQLite history store.
type Config struct {
	// DBPath is the path to the SQLite database file.
	// Use ":memory:" for an in-memory database.
	DBPath string

	// Dimensions is the number of dimensions of the embedding vectors.
	// Required; the vec0 table is dimension-fixed.
	Dimensions uint
}

// NewStore creates a SQLite history store backed by sqlite-vec.
func NewStore(c Config, logger *zap.Logger) (*Store, error) {
	// enable connection to have sqlite-vec extension
	sqlite_vec.Auto()

	if c.DBPath == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if c.Dimensions == 0 {
		return nil, fmt.Errorf("sqlite-vec embedding dimensions cannot be 0, must be configured")
	}

	db, err := sql.Open("sqlite3", c.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Verify sqlite-vec is loaded
	var vecVersion string
	if err := db.QueryRow("SELECT vec_version()").Scan(&vecVersion); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite-vec not available: %w", err)
	}

	// Turn metadata table. vec0 virtual tables use integer rowids, so the
	// turn id maps to the rowid shared with the embeddings table.
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS turns (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			turn_id TEXT NOT NULL UNIQUE,
			user TEXT NOT NULL,
			user_message TEXT NOT NULL,
			assistant_message TEXT NOT NULL,
			created_at INTEGER NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating turns table: %w", err)
	}

	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_turns_user ON turns(user, created_at)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating user index: %w", err)
	}

	// Known-user table gives EnsureUser/ErrNotFound semantics: a partition
	// can exist while still holding zero turns.
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS users (user TEXT PRIMARY KEY)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating users table: %w", err)
	}

	// Cosine distance keeps scores comparable with the other store drivers.
	createVec := fmt.Sprintf(
		`CREATE VIRTUAL TABLE IF NOT EXISTS turn_embeddings USING vec0(embedding float[%d] distance_metric=cosine)`,
		c.Dimensions,
	)
	if _, err := db.Exec(createVec); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating vec0 table: %w", err)
	}

	logger.Info("sqlite-vec history store initialized",
		zap.String("db_path", c.DBPath),
		zap.Uint("dimensions", c.Dimensions),
		zap.String("vec_version", vecVersion),
	)

	return &Store{
		db:     db,
		logger: logger,
	}, nil
}

// EnsureUser creates the user partition row if it does not already exist.
func (s *Store) EnsureUser(ctx context.Context, user string) error {
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO users(user) VALUES (?) ON CONFLICT(user) DO NOTHING`, user,
	); err != nil {
		return fmt.Errorf("ensuring user %q: %w", user, err)
	}
	return nil
}

// Append writes one turn and its embedding, creating the user partition if
// absent.
func (s *Store) Append(ctx context.Context, turn *history.Turn) error {
	embBlob, err := serializeFloat32(turn.Embedding)
	if err != nil {
		return fmt.Errorf("serializing embedding for turn %s: %w", turn.ID, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO users(user) VALUES (?) ON CONFLICT(user) DO NOTHING`, turn.User,
	); err != nil {
		return fmt.Errorf("ensuring user %q: %w", turn.User, err)
	}

	result, err := tx.ExecContext(ctx,
		`INSERT INTO turns(turn_id, user, user_message, assistant_message, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		turn.ID, turn.User, turn.UserMessage, turn.AssistantMessage, turn.Timestamp.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("inserting turn %s: %w", turn.ID, err)
	}

	rowID, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting rowid for turn %s: %w", turn.ID, err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO turn_embeddings(rowid, embedding) VALUES (?, ?)`,
		rowID, embBlob,
	); err != nil {
		return fmt.Errorf("inserting embedding for turn %s: %w", turn.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	s.logger.Debug("appended turn",
		zap.String("turn_id", turn.ID),
		zap.String("user", turn.User),
	)

	return nil
}

// Similar returns up to k of the user's turns closest to the embedding,
// closest first.
//
// The KNN MATCH runs over all embeddings and is filtered to the user's
// partition afterwards, so k is over-fetched to keep per-user recall
// reasonable for multi-tenant databases.
func (s *Store) Similar(ctx context.Context, user string, embedding []float32, k int) ([]history.ScoredTurn, error) {
	if k <= 0 {
		k = 1
	}

	if err := s.checkUser(ctx, user); err != nil {
		return nil, err
	}

	queryBlob, err := serializeFloat32(embedding)
	if err != nil {
		return nil, fmt.Errorf("serializing query embedding: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT
			t.turn_id,
			t.user_message,
			t.assistant_message,
			t.created_at,
			te.distance
		FROM turn_embeddings te
		INNER JOIN turns t ON t.rowid = te.rowid
		WHERE te.embedding MATCH ?
			AND te.k = ?
			AND t.user = ?
		ORDER BY te.distance
	`, queryBlob, k*candidateMultiplier, user)
	if err != nil {
		return nil, fmt.Errorf("querying embeddings: %w", err)
	}
	defer rows.Close()

	var results []history.ScoredTurn
	for rows.Next() {
		var turn history.Turn
		var createdAt int64
		var distance float64
		if err := rows.Scan(&turn.ID, &turn.UserMessage, &turn.AssistantMessage, &createdAt, &distance); err != nil {
			return nil, fmt.Errorf("scanning query result: %w", err)
		}

		turn.User = user
		turn.Timestamp = time.Unix(0, createdAt)
		results = append(results, history.ScoredTurn{
			Turn: turn,
			// Cosine distance is 1 - cosine similarity.
			Score: float32(1.0 - distance),
		})
		if len(results) == k {
			break
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating query results: %w", err)
	}

	return results, nil
}

// candidateMultiplier widens the KNN candidate set before the per-user
// filter is applied.
const candidateMultiplier = 8

// All returns every turn in the user's partition ordered by timestamp
// ascending.
func (s *Store) All(ctx context.Context, user string) ([]history.Turn, error) {
	if err := s.checkUser(ctx, user); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT t.turn_id, t.user_message, t.assistant_message, t.created_at, te.embedding
		FROM turns t
		INNER JOIN turn_embeddings te ON te.rowid = t.rowid
		WHERE t.user = ?
		ORDER BY t.created_at ASC
	`, user)
	if err != nil {
		return nil, fmt.Errorf("querying turns: %w", err)
	}
	defer rows.Close()

	var turns []history.Turn
	for rows.Next() {
		var turn history.Turn
		var createdAt int64
		var embBlob []byte
		if err := rows.Scan(&turn.ID, &turn.UserMessage, &turn.AssistantMessage, &createdAt, &embBlob); err != nil {
			return nil, fmt.Errorf("scanning turn: %w", err)
		}

		embedding, err := deserializeFloat32(embBlob)
		if err != nil {
			return nil, fmt.Errorf("decoding embedding for turn %s: %w", turn.ID, err)
		}

		turn.User = user
		turn.Timestamp = time.Unix(0, createdAt)
		turn.Embedding = embedding
		turns = append(turns, turn)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating turns: %w", err)
	}

	return turns, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) checkUser(ctx context.Context, user string) error {
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM users WHERE user = ?`, user).Scan(&exists)
	if err == sql.ErrNoRows {
		return history.ErrNotFound{User: user}
	}
	if err != nil {
		return fmt.Errorf("checking user %q: %w", user, err)
	}
	return nil
}

// serializeFloat32 converts a float32 slice to a little-endian byte slice
// suitable for sqlite-vec BLOB format.
func serializeFloat32(v []float32) ([]byte, error) {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf, nil
}

// deserializeFloat32 converts a little-endian byte slice back to a float32 slice.
func deserializeFloat32(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("invalid embedding blob length %d: must be divisible by 4", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}

var _ history.Store = (*Store)(nil)
