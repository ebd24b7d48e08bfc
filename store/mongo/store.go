// Package mongo implements store.Store on MongoDB. Each aggregate maps to
// its own collection with TypeID strings as _id values; run context and
// handoff payloads are stored as raw JSON so their wire shape stays
// identical across backends.
//
// Usage:
//
//	client, _ := mongod.Connect(options.Client().ApplyURI(uri))
//	s := mongostore.New(client.Database("stepflow"))
//	if err := s.Migrate(ctx); err != nil { ... }
package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/stepflow/progress"
	"github.com/xraph/stepflow/run"
	"github.com/xraph/stepflow/session"
)

// Collection name constants.
const (
	colRuns        = "stepflow_runs"
	colSuspensions = "stepflow_suspensions"
	colAsyncStates = "stepflow_async_states"
	colRecords     = "stepflow_records"
	colSessions    = "stepflow_sessions"
	colProgress    = "stepflow_progress"
)

// Ensure Store implements all subsystem interfaces at compile time.
var (
	_ run.Store           = (*Store)(nil)
	_ run.SuspensionStore = (*Store)(nil)
	_ run.AsyncStore      = (*Store)(nil)
	_ run.RecordStore     = (*Store)(nil)
	_ session.Store       = (*Store)(nil)
	_ progress.Store      = (*Store)(nil)
)

// Store implements the composite store.Store interface backed by MongoDB.
// The caller owns the client lifecycle; Store never closes it.
type Store struct {
	db     *mongod.Database
	logger *slog.Logger
}

// Option configures the Store.
type Option func(*Store)

// WithLogger sets the logger for the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New creates a new MongoDB store on the given database handle.
func New(db *mongod.Database, opts ...Option) *Store {
	s := &Store{
		db:     db,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DB returns the underlying database handle for advanced usage.
func (s *Store) DB() *mongod.Database {
	return s.db
}

// Migrate creates indexes for all stepflow collections.
func (s *Store) Migrate(ctx context.Context) error {
	for col, models := range migrationIndexes() {
		if len(models) == 0 {
			continue
		}

		_, err := s.db.Collection(col).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("stepflow/mongo: migrate %s indexes: %w", col, err)
		}
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Client().Ping(ctx, nil)
}

// Close is a no-op because the caller owns the client lifecycle.
func (s *Store) Close() error {
	return nil
}

// ── helpers ──────────────────────────────────────────────────────

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// isNoDocuments returns true when err indicates no MongoDB documents found.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongod.ErrNoDocuments)
}

// isDuplicateKey checks if a MongoDB error is a duplicate key violation.
func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "duplicate key") ||
		strings.Contains(err.Error(), "E11000")
}

// migrationIndexes returns the index definitions for all stepflow collections.
func migrationIndexes() map[string][]mongod.IndexModel {
	return map[string][]mongod.IndexModel{
		colRuns: {
			{Keys: bson.D{{Key: "status", Value: 1}}},
			{Keys: bson.D{{Key: "workflow", Value: 1}}},
			{Keys: bson.D{{Key: "created_at", Value: 1}}},
		},
		colSuspensions: {
			{Keys: bson.D{{Key: "run_id", Value: 1}}},
		},
		// Async state is keyed by its composite _id (run:step), no extra index.
		colAsyncStates: {},
		colRecords: {
			// Listing reads a run's records in sequence order.
			{
				Keys:    bson.D{{Key: "run_id", Value: 1}, {Key: "seq", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
		colSessions: {
			{Keys: bson.D{{Key: "run_id", Value: 1}}},
			{Keys: bson.D{{Key: "created_at", Value: 1}}},
		},
		colProgress: {},
	}
}
