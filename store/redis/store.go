// Package redis implements store.Store using Redis for deployments that
// already run Redis and want durable runs without a relational database.
// Runs, suspensions, async state, sessions, and progress snapshots are
// stored as Redis Hashes; execution records use a Sorted Set per run scored
// by dispatch sequence so reads come back in order.
//
// Usage:
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	s := redisstore.New(client)
//	if err := s.Ping(ctx); err != nil { ... }
package redis

import (
	"context"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/xraph/stepflow/progress"
	"github.com/xraph/stepflow/run"
	"github.com/xraph/stepflow/session"
)

// Compile-time interface checks.
var (
	_ run.Store           = (*Store)(nil)
	_ run.SuspensionStore = (*Store)(nil)
	_ run.AsyncStore      = (*Store)(nil)
	_ run.RecordStore     = (*Store)(nil)
	_ session.Store       = (*Store)(nil)
	_ progress.Store      = (*Store)(nil)
)

// Option configures the Store.
type Option func(*Store)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Store implements the composite store.Store interface backed by Redis.
type Store struct {
	client redis.UniversalClient
	logger *slog.Logger
}

// New creates a new Redis-backed store. The caller owns the Redis client
// lifecycle.
func New(client redis.UniversalClient, opts ...Option) *Store {
	s := &Store{client: client, logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Client returns the underlying Redis client.
func (s *Store) Client() redis.UniversalClient { return s.client }

// Migrate is a no-op for Redis (schemaless).
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping verifies the Redis connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close is a no-op. The caller owns the Redis client lifecycle.
func (s *Store) Close() error { return nil }
