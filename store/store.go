package store

import (
	"context"

	"github.com/xraph/stepflow/progress"
	"github.com/xraph/stepflow/run"
	"github.com/xraph/stepflow/session"
)

// Store is the aggregate persistence interface. Each aggregate's store is
// a composable interface; a single backend (memory, postgres, redis,
// mongo) implements all of them.
type Store interface {
	run.Store
	run.SuspensionStore
	run.AsyncStore
	run.RecordStore
	session.Store
	progress.Store

	// Migrate runs all schema migrations.
	Migrate(ctx context.Context) error

	// Ping checks backend connectivity.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}
