package run

import (
	"context"

	"github.com/xraph/stepflow/id"
)

// ListOpts controls filtering and pagination for run list queries.
type ListOpts struct {
	// Limit is the maximum number of runs to return. Zero means no limit.
	Limit int
	// Offset is the number of runs to skip.
	Offset int
	// Status filters by run status. Empty means all statuses.
	Status Status
	// Workflow filters by workflow name. Empty means all workflows.
	Workflow string
}

// Store defines the persistence contract for workflow runs.
type Store interface {
	// CreateRun persists a new run.
	CreateRun(ctx context.Context, r *Run) error

	// GetRun retrieves a run by ID.
	GetRun(ctx context.Context, runID id.RunID) (*Run, error)

	// UpdateRun persists changes to an existing run.
	UpdateRun(ctx context.Context, r *Run) error

	// ListRuns returns runs matching the given options, oldest first.
	ListRuns(ctx context.Context, opts ListOpts) ([]*Run, error)
}

// SuspensionStore defines the persistence contract for suspension data.
type SuspensionStore interface {
	// SaveSuspension persists suspension data keyed by its await token.
	// Saving an existing token replaces the entry.
	SaveSuspension(ctx context.Context, s *Suspension) error

	// GetSuspension retrieves suspension data by await token.
	GetSuspension(ctx context.Context, token string) (*Suspension, error)

	// DeleteSuspension removes suspension data once the run has resumed.
	DeleteSuspension(ctx context.Context, token string) error
}

// AsyncStore defines the persistence contract for async step state.
type AsyncStore interface {
	// SaveAsyncState persists partial progress for a run/step pair,
	// replacing any previous state.
	SaveAsyncState(ctx context.Context, s *AsyncState) error

	// GetAsyncState retrieves partial progress for a run/step pair.
	GetAsyncState(ctx context.Context, runID id.RunID, step string) (*AsyncState, error)

	// DeleteAsyncState clears partial progress for a run/step pair.
	DeleteAsyncState(ctx context.Context, runID id.RunID, step string) error
}

// RecordStore defines the persistence contract for execution records.
type RecordStore interface {
	// AppendRecord appends an execution record. Records are immutable.
	AppendRecord(ctx context.Context, rec *Record) error

	// ListRecords returns all records for a run in Seq order.
	ListRecords(ctx context.Context, runID id.RunID) ([]*Record, error)
}
