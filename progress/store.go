package progress

import (
	"context"

	"github.com/xraph/stepflow/id"
)

// Store persists one progress snapshot per run. Implementations must be
// safe for concurrent use.
type Store interface {
	// SaveProgress inserts or replaces the snapshot for a run.
	SaveProgress(ctx context.Context, p *Progress) error

	// GetProgress returns the snapshot for a run, or
	// stepflow.ErrProgressNotFound.
	GetProgress(ctx context.Context, runID id.RunID) (*Progress, error)

	// DeleteProgress removes the snapshot for a run, or returns
	// stepflow.ErrProgressNotFound.
	DeleteProgress(ctx context.Context, runID id.RunID) error
}
