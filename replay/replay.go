// Package replay re-executes failed workflow runs with their original
// input. It is the recovery counterpart to the engine's retry policy:
// retries happen inside a run, a replay starts a fresh run after the
// original failed terminally. The failed run is kept untouched for
// inspection; the new run has its own id, records and retry budget.
package replay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/xraph/stepflow/engine"
	"github.com/xraph/stepflow/id"
	"github.com/xraph/stepflow/run"
)

// ErrNotFailed reports a replay of a run that is not in the failed
// state.
var ErrNotFailed = errors.New("replay: run has not failed")

// ListOpts controls filtering and pagination for ListFailed.
type ListOpts struct {
	// Workflow filters by workflow name. Empty means all workflows.
	Workflow string
	// Limit is the maximum number of runs to return. Zero means no limit.
	Limit int
	// Offset is the number of runs to skip.
	Offset int
}

// Service provides failed-run inspection and replay over an engine and
// its store.
type Service struct {
	eng    *engine.Engine
	store  run.Store
	logger *slog.Logger
}

// NewService creates a replay service for the given engine. A nil logger
// falls back to slog.Default.
func NewService(eng *engine.Engine, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{eng: eng, store: eng.Store(), logger: logger}
}

// ListFailed returns failed runs, oldest first.
func (s *Service) ListFailed(ctx context.Context, opts ListOpts) ([]*run.Run, error) {
	return s.store.ListRuns(ctx, run.ListOpts{
		Status:   run.StatusFailed,
		Workflow: opts.Workflow,
		Limit:    opts.Limit,
		Offset:   opts.Offset,
	})
}

// Replay starts a fresh run of a failed run's workflow with the failed
// run's original input. The input is rehydrated from its persisted JSON,
// so the first handler sees the decoded form (strings, maps, slices),
// not the caller's original Go types.
func (s *Service) Replay(ctx context.Context, runID id.RunID) (*engine.Execution, error) {
	r, err := s.store.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if r.Status != run.StatusFailed {
		return nil, fmt.Errorf("replay: run %s in status %s: %w", runID, r.Status, ErrNotFailed)
	}

	var input any
	if len(r.Input) > 0 {
		if err := json.Unmarshal(r.Input, &input); err != nil {
			return nil, fmt.Errorf("replay: decode input of run %s: %w", runID, err)
		}
	}

	ex, err := s.eng.Execute(ctx, r.Workflow, input)
	if err != nil {
		return nil, err
	}
	s.logger.Info("run replayed",
		slog.String("workflow", r.Workflow),
		slog.String("failed_run_id", runID.String()),
		slog.String("run_id", ex.RunID().String()),
	)
	return ex, nil
}
