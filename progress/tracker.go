package progress

import (
	"context"
	"errors"

	"github.com/xraph/stepflow"
	"github.com/xraph/stepflow/id"
)

// Tracker is the write side of progress reporting. Step handlers use it
// to publish percentages mid-step; the Recorder uses it to mark step and
// run boundaries.
type Tracker struct {
	store Store
}

// NewTracker creates a tracker backed by store.
func NewTracker(store Store) *Tracker {
	return &Tracker{store: store}
}

// load returns the existing snapshot or a fresh pending one.
func (t *Tracker) load(ctx context.Context, runID id.RunID, workflow string) (*Progress, error) {
	p, err := t.store.GetProgress(ctx, runID)
	if errors.Is(err, stepflow.ErrProgressNotFound) {
		return New(runID, workflow), nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Update publishes a completion percentage and note for a run. The
// percentage is clamped to [0, 100].
func (t *Tracker) Update(ctx context.Context, runID id.RunID, workflow string, percent int, note string) error {
	p, err := t.load(ctx, runID, workflow)
	if err != nil {
		return err
	}
	p.Percent = clamp(percent)
	p.Note = note
	p.State = StateRunning
	p.Touch()
	return t.store.SaveProgress(ctx, p)
}

// Step marks a run as executing the named step, preserving its reported
// percentage.
func (t *Tracker) Step(ctx context.Context, runID id.RunID, workflow, step string) error {
	p, err := t.load(ctx, runID, workflow)
	if err != nil {
		return err
	}
	p.Step = step
	p.State = StateRunning
	p.Touch()
	return t.store.SaveProgress(ctx, p)
}

// Complete marks a run as fully done.
func (t *Tracker) Complete(ctx context.Context, runID id.RunID, workflow string) error {
	p, err := t.load(ctx, runID, workflow)
	if err != nil {
		return err
	}
	p.Percent = 100
	p.State = StateCompleted
	p.Touch()
	return t.store.SaveProgress(ctx, p)
}

// Fail marks a run as failed with the terminal error text.
func (t *Tracker) Fail(ctx context.Context, runID id.RunID, workflow, note string) error {
	p, err := t.load(ctx, runID, workflow)
	if err != nil {
		return err
	}
	p.State = StateFailed
	p.Note = note
	p.Touch()
	return t.store.SaveProgress(ctx, p)
}

// Get returns the snapshot for a run.
func (t *Tracker) Get(ctx context.Context, runID id.RunID) (*Progress, error) {
	return t.store.GetProgress(ctx, runID)
}

func clamp(percent int) int {
	if percent < 0 {
		return 0
	}
	if percent > 100 {
		return 100
	}
	return percent
}
