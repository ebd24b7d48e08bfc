package progress

import (
	"context"
	"time"

	"github.com/xraph/stepflow/intercept"
	"github.com/xraph/stepflow/run"
)

// Recorder is an interceptor that keeps progress snapshots current as a
// run moves through its lifecycle. Handlers can still call the Tracker
// directly for finer-grained percentages between step boundaries.
type Recorder struct {
	tracker *Tracker
}

// Compile-time interface checks.
var (
	_ intercept.Interceptor       = (*Recorder)(nil)
	_ intercept.BeforeStep        = (*Recorder)(nil)
	_ intercept.WorkflowStarted   = (*Recorder)(nil)
	_ intercept.WorkflowCompleted = (*Recorder)(nil)
	_ intercept.WorkflowFailed    = (*Recorder)(nil)
)

// NewRecorder creates a recorder writing through tracker.
func NewRecorder(tracker *Tracker) *Recorder {
	return &Recorder{tracker: tracker}
}

// Name implements intercept.Interceptor.
func (r *Recorder) Name() string { return "progress-recorder" }

// OnWorkflowStarted implements intercept.WorkflowStarted.
func (r *Recorder) OnWorkflowStarted(ctx context.Context, rn *run.Run) error {
	return r.tracker.Update(ctx, rn.ID, rn.Workflow, 0, "")
}

// OnBeforeStep implements intercept.BeforeStep.
func (r *Recorder) OnBeforeStep(ctx context.Context, sc *intercept.StepContext) error {
	return r.tracker.Step(ctx, sc.Run.ID, sc.Run.Workflow, sc.Step.Name)
}

// OnWorkflowCompleted implements intercept.WorkflowCompleted.
func (r *Recorder) OnWorkflowCompleted(ctx context.Context, rn *run.Run, _ time.Duration) error {
	return r.tracker.Complete(ctx, rn.ID, rn.Workflow)
}

// OnWorkflowFailed implements intercept.WorkflowFailed.
func (r *Recorder) OnWorkflowFailed(ctx context.Context, rn *run.Run, runErr error) error {
	return r.tracker.Fail(ctx, rn.ID, rn.Workflow, runErr.Error())
}
