package engine

import (
	"context"
	"time"

	"github.com/xraph/stepflow"
	"github.com/xraph/stepflow/id"
	"github.com/xraph/stepflow/run"
)

// Execution is the caller's handle on a live run. Handles returned by
// Execute and Resume for the same run share state: the run reaches one
// terminal outcome and every handle reports it.
type Execution struct {
	engine *Engine
	rs     *runState
}

// RunID identifies the run.
func (x *Execution) RunID() id.RunID { return x.rs.runID }

// Workflow names the run's workflow.
func (x *Execution) Workflow() string { return x.rs.workflow }

// Done is closed when the run reaches a terminal state. A suspended run
// is not terminal; Done stays open across suspensions.
func (x *Execution) Done() <-chan struct{} { return x.rs.done }

// Wait blocks until the run terminates or the context ends. A completed
// run yields its result; a failed run yields the failure; a cancelled run
// yields ErrRunCancelled.
func (x *Execution) Wait(ctx context.Context) (any, error) {
	select {
	case <-x.rs.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	status, result, err := x.rs.outcome()
	switch status {
	case run.StatusCompleted:
		return result, nil
	case run.StatusCancelled:
		return nil, stepflow.ErrRunCancelled
	default:
		return nil, err
	}
}

// Get waits up to timeout for the terminal outcome. A non-positive
// timeout waits indefinitely.
func (x *Execution) Get(timeout time.Duration) (any, error) {
	if timeout <= 0 {
		return x.Wait(context.Background())
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return x.Wait(ctx)
}

// Cancel requests cancellation. An in-flight step is interrupted through
// its context; a pending retry is dropped; a parked run terminates
// immediately. Cancellation wins every race: once requested, the run can
// only report cancelled. Cancelling a run that already terminated is a
// no-op.
func (x *Execution) Cancel() {
	x.engine.cancelRun(x.rs)
}
