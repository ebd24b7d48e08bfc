package intercept

import (
	"context"
	"time"

	"github.com/xraph/stepflow/graph"
	"github.com/xraph/stepflow/run"
)

// Interceptor is the base interface all interceptors must implement.
type Interceptor interface {
	// Name returns a unique human-readable name for the interceptor.
	Name() string
}

// StepContext carries the state of one step invocation through the
// interceptor chain. The engine passes it explicitly to every hook of the
// invocation, so Before/After pairs correlate without any per-goroutine
// state. All hooks of one invocation run on the run's dispatch goroutine.
type StepContext struct {
	// Run is the live run. Hooks must treat it as read-only.
	Run *run.Run

	// Step is the step definition being invoked.
	Step *graph.Step

	// Input is the value passed to the handler.
	Input any

	// Entry is the invocation count for this step within the run,
	// starting at 1.
	Entry int

	// Attempt is the retry attempt within this entry, starting at 1.
	Attempt int

	values map[any]any
}

// Set stores a per-invocation value. Interceptors use it to carry state
// from their before hook to their after hook, a span for example.
func (sc *StepContext) Set(key, value any) {
	if sc.values == nil {
		sc.values = make(map[any]any)
	}
	sc.values[key] = value
}

// Value returns a per-invocation value stored with Set.
func (sc *StepContext) Value(key any) (any, bool) {
	v, ok := sc.values[key]
	return v, ok
}

// ──────────────────────────────────────────────────
// Step hooks
// ──────────────────────────────────────────────────

// BeforeStep is called before a step handler executes. Observation only.
type BeforeStep interface {
	OnBeforeStep(ctx context.Context, sc *StepContext) error
}

// AfterStep is called after a step handler returns a result.
type AfterStep interface {
	OnAfterStep(ctx context.Context, sc *StepContext, result graph.Result, elapsed time.Duration) error
}

// StepError is called when a step handler fails or times out.
type StepError interface {
	OnStepError(ctx context.Context, sc *StepContext, stepErr error, elapsed time.Duration) error
}

// StepInterceptor is the substitution seam. Before executing a step's real
// handler, the engine consults substitution interceptors in registration
// order; the first one returning ok reports the result used in place of
// the handler for this invocation. Returning a non-nil error fails the
// step exactly as if the handler had thrown it, feeding the retry policy.
// Observers must return ok == false and leave the error nil.
type StepInterceptor interface {
	InterceptStep(ctx context.Context, sc *StepContext) (result graph.Result, ok bool, err error)
}

// ──────────────────────────────────────────────────
// Workflow hooks
// ──────────────────────────────────────────────────

// WorkflowStarted is called when a run begins executing.
type WorkflowStarted interface {
	OnWorkflowStarted(ctx context.Context, r *run.Run) error
}

// WorkflowCompleted is called after a run finishes successfully.
type WorkflowCompleted interface {
	OnWorkflowCompleted(ctx context.Context, r *run.Run, elapsed time.Duration) error
}

// WorkflowFailed is called when a run fails terminally.
type WorkflowFailed interface {
	OnWorkflowFailed(ctx context.Context, r *run.Run, runErr error) error
}
