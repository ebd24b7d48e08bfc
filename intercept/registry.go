package intercept

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/stepflow/graph"
	"github.com/xraph/stepflow/run"
)

// Named entry types pair a hook implementation with the interceptor name
// captured at registration time. This avoids type-asserting back to
// Interceptor inside the emit methods.
type beforeStepEntry struct {
	name string
	hook BeforeStep
}

type afterStepEntry struct {
	name string
	hook AfterStep
}

type stepErrorEntry struct {
	name string
	hook StepError
}

type substituteEntry struct {
	name string
	hook StepInterceptor
}

type workflowStartedEntry struct {
	name string
	hook WorkflowStarted
}

type workflowCompletedEntry struct {
	name string
	hook WorkflowCompleted
}

type workflowFailedEntry struct {
	name string
	hook WorkflowFailed
}

// Registry holds registered interceptors and dispatches lifecycle events
// to them. Interceptors are type-cached at registration time so emit calls
// iterate only over interceptors that implement the relevant hook. It is
// safe for concurrent registration and concurrent dispatch.
type Registry struct {
	mu           sync.RWMutex
	interceptors []Interceptor
	logger       *slog.Logger

	beforeStep        []beforeStepEntry
	afterStep         []afterStepEntry
	stepError         []stepErrorEntry
	substitute        []substituteEntry
	workflowStarted   []workflowStartedEntry
	workflowCompleted []workflowCompletedEntry
	workflowFailed    []workflowFailedEntry
}

// NewRegistry creates an interceptor registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger}
}

// Add registers an interceptor and type-asserts it into all applicable
// hook caches. Interceptors are notified in registration order.
func (r *Registry) Add(i Interceptor) {
	if i == nil {
		return
	}
	name := i.Name()

	r.mu.Lock()
	defer r.mu.Unlock()

	r.interceptors = append(r.interceptors, i)
	if h, ok := i.(BeforeStep); ok {
		r.beforeStep = append(r.beforeStep, beforeStepEntry{name, h})
	}
	if h, ok := i.(AfterStep); ok {
		r.afterStep = append(r.afterStep, afterStepEntry{name, h})
	}
	if h, ok := i.(StepError); ok {
		r.stepError = append(r.stepError, stepErrorEntry{name, h})
	}
	if h, ok := i.(StepInterceptor); ok {
		r.substitute = append(r.substitute, substituteEntry{name, h})
	}
	if h, ok := i.(WorkflowStarted); ok {
		r.workflowStarted = append(r.workflowStarted, workflowStartedEntry{name, h})
	}
	if h, ok := i.(WorkflowCompleted); ok {
		r.workflowCompleted = append(r.workflowCompleted, workflowCompletedEntry{name, h})
	}
	if h, ok := i.(WorkflowFailed); ok {
		r.workflowFailed = append(r.workflowFailed, workflowFailedEntry{name, h})
	}
}

// Interceptors returns all registered interceptors in registration order.
func (r *Registry) Interceptors() []Interceptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Interceptor, len(r.interceptors))
	copy(out, r.interceptors)
	return out
}

// ──────────────────────────────────────────────────
// Step event emitters
// ──────────────────────────────────────────────────

// EmitBeforeStep notifies all interceptors that implement BeforeStep.
func (r *Registry) EmitBeforeStep(ctx context.Context, sc *StepContext) {
	r.mu.RLock()
	hooks := r.beforeStep
	r.mu.RUnlock()

	for _, e := range hooks {
		r.observe(ctx, "OnBeforeStep", e.name, func() error {
			return e.hook.OnBeforeStep(ctx, sc)
		})
	}
}

// EmitAfterStep notifies all interceptors that implement AfterStep.
func (r *Registry) EmitAfterStep(ctx context.Context, sc *StepContext, result graph.Result, elapsed time.Duration) {
	r.mu.RLock()
	hooks := r.afterStep
	r.mu.RUnlock()

	for _, e := range hooks {
		r.observe(ctx, "OnAfterStep", e.name, func() error {
			return e.hook.OnAfterStep(ctx, sc, result, elapsed)
		})
	}
}

// EmitStepError notifies all interceptors that implement StepError.
func (r *Registry) EmitStepError(ctx context.Context, sc *StepContext, stepErr error, elapsed time.Duration) {
	r.mu.RLock()
	hooks := r.stepError
	r.mu.RUnlock()

	for _, e := range hooks {
		r.observe(ctx, "OnStepError", e.name, func() error {
			return e.hook.OnStepError(ctx, sc, stepErr, elapsed)
		})
	}
}

// Substitute consults substitution interceptors in registration order and
// returns the first substituted result. Unlike the observer emitters, an
// error here is returned to the caller: the engine treats it as the step
// handler's own failure.
func (r *Registry) Substitute(ctx context.Context, sc *StepContext) (graph.Result, bool, error) {
	r.mu.RLock()
	hooks := r.substitute
	r.mu.RUnlock()

	for _, e := range hooks {
		res, ok, err := e.hook.InterceptStep(ctx, sc)
		if err != nil {
			return graph.Result{}, true, err
		}
		if ok {
			return res, true, nil
		}
	}
	return graph.Result{}, false, nil
}

// ──────────────────────────────────────────────────
// Workflow event emitters
// ──────────────────────────────────────────────────

// EmitWorkflowStarted notifies all interceptors that implement WorkflowStarted.
func (r *Registry) EmitWorkflowStarted(ctx context.Context, rn *run.Run) {
	r.mu.RLock()
	hooks := r.workflowStarted
	r.mu.RUnlock()

	for _, e := range hooks {
		r.observe(ctx, "OnWorkflowStarted", e.name, func() error {
			return e.hook.OnWorkflowStarted(ctx, rn)
		})
	}
}

// EmitWorkflowCompleted notifies all interceptors that implement WorkflowCompleted.
func (r *Registry) EmitWorkflowCompleted(ctx context.Context, rn *run.Run, elapsed time.Duration) {
	r.mu.RLock()
	hooks := r.workflowCompleted
	r.mu.RUnlock()

	for _, e := range hooks {
		r.observe(ctx, "OnWorkflowCompleted", e.name, func() error {
			return e.hook.OnWorkflowCompleted(ctx, rn, elapsed)
		})
	}
}

// EmitWorkflowFailed notifies all interceptors that implement WorkflowFailed.
func (r *Registry) EmitWorkflowFailed(ctx context.Context, rn *run.Run, runErr error) {
	r.mu.RLock()
	hooks := r.workflowFailed
	r.mu.RUnlock()

	for _, e := range hooks {
		r.observe(ctx, "OnWorkflowFailed", e.name, func() error {
			return e.hook.OnWorkflowFailed(ctx, rn, runErr)
		})
	}
}

// observe runs an observer hook with full isolation: errors are logged and
// panics recovered. Observer misbehavior never aborts the run.
func (r *Registry) observe(_ context.Context, hook, name string, fn func() error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Warn("interceptor hook panic",
				slog.String("hook", hook),
				slog.String("interceptor", name),
				slog.Any("panic", rec),
			)
		}
	}()

	if err := fn(); err != nil {
		r.logger.Warn("interceptor hook error",
			slog.String("hook", hook),
			slog.String("interceptor", name),
			slog.String("error", err.Error()),
		)
	}
}
