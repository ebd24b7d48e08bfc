package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/xraph/stepflow"
	"github.com/xraph/stepflow/backoff"
	"github.com/xraph/stepflow/graph"
	"github.com/xraph/stepflow/id"
	"github.com/xraph/stepflow/intercept"
	"github.com/xraph/stepflow/limit"
	"github.com/xraph/stepflow/progress"
	"github.com/xraph/stepflow/run"
	"github.com/xraph/stepflow/session"
	"github.com/xraph/stepflow/store"
	"github.com/xraph/stepflow/store/memory"
	"github.com/xraph/stepflow/worker"
)

// Engine executes workflow runs: it resolves steps against the graph
// registry, drives the dispatch loop on the worker pool, applies retry and
// invocation-limit policy, persists every transition, and notifies
// interceptors. All dependencies are explicit; there are no package-level
// registries.
type Engine struct {
	cfg    stepflow.Config
	logger *slog.Logger
	store  store.Store
	graphs *graph.Registry
	hooks  *intercept.Registry
	limits *limit.Manager
	pool   *worker.Pool
	sched  *worker.Scheduler

	retry    backoff.Policy
	retrySet bool

	tracker *progress.Tracker

	// baseCtx outlives any caller context: dispatch keeps running after
	// Execute returns. Shutdown cancels it once the pool has drained.
	baseCtx    context.Context
	baseCancel context.CancelFunc

	mu     sync.Mutex
	closed bool
	active map[id.RunID]*runState

	interceptors []intercept.Interceptor
	limitCfgs    []limit.Config
}

// Option configures an Engine.
type Option func(*Engine)

// WithStore sets the composite store backing the engine. Defaults to the
// in-memory backend.
func WithStore(s store.Store) Option {
	return func(e *Engine) { e.store = s }
}

// WithConfig sets the engine configuration. Zero fields are normalized to
// their defaults.
func WithConfig(cfg stepflow.Config) Option {
	return func(e *Engine) { e.cfg = cfg }
}

// WithLogger sets the engine's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithInterceptors registers interceptors at construction time, in order.
func WithInterceptors(is ...intercept.Interceptor) Option {
	return func(e *Engine) { e.interceptors = append(e.interceptors, is...) }
}

// WithRetryPolicy sets the default retry policy for steps that do not
// carry their own. Without this option the engine retries according to
// Config.DefaultMaxAttempts with the default backoff strategy.
func WithRetryPolicy(p backoff.Policy) Option {
	return func(e *Engine) {
		e.retry = p
		e.retrySet = true
	}
}

// WithLimits installs per-workflow admission limits. Workflows without a
// config are unlimited.
func WithLimits(cfgs ...limit.Config) Option {
	return func(e *Engine) { e.limitCfgs = append(e.limitCfgs, cfgs...) }
}

// New creates an engine and starts its worker pool.
func New(opts ...Option) (*Engine, error) {
	e := &Engine{
		cfg:    stepflow.DefaultConfig(),
		logger: slog.Default(),
		graphs: graph.NewRegistry(),
		active: make(map[id.RunID]*runState),
	}
	for _, opt := range opts {
		opt(e)
	}

	e.cfg = e.cfg.Normalize()
	if e.store == nil {
		e.store = memory.New()
	}
	if !e.retrySet {
		e.retry = backoff.Policy{
			MaxAttempts: e.cfg.DefaultMaxAttempts,
			Strategy:    backoff.DefaultStrategy(),
		}
	}

	e.hooks = intercept.NewRegistry(e.logger)
	for _, i := range e.interceptors {
		e.hooks.Add(i)
	}

	e.limits = limit.NewManager(e.limitCfgs...)
	e.tracker = progress.NewTracker(e.store)
	e.pool = worker.NewPool(e.cfg.CoreWorkers, e.cfg.MaxWorkers, e.cfg.QueueCapacity, worker.WithPoolLogger(e.logger))
	e.sched = worker.NewScheduler(e.logger)
	e.baseCtx, e.baseCancel = context.WithCancel(context.Background())

	if err := e.pool.Start(context.Background()); err != nil {
		return nil, fmt.Errorf("stepflow: start worker pool: %w", err)
	}

	e.logger.Info("engine ready",
		slog.Int("core_workers", e.cfg.CoreWorkers),
		slog.Int("max_workers", e.cfg.MaxWorkers),
		slog.Int("queue_capacity", e.cfg.QueueCapacity),
	)
	return e, nil
}

// Register stores a workflow graph under its name. Re-registration
// overwrites; runs already in flight keep the graph they started with
// only until their next step resolution.
func (e *Engine) Register(g *graph.Graph) error {
	return e.graphs.Register(g)
}

// AddInterceptor registers an interceptor after construction.
func (e *Engine) AddInterceptor(i intercept.Interceptor) {
	e.hooks.Add(i)
}

// Execute starts a new run of the named workflow. The input is
// JSON-marshaled onto the persisted run and handed to the start step. The
// returned handle reports the terminal outcome; Execute itself returns as
// soon as the run is persisted and scheduled.
func (e *Engine) Execute(ctx context.Context, workflow string, input any) (*Execution, error) {
	if e.isClosed() {
		return nil, stepflow.ErrEngineClosed
	}

	g, ok := e.graphs.Get(workflow)
	if !ok {
		return nil, fmt.Errorf("execute workflow %q: %w", workflow, stepflow.ErrWorkflowNotFound)
	}

	data, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("stepflow: marshal input for workflow %q: %w", workflow, err)
	}

	if !e.limits.Acquire(workflow) {
		return nil, stepflow.ErrRunRejected
	}

	r := run.New(workflow, data)
	r.CurrentStep = g.StartStep()
	r.CurrentInput = data

	if err := e.store.CreateRun(ctx, r); err != nil {
		e.limits.Release(workflow)
		return nil, fmt.Errorf("stepflow: create run: %w", err)
	}

	rs := e.track(r)
	if err := e.pool.Submit(func() { e.start(rs, r, input) }); err != nil {
		e.abortDispatch(rs, r, err)
		if errors.Is(err, stepflow.ErrPoolClosed) {
			return nil, stepflow.ErrEngineClosed
		}
		return nil, err
	}

	e.logger.Info("run scheduled",
		slog.String("run_id", r.ID.String()),
		slog.String("workflow", workflow),
	)
	return &Execution{engine: e, rs: rs}, nil
}

// Resume wakes a suspended run with an external event. The event token
// must match the run's await token; the event payload becomes the
// continuation step's input and is appended to the run context under
// EventKey.
func (e *Engine) Resume(ctx context.Context, runID id.RunID, ev Event) (*Execution, error) {
	return e.resume(ctx, runID, ev)
}

func (e *Engine) resume(ctx context.Context, runID id.RunID, ev Event) (*Execution, error) {
	if e.isClosed() {
		return nil, stepflow.ErrEngineClosed
	}

	r, err := e.store.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if r.Status != run.StatusSuspended {
		return nil, &stepflow.IllegalResumeStateError{RunID: runID, Status: string(r.Status)}
	}

	susp, err := e.store.GetSuspension(ctx, r.AwaitToken)
	if err != nil {
		return nil, err
	}
	if ev.Token != susp.Token {
		return nil, stepflow.ErrTokenMismatch
	}

	rs, err := e.stateFor(ctx, r)
	if err != nil {
		return nil, err
	}
	if !rs.tryDrive() {
		// Lost the race against a concurrent resume, a finishing child
		// workflow, or a cancellation.
		st := run.StatusRunning
		if terminal, ok := rs.terminalStatus(); ok {
			st = terminal
		}
		return nil, &stepflow.IllegalResumeStateError{RunID: runID, Status: string(st)}
	}

	if !e.limits.Acquire(r.Workflow) {
		rs.park()
		return nil, stepflow.ErrRunRejected
	}
	rs.grantSlot()

	r.Context.Add(EventKey, ev.Data)
	r.Status = run.StatusRunning
	r.AwaitToken = ""
	r.Touch()
	if err := e.store.UpdateRun(ctx, r); err != nil {
		rs.park()
		if rs.releaseSlot() {
			e.limits.Release(r.Workflow)
		}
		return nil, fmt.Errorf("stepflow: persist resume: %w", err)
	}
	if err := e.store.DeleteSuspension(ctx, susp.Token); err != nil {
		e.logger.Warn("delete suspension",
			slog.String("token", susp.Token),
			slog.String("error", err.Error()),
		)
	}

	step, input := susp.NextStep, ev.Data
	if err := e.pool.Submit(func() { e.drive(rs, r, step, input, 1) }); err != nil {
		e.abortDispatch(rs, r, err)
		if errors.Is(err, stepflow.ErrPoolClosed) {
			return nil, stepflow.ErrEngineClosed
		}
		return nil, err
	}

	e.logger.Info("run resumed",
		slog.String("run_id", r.ID.String()),
		slog.String("workflow", r.Workflow),
		slog.String("step", step),
	)
	return &Execution{engine: e, rs: rs}, nil
}

// Instance returns the persisted snapshot of a run.
func (e *Engine) Instance(ctx context.Context, runID id.RunID) (*run.Run, error) {
	return e.store.GetRun(ctx, runID)
}

// Records returns a run's execution history in dispatch order.
func (e *Engine) Records(ctx context.Context, runID id.RunID) ([]*run.Record, error) {
	return e.store.ListRecords(ctx, runID)
}

// Sessions exposes the chat-session aggregate of the engine's store.
func (e *Engine) Sessions() session.Store { return e.store }

// Progress exposes the progress tracker backed by the engine's store.
func (e *Engine) Progress() *progress.Tracker { return e.tracker }

// AsyncStates exposes the async step state aggregate of the engine's
// store, for handlers that checkpoint partial work before suspending.
func (e *Engine) AsyncStates() run.AsyncStore { return e.store }

// Store returns the engine's composite store.
func (e *Engine) Store() store.Store { return e.store }

// Graphs returns the workflow graph registry.
func (e *Engine) Graphs() *graph.Registry { return e.graphs }

// Shutdown stops the engine: new dispatches are rejected, pending retry
// timers are cancelled, in-flight steps drain, and the store is closed.
// Runs parked in the store stay resumable by a future engine instance.
// Without a caller deadline the wait is bounded by Config.ShutdownTimeout.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	e.logger.Info("engine shutting down")

	if _, ok := ctx.Deadline(); !ok && e.cfg.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.ShutdownTimeout)
		defer cancel()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return e.sched.Shutdown(gctx) })
	g.Go(func() error { return e.pool.Shutdown(gctx) })
	err := g.Wait()

	e.baseCancel()

	if cerr := e.store.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

func (e *Engine) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// track registers in-memory state for a freshly created run. The run
// holds an admission slot until it suspends or terminates.
func (e *Engine) track(r *run.Run) *runState {
	rs := newRunState(r)
	rs.slot = true
	e.mu.Lock()
	e.active[r.ID] = rs
	e.mu.Unlock()
	return rs
}

// stateFor returns the in-memory state for a run, rebuilding it from the
// store when the run was started by an earlier process. The rebuilt state
// continues the record sequence where the persisted history left off.
func (e *Engine) stateFor(ctx context.Context, r *run.Run) (*runState, error) {
	e.mu.Lock()
	if rs, ok := e.active[r.ID]; ok {
		e.mu.Unlock()
		return rs, nil
	}
	e.mu.Unlock()

	recs, err := e.store.ListRecords(ctx, r.ID)
	if err != nil {
		return nil, fmt.Errorf("stepflow: load records for run %s: %w", r.ID, err)
	}
	rs := newRunState(r)
	if n := len(recs); n > 0 {
		rs.seq.Store(recs[n-1].Seq + 1)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if existing, ok := e.active[r.ID]; ok {
		return existing, nil
	}
	e.active[r.ID] = rs
	return rs, nil
}

func (e *Engine) untrack(runID id.RunID) {
	e.mu.Lock()
	delete(e.active, runID)
	e.mu.Unlock()
}

// retryPolicyFor returns the step's own retry policy or the engine
// default.
func (e *Engine) retryPolicyFor(node *graph.Step) backoff.Policy {
	if node.Retry != nil {
		return *node.Retry
	}
	return e.retry
}
