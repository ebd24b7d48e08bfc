package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xraph/stepflow"
	"github.com/xraph/stepflow/graph"
	"github.com/xraph/stepflow/id"
	"github.com/xraph/stepflow/intercept"
	"github.com/xraph/stepflow/run"
	"github.com/xraph/stepflow/worker"
)

var (
	errNoResult    = errors.New("handler returned no result")
	errFailNoCause = errors.New("handler reported failure without a cause")
)

// runState is the in-memory control block for one run. Dispatch for a run
// is strictly sequential: at most one goroutine drives it at a time, and
// a suspended run has no goroutine at all, only this struct and the
// persisted snapshot.
type runState struct {
	runID    id.RunID
	workflow string

	// seq numbers execution records in dispatch order, 0-based.
	seq       atomic.Int64
	cancelled atomic.Bool
	done      chan struct{}

	mu         sync.Mutex
	driving    bool
	terminal   bool
	status     run.Status
	result     any
	err        error
	slot       bool
	cancelStep context.CancelFunc
	retryTimer *worker.Timer
	onTerminal func(status run.Status, result any, err error)
}

func newRunState(r *run.Run) *runState {
	return &runState{
		runID:    r.ID,
		workflow: r.Workflow,
		done:     make(chan struct{}),
	}
}

func (rs *runState) nextSeq() int64 { return rs.seq.Add(1) - 1 }

func (rs *runState) isTerminal() bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.terminal
}

func (rs *runState) terminalStatus() (run.Status, bool) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.status, rs.terminal
}

// terminate decides the run's terminal state exactly once. A pending
// cancellation overrides any other outcome, so a cancelled run never
// reports completed or failed. The caller that wins must finalize.
func (rs *runState) terminate(status run.Status, result any, err error) (run.Status, any, error, bool) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.terminal {
		return rs.status, rs.result, rs.err, false
	}
	if rs.cancelled.Load() && status != run.StatusCancelled {
		status, result, err = run.StatusCancelled, nil, stepflow.ErrRunCancelled
	}
	rs.terminal = true
	rs.driving = false
	rs.status = status
	rs.result = result
	rs.err = err
	close(rs.done)
	return status, result, err, true
}

func (rs *runState) outcome() (run.Status, any, error) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.status, rs.result, rs.err
}

// tryDrive claims the run's single dispatch activation.
func (rs *runState) tryDrive() bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.terminal || rs.driving {
		return false
	}
	rs.driving = true
	return true
}

// park releases the dispatch activation without terminating, leaving the
// run waiting for a resume.
func (rs *runState) park() {
	rs.mu.Lock()
	rs.driving = false
	rs.mu.Unlock()
}

func (rs *runState) grantSlot() {
	rs.mu.Lock()
	rs.slot = true
	rs.mu.Unlock()
}

// releaseSlot clears the admission slot and reports whether one was held.
func (rs *runState) releaseSlot() bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	held := rs.slot
	rs.slot = false
	return held
}

func (rs *runState) setCancelStep(fn context.CancelFunc) {
	rs.mu.Lock()
	rs.cancelStep = fn
	rs.mu.Unlock()
}

func (rs *runState) clearCancelStep() {
	rs.mu.Lock()
	rs.cancelStep = nil
	rs.mu.Unlock()
}

// interrupt cancels the in-flight handler context, if any.
func (rs *runState) interrupt() {
	rs.mu.Lock()
	fn := rs.cancelStep
	rs.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (rs *runState) setRetryTimer(t *worker.Timer) {
	rs.mu.Lock()
	rs.retryTimer = t
	rs.mu.Unlock()
}

func (rs *runState) cancelRetry() {
	rs.mu.Lock()
	t := rs.retryTimer
	rs.retryTimer = nil
	rs.mu.Unlock()
	if t != nil {
		t.Cancel()
	}
}

func (rs *runState) setOnTerminal(fn func(status run.Status, result any, err error)) {
	rs.mu.Lock()
	rs.onTerminal = fn
	rs.mu.Unlock()
}

func (rs *runState) takeOnTerminal() func(status run.Status, result any, err error) {
	rs.mu.Lock()
	fn := rs.onTerminal
	rs.onTerminal = nil
	rs.mu.Unlock()
	return fn
}

// transition carries the next dispatch of a driving run.
type transition struct {
	step  string
	input any
}

// start performs the created-to-running transition and drives the run
// from its start step. Runs on a pool worker.
func (e *Engine) start(rs *runState, r *run.Run, input any) {
	if !rs.tryDrive() {
		return
	}

	r.Status = run.StatusRunning
	r.Touch()
	if err := e.store.UpdateRun(e.baseCtx, r); err != nil {
		e.logger.Error("persist run start",
			slog.String("run_id", r.ID.String()),
			slog.String("error", err.Error()),
		)
	}

	e.record(rs, r, run.RecordWorkflow, "", run.RecordStarted, r.Input, "")
	e.hooks.EmitWorkflowStarted(e.baseCtx, r)
	e.logger.Info("run started",
		slog.String("run_id", r.ID.String()),
		slog.String("workflow", r.Workflow),
		slog.String("step", r.CurrentStep),
	)

	e.drive(rs, r, r.CurrentStep, input, 1)
}

// drive advances the run step by step until it finishes, fails, suspends,
// or schedules a retry. The caller must hold the dispatch activation.
// While the activation is held, this goroutine owns finalization: a
// cancellation raised elsewhere is observed here and converted into the
// terminal state.
func (e *Engine) drive(rs *runState, r *run.Run, step string, input any, attempt int) {
	for {
		if rs.isTerminal() {
			return
		}
		if rs.cancelled.Load() {
			e.failRun(rs, r, stepflow.ErrRunCancelled)
			return
		}
		next := e.dispatch(rs, r, step, input, attempt)
		if next == nil {
			return
		}
		step, input, attempt = next.step, next.input, 1
	}
}

// dispatch executes one step attempt and returns the follow-up dispatch,
// or nil when the run terminated, suspended, or scheduled a retry.
func (e *Engine) dispatch(rs *runState, r *run.Run, step string, input any, attempt int) *transition {
	node, err := e.graphs.Resolve(r.Workflow, step)
	if err != nil {
		e.failRun(rs, r, err)
		return nil
	}

	entry := r.Invocations[step]
	if attempt == 1 {
		if node.InvocationLimit > 0 && entry >= node.InvocationLimit {
			e.applyLimitPolicy(rs, r, node, input)
			return nil
		}
		entry++
		if r.Invocations == nil {
			r.Invocations = make(map[string]int)
		}
		r.Invocations[step] = entry
	}

	r.CurrentStep = step
	r.CurrentInput = marshalLoose(input)

	sc := &intercept.StepContext{
		Run:     r,
		Step:    node,
		Input:   input,
		Entry:   entry,
		Attempt: attempt,
	}
	hctx := stepflow.WithRunInfo(e.baseCtx, stepflow.RunInfo{
		RunID:    r.ID,
		Workflow: r.Workflow,
		Step:     step,
		Entry:    entry,
		Attempt:  attempt,
	})

	e.record(rs, r, run.RecordStep, step, run.RecordStarted, r.CurrentInput, "")
	e.hooks.EmitBeforeStep(hctx, sc)

	started := time.Now()
	res, herr := e.invoke(hctx, rs, r, node, sc, input)
	elapsed := time.Since(started)

	if herr == nil {
		switch res.Kind() {
		case graph.KindFail:
			cause := res.Err()
			if cause == nil {
				cause = errFailNoCause
			}
			herr = &stepflow.HandlerExecutionError{Workflow: r.Workflow, Step: step, Err: cause}
		case graph.KindContinue, graph.KindFinish, graph.KindSuspend:
		default:
			herr = &stepflow.HandlerExecutionError{Workflow: r.Workflow, Step: step, Err: errNoResult}
		}
	}

	if herr != nil {
		e.hooks.EmitStepError(hctx, sc, herr, elapsed)
		if rs.isTerminal() {
			return nil
		}
		if rs.cancelled.Load() {
			// Cancelled mid-step. The failure is the interruption
			// itself; terminate with the cancelled outcome instead of
			// feeding the retry pipeline.
			e.failRun(rs, r, stepflow.ErrRunCancelled)
			return nil
		}
		e.record(rs, r, run.RecordStep, step, run.RecordFailed, nil, herr.Error())
		r.Touch()
		if uerr := e.store.UpdateRun(e.baseCtx, r); uerr != nil {
			e.logger.Error("persist run after step failure",
				slog.String("run_id", r.ID.String()),
				slog.String("error", uerr.Error()),
			)
		}
		e.retryOrFail(rs, r, node, step, input, attempt, herr)
		return nil
	}

	e.hooks.EmitAfterStep(hctx, sc, res, elapsed)
	if rs.isTerminal() {
		return nil
	}
	if rs.cancelled.Load() {
		// Cancelled while the step ran; its outcome is discarded.
		e.failRun(rs, r, stepflow.ErrRunCancelled)
		return nil
	}

	e.record(rs, r, run.RecordStep, step, run.RecordCompleted, marshalLoose(res.Data()), "")

	switch res.Kind() {
	case graph.KindContinue:
		r.Touch()
		if uerr := e.store.UpdateRun(e.baseCtx, r); uerr != nil {
			e.logger.Error("persist run after step",
				slog.String("run_id", r.ID.String()),
				slog.String("error", uerr.Error()),
			)
		}
		return &transition{step: res.Next(), input: res.Data()}
	case graph.KindFinish:
		e.completeRun(rs, r, res.Data())
		return nil
	default: // graph.KindSuspend
		e.suspendRun(rs, r, res)
		return nil
	}
}

// invoke runs the step handler, or an interceptor substitution in its
// place, under the step's timeout. The returned error is always a
// HandlerExecutionError, a StepTimeoutError, or ErrRunCancelled.
func (e *Engine) invoke(ctx context.Context, rs *runState, r *run.Run, node *graph.Step, sc *intercept.StepContext, input any) (graph.Result, error) {
	if res, ok, serr := e.hooks.Substitute(ctx, sc); ok {
		if serr != nil {
			return graph.Result{}, &stepflow.HandlerExecutionError{Workflow: r.Workflow, Step: node.Name, Err: serr}
		}
		return res, nil
	}

	timeout := node.Timeout
	if timeout <= 0 {
		timeout = e.cfg.DefaultStepTimeout
	}

	var hctx context.Context
	var cancel context.CancelFunc
	if timeout > 0 {
		hctx, cancel = context.WithTimeout(ctx, timeout)
	} else {
		hctx, cancel = context.WithCancel(ctx)
	}
	defer cancel()
	rs.setCancelStep(cancel)
	defer rs.clearCancelStep()

	type outcome struct {
		res graph.Result
		err error
	}
	ch := make(chan outcome, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				ch <- outcome{err: fmt.Errorf("panic: %v", rec)}
			}
		}()
		res, err := node.Handler(hctx, input, r.Context)
		ch <- outcome{res: res, err: err}
	}()

	select {
	case o := <-ch:
		if o.err != nil {
			return graph.Result{}, &stepflow.HandlerExecutionError{Workflow: r.Workflow, Step: node.Name, Err: o.err}
		}
		return o.res, nil
	case <-hctx.Done():
		if timeout > 0 && errors.Is(hctx.Err(), context.DeadlineExceeded) {
			return graph.Result{}, &stepflow.StepTimeoutError{Workflow: r.Workflow, Step: node.Name, Timeout: timeout}
		}
		return graph.Result{}, stepflow.ErrRunCancelled
	}
}

// retryOrFail schedules the next attempt of a failed step, or terminates
// the run when the attempt budget is spent. The dispatch activation is
// released during the backoff wait; the timer claims it back.
func (e *Engine) retryOrFail(rs *runState, r *run.Run, node *graph.Step, step string, input any, attempt int, herr error) {
	policy := e.retryPolicyFor(node)
	delay, ok := policy.Next(attempt)
	if !ok {
		e.failRun(rs, r, herr)
		return
	}

	e.logger.Debug("step retry scheduled",
		slog.String("run_id", r.ID.String()),
		slog.String("step", step),
		slog.Int("attempt", attempt+1),
		slog.Duration("delay", delay),
	)

	next := attempt + 1
	rs.park()
	if rs.cancelled.Load() && rs.tryDrive() {
		e.failRun(rs, r, stepflow.ErrRunCancelled)
		return
	}
	timer := e.sched.After(delay, func() {
		rs.setRetryTimer(nil)
		if !rs.tryDrive() {
			return
		}
		if serr := e.pool.Submit(func() { e.drive(rs, r, step, input, next) }); serr != nil {
			if errors.Is(serr, stepflow.ErrPoolClosed) {
				e.logger.Warn("retry dropped on shutdown",
					slog.String("run_id", r.ID.String()),
					slog.String("step", step),
				)
				return
			}
			e.failRun(rs, r, fmt.Errorf("stepflow: schedule retry: %w", serr))
		}
	})
	rs.setRetryTimer(timer)
}

// applyLimitPolicy handles a step whose invocation limit is already
// spent: stop completes the run with the input that reached the guarded
// step, fail terminates it with a StepLimitExceededError.
func (e *Engine) applyLimitPolicy(rs *runState, r *run.Run, node *graph.Step, input any) {
	if node.OnLimit == graph.LimitFail {
		e.failRun(rs, r, &stepflow.StepLimitExceededError{
			Workflow: r.Workflow,
			Step:     node.Name,
			Limit:    node.InvocationLimit,
		})
		return
	}
	e.logger.Info("invocation limit reached, stopping run",
		slog.String("run_id", r.ID.String()),
		slog.String("step", node.Name),
		slog.Int("limit", node.InvocationLimit),
	)
	e.completeRun(rs, r, input)
}

// suspendRun parks the run behind an await token. For a handoff the token
// is the child run's ID and the child is launched before this returns.
func (e *Engine) suspendRun(rs *runState, r *run.Run, res graph.Result) {
	token := res.Token()
	var h *run.Handoff
	var child *run.Run
	var childInput any

	if wf, in, ok := res.Handoff(); ok {
		cg, registered := e.graphs.Get(wf)
		if !registered {
			e.failRun(rs, r, fmt.Errorf("handoff to workflow %q: %w", wf, stepflow.ErrWorkflowNotFound))
			return
		}
		data := marshalLoose(in)
		child = run.New(wf, data)
		child.CurrentStep = cg.StartStep()
		child.CurrentInput = data
		childInput = in
		token = child.ID.String()
		h = &run.Handoff{Workflow: wf, Input: data, ChildRunID: child.ID}
	}
	if token == "" {
		token = id.NewTokenID().String()
	}

	susp := &run.Suspension{
		Entity:   stepflow.NewEntity(),
		Token:    token,
		RunID:    r.ID,
		NextStep: res.ContinueTo(),
		Data:     marshalLoose(res.Data()),
		Handoff:  h,
	}
	if err := e.store.SaveSuspension(e.baseCtx, susp); err != nil {
		e.failRun(rs, r, fmt.Errorf("stepflow: save suspension: %w", err))
		return
	}

	r.Status = run.StatusSuspended
	r.AwaitToken = token
	r.CurrentStep = res.ContinueTo()
	r.Touch()
	if err := e.store.UpdateRun(e.baseCtx, r); err != nil {
		e.logger.Error("persist suspension",
			slog.String("run_id", r.ID.String()),
			slog.String("error", err.Error()),
		)
	}

	rs.park()
	if rs.releaseSlot() {
		e.limits.Release(r.Workflow)
	}

	// A cancel that landed while we were parking deferred to this
	// goroutine; pick it up so the caller is not left waiting.
	if rs.cancelled.Load() && rs.tryDrive() {
		e.failRun(rs, r, stepflow.ErrRunCancelled)
		return
	}

	e.logger.Info("run suspended",
		slog.String("run_id", r.ID.String()),
		slog.String("token", token),
		slog.String("next_step", res.ContinueTo()),
	)

	if child != nil {
		e.launchChild(r.ID, token, child, childInput)
	}
}

// launchChild starts the handoff child run. Whatever way the child ends,
// its terminal state resumes the parent through the handoff token.
func (e *Engine) launchChild(parentID id.RunID, token string, child *run.Run, input any) {
	if !e.limits.Acquire(child.Workflow) {
		e.completeHandoff(parentID, token, run.StatusFailed, nil, stepflow.ErrRunRejected)
		return
	}
	if err := e.store.CreateRun(e.baseCtx, child); err != nil {
		e.limits.Release(child.Workflow)
		e.completeHandoff(parentID, token, run.StatusFailed, nil, fmt.Errorf("stepflow: create handoff run: %w", err))
		return
	}

	crs := e.track(child)
	crs.setOnTerminal(func(status run.Status, result any, err error) {
		e.completeHandoff(parentID, token, status, result, err)
	})

	e.logger.Info("handoff child scheduled",
		slog.String("parent_run_id", parentID.String()),
		slog.String("run_id", child.ID.String()),
		slog.String("workflow", child.Workflow),
	)

	if err := e.pool.Submit(func() { e.start(crs, child, input) }); err != nil {
		e.abortDispatch(crs, child, err)
	}
}

// completeHandoff resumes the parent of a finished child run. A completed
// child delivers its result; a failed or cancelled child delivers the
// error text, leaving the continuation step to decide what that means.
func (e *Engine) completeHandoff(parentID id.RunID, token string, status run.Status, result any, err error) {
	var payload any
	if status == run.StatusCompleted {
		payload = result
	} else if err != nil {
		payload = err.Error()
	}
	if _, rerr := e.resume(e.baseCtx, parentID, Event{Token: token, Data: payload}); rerr != nil {
		e.logger.Error("resume parent after handoff",
			slog.String("run_id", parentID.String()),
			slog.String("token", token),
			slog.String("error", rerr.Error()),
		)
	}
}

func (e *Engine) completeRun(rs *runState, r *run.Run, result any) {
	st, res, terr, won := rs.terminate(run.StatusCompleted, result, nil)
	if won {
		e.finalize(rs, r, st, res, terr)
	}
}

func (e *Engine) failRun(rs *runState, r *run.Run, cause error) {
	st, res, terr, won := rs.terminate(run.StatusFailed, nil, cause)
	if won {
		e.finalize(rs, r, st, res, terr)
	}
}

// abortDispatch fails a run that could not be scheduled.
func (e *Engine) abortDispatch(rs *runState, r *run.Run, cause error) {
	e.failRun(rs, r, cause)
}

// cancelRun requests cancellation. When a goroutine is driving the run,
// it owns finalization and converts the cancel flag into the terminal
// state itself; otherwise the run is parked and cancelRun finalizes
// directly, persisting from a fresh store snapshot because the live run
// value belongs to dispatch.
func (e *Engine) cancelRun(rs *runState) {
	rs.cancelled.Store(true)
	rs.cancelRetry()

	rs.mu.Lock()
	if rs.terminal {
		rs.mu.Unlock()
		return
	}
	driving := rs.driving
	rs.mu.Unlock()

	if driving {
		rs.interrupt()
		return
	}
	if !rs.tryDrive() {
		return
	}

	st, res, terr, won := rs.terminate(run.StatusCancelled, nil, stepflow.ErrRunCancelled)
	if !won {
		return
	}

	r, err := e.store.GetRun(e.baseCtx, rs.runID)
	if err != nil {
		e.logger.Error("load run for cancel",
			slog.String("run_id", rs.runID.String()),
			slog.String("error", err.Error()),
		)
		r = &run.Run{Entity: stepflow.NewEntity(), ID: rs.runID, Workflow: rs.workflow}
	}
	e.finalize(rs, r, st, res, terr)
}

// finalize persists the terminal state decided by terminate and emits the
// workflow-level record and hooks. Exactly one caller per run gets here.
func (e *Engine) finalize(rs *runState, r *run.Run, status run.Status, result any, terr error) {
	now := time.Now().UTC()
	r.Status = status
	r.CompletedAt = &now
	switch status {
	case run.StatusCompleted:
		r.Result = marshalLoose(result)
		r.Error = ""
	default:
		if terr != nil {
			r.Error = terr.Error()
		}
	}
	r.Touch()
	if err := e.store.UpdateRun(e.baseCtx, r); err != nil {
		e.logger.Error("persist terminal run",
			slog.String("run_id", r.ID.String()),
			slog.String("status", string(status)),
			slog.String("error", err.Error()),
		)
	}

	elapsed := now.Sub(r.StartedAt)
	switch status {
	case run.StatusCompleted:
		e.record(rs, r, run.RecordWorkflow, "", run.RecordCompleted, r.Result, "")
		e.hooks.EmitWorkflowCompleted(e.baseCtx, r, elapsed)
		e.logger.Info("run completed",
			slog.String("run_id", r.ID.String()),
			slog.String("workflow", r.Workflow),
			slog.Duration("elapsed", elapsed),
		)
	default:
		e.record(rs, r, run.RecordWorkflow, "", run.RecordFailed, nil, r.Error)
		e.hooks.EmitWorkflowFailed(e.baseCtx, r, terr)
		e.logger.Info("run ended",
			slog.String("run_id", r.ID.String()),
			slog.String("workflow", r.Workflow),
			slog.String("status", string(status)),
			slog.String("error", r.Error),
		)
	}

	if rs.releaseSlot() {
		e.limits.Release(r.Workflow)
	}
	e.untrack(rs.runID)

	if fn := rs.takeOnTerminal(); fn != nil {
		fn(status, result, terr)
	}
}

// record appends an execution record, logging rather than failing the run
// when the store write does not land.
func (e *Engine) record(rs *runState, r *run.Run, typ run.RecordType, step string, status run.RecordStatus, data []byte, errText string) {
	rec := &run.Record{
		ID:        id.NewRecordID(),
		RunID:     r.ID,
		Workflow:  r.Workflow,
		Type:      typ,
		Step:      step,
		Status:    status,
		Data:      data,
		Error:     errText,
		Seq:       rs.nextSeq(),
		Timestamp: time.Now().UTC(),
	}
	if err := e.store.AppendRecord(e.baseCtx, rec); err != nil {
		e.logger.Warn("append execution record",
			slog.String("run_id", r.ID.String()),
			slog.String("error", err.Error()),
		)
	}
}

// marshalLoose encodes a value for persistence, best effort: a value that
// does not marshal persists as nil while the live value keeps flowing
// through dispatch in memory.
func marshalLoose(v any) []byte {
	if v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}
