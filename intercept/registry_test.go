package intercept_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"testing"
	"time"

	"github.com/xraph/stepflow/graph"
	"github.com/xraph/stepflow/intercept"
	"github.com/xraph/stepflow/run"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func stepCtx(step string) *intercept.StepContext {
	return &intercept.StepContext{
		Run:     run.New("wf", nil),
		Step:    &graph.Step{Name: step},
		Entry:   1,
		Attempt: 1,
	}
}

// recorder captures every hook it receives, and optionally misbehaves.
type recorder struct {
	name      string
	events    []string
	hookErr   error
	hookPanic any
}

func (r *recorder) Name() string { return r.name }

func (r *recorder) OnBeforeStep(_ context.Context, sc *intercept.StepContext) error {
	r.events = append(r.events, "before:"+sc.Step.Name)
	if r.hookPanic != nil {
		panic(r.hookPanic)
	}
	return r.hookErr
}

func (r *recorder) OnAfterStep(_ context.Context, sc *intercept.StepContext, _ graph.Result, _ time.Duration) error {
	r.events = append(r.events, "after:"+sc.Step.Name)
	return r.hookErr
}

func (r *recorder) OnStepError(_ context.Context, sc *intercept.StepContext, stepErr error, _ time.Duration) error {
	r.events = append(r.events, "error:"+sc.Step.Name+":"+stepErr.Error())
	return r.hookErr
}

func (r *recorder) OnWorkflowStarted(_ context.Context, rn *run.Run) error {
	r.events = append(r.events, "wf-started:"+rn.Workflow)
	return r.hookErr
}

func (r *recorder) OnWorkflowCompleted(_ context.Context, rn *run.Run, _ time.Duration) error {
	r.events = append(r.events, "wf-completed:"+rn.Workflow)
	return r.hookErr
}

func (r *recorder) OnWorkflowFailed(_ context.Context, rn *run.Run, runErr error) error {
	r.events = append(r.events, "wf-failed:"+rn.Workflow+":"+runErr.Error())
	return r.hookErr
}

// beforeOnly implements just the base interface plus BeforeStep.
type beforeOnly struct {
	calls int
}

func (b *beforeOnly) Name() string { return "before-only" }

func (b *beforeOnly) OnBeforeStep(context.Context, *intercept.StepContext) error {
	b.calls++
	return nil
}

func TestRegistryEmitsInRegistrationOrder(t *testing.T) {
	reg := intercept.NewRegistry(testLogger())
	first := &recorder{name: "first"}
	second := &recorder{name: "second"}
	reg.Add(first)
	reg.Add(second)

	sc := stepCtx("plan")
	reg.EmitBeforeStep(context.Background(), sc)
	reg.EmitAfterStep(context.Background(), sc, graph.Finish(nil), time.Millisecond)

	want := []string{"before:plan", "after:plan"}
	if !reflect.DeepEqual(first.events, want) {
		t.Errorf("first events = %v, want %v", first.events, want)
	}
	if !reflect.DeepEqual(second.events, want) {
		t.Errorf("second events = %v, want %v", second.events, want)
	}
}

func TestRegistryOnlyNotifiesImplementedHooks(t *testing.T) {
	reg := intercept.NewRegistry(testLogger())
	b := &beforeOnly{}
	reg.Add(b)

	sc := stepCtx("plan")
	reg.EmitBeforeStep(context.Background(), sc)
	reg.EmitAfterStep(context.Background(), sc, graph.Finish(nil), 0)
	reg.EmitStepError(context.Background(), sc, errors.New("x"), 0)
	reg.EmitWorkflowStarted(context.Background(), sc.Run)

	if b.calls != 1 {
		t.Errorf("before calls = %d, want 1", b.calls)
	}
}

func TestRegistryIsolatesObserverErrors(t *testing.T) {
	reg := intercept.NewRegistry(testLogger())
	failing := &recorder{name: "failing", hookErr: errors.New("observer broke")}
	healthy := &recorder{name: "healthy"}
	reg.Add(failing)
	reg.Add(healthy)

	sc := stepCtx("act")
	reg.EmitBeforeStep(context.Background(), sc)
	reg.EmitWorkflowFailed(context.Background(), sc.Run, errors.New("run error"))

	if len(healthy.events) != 2 {
		t.Errorf("healthy observer saw %d events, want 2 (failing observer must not block)", len(healthy.events))
	}
}

func TestRegistryIsolatesObserverPanics(t *testing.T) {
	reg := intercept.NewRegistry(testLogger())
	panicking := &recorder{name: "panicking", hookPanic: "observer exploded"}
	healthy := &recorder{name: "healthy"}
	reg.Add(panicking)
	reg.Add(healthy)

	sc := stepCtx("act")
	reg.EmitBeforeStep(context.Background(), sc)

	if got := len(healthy.events); got != 1 {
		t.Errorf("healthy observer saw %d events, want 1 (panic must be contained)", got)
	}
}

// substituter substitutes a fixed result for one step name.
type substituter struct {
	name   string
	step   string
	result graph.Result
	err    error
	calls  int
}

func (s *substituter) Name() string { return s.name }

func (s *substituter) InterceptStep(_ context.Context, sc *intercept.StepContext) (graph.Result, bool, error) {
	if sc.Step.Name != s.step {
		return graph.Result{}, false, nil
	}
	s.calls++
	if s.err != nil {
		return graph.Result{}, true, s.err
	}
	return s.result, true, nil
}

func TestSubstituteFirstMatchWins(t *testing.T) {
	reg := intercept.NewRegistry(testLogger())
	first := &substituter{name: "first", step: "plan", result: graph.Finish("from-first")}
	second := &substituter{name: "second", step: "plan", result: graph.Finish("from-second")}
	reg.Add(first)
	reg.Add(second)

	res, ok, err := reg.Substitute(context.Background(), stepCtx("plan"))
	if err != nil {
		t.Fatalf("substitute error: %v", err)
	}
	if !ok {
		t.Fatal("ok = false, want substitution")
	}
	if res.Data() != "from-first" {
		t.Errorf("result = %v, want from-first", res.Data())
	}
	if second.calls != 0 {
		t.Errorf("second substituter consulted %d times, want 0", second.calls)
	}
}

func TestSubstituteFallsThroughNonMatching(t *testing.T) {
	reg := intercept.NewRegistry(testLogger())
	reg.Add(&substituter{name: "other-step", step: "other", result: graph.Finish(nil)})

	_, ok, err := reg.Substitute(context.Background(), stepCtx("plan"))
	if err != nil {
		t.Fatalf("substitute error: %v", err)
	}
	if ok {
		t.Error("ok = true, want fall-through to the real handler")
	}
}

func TestSubstituteErrorPropagates(t *testing.T) {
	reg := intercept.NewRegistry(testLogger())
	boom := errors.New("substitution failed")
	reg.Add(&substituter{name: "thrower", step: "plan", err: boom})

	_, ok, err := reg.Substitute(context.Background(), stepCtx("plan"))
	if !ok {
		t.Error("ok = false, want true for an active substitution")
	}
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want the original substitution error", err)
	}
}

func TestStepContextValues(t *testing.T) {
	sc := stepCtx("plan")

	if _, ok := sc.Value("span"); ok {
		t.Error("Value before Set = ok, want missing")
	}

	sc.Set("span", 123)
	v, ok := sc.Value("span")
	if !ok {
		t.Fatal("Value after Set reported missing")
	}
	if v != 123 {
		t.Errorf("Value = %v, want 123", v)
	}
}

func TestRegistryInterceptorsSnapshot(t *testing.T) {
	reg := intercept.NewRegistry(testLogger())
	reg.Add(&recorder{name: "a"})
	reg.Add(&recorder{name: "b"})

	got := reg.Interceptors()
	if len(got) != 2 {
		t.Fatalf("Interceptors() len = %d, want 2", len(got))
	}
	if got[0].Name() != "a" || got[1].Name() != "b" {
		t.Errorf("Interceptors() order = [%s %s], want [a b]", got[0].Name(), got[1].Name())
	}
}
