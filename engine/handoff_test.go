package engine_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/xraph/stepflow"
	"github.com/xraph/stepflow/graph"
	"github.com/xraph/stepflow/run"
)

func TestHandoffRunsChildAndResumesParent(t *testing.T) {
	eng, st := newTestEngine(t)

	mustRegister(t, eng, graph.New("doubler").Start("double").
		Step("double", func(_ context.Context, input any, _ *run.Context) (graph.Result, error) {
			return graph.Finish(input.(int) * 2), nil
		}))
	mustRegister(t, eng, graph.New("parent").Start("delegate").
		Step("delegate", func(_ context.Context, _ any, _ *run.Context) (graph.Result, error) {
			return graph.Handoff("doubler", 21, "merge"), nil
		}).
		Step("merge", func(_ context.Context, input any, _ *run.Context) (graph.Result, error) {
			return graph.Finish(input.(int) + 1), nil
		}))

	exec := mustExecute(t, eng, "parent", nil)
	if out := mustWait(t, exec); out != 43 {
		t.Fatalf("expected 43, got %v", out)
	}

	// The child ran as a first-class run of its own.
	children, err := st.ListRuns(context.Background(), run.ListOpts{Workflow: "doubler"})
	if err != nil {
		t.Fatalf("list child runs: %v", err)
	}
	if len(children) != 1 {
		t.Fatalf("expected 1 child run, got %d", len(children))
	}
	child := children[0]
	if child.Status != run.StatusCompleted {
		t.Fatalf("child status = %s", child.Status)
	}
	if string(child.Result) != "42" {
		t.Fatalf("child result = %s", child.Result)
	}

	childRecs := mustRecords(t, eng, child.ID)
	if got := countRecords(childRecs, run.RecordWorkflow, run.RecordCompleted, ""); got != 1 {
		t.Fatalf("child workflow records: %d", got)
	}
}

func TestHandoffChildFailureResumesParentWithError(t *testing.T) {
	eng, st := newTestEngine(t)

	mustRegister(t, eng, graph.New("fragile").Start("break").
		Step("break", func(_ context.Context, _ any, _ *run.Context) (graph.Result, error) {
			return graph.Result{}, errors.New("child blew up")
		}))
	mustRegister(t, eng, graph.New("parent").Start("delegate").
		Step("delegate", func(_ context.Context, _ any, _ *run.Context) (graph.Result, error) {
			return graph.Handoff("fragile", nil, "triage"), nil
		}).
		Step("triage", func(_ context.Context, input any, _ *run.Context) (graph.Result, error) {
			// The continuation decides what a failed child means; here
			// it just reports it.
			return graph.Finish(input), nil
		}))

	exec := mustExecute(t, eng, "parent", nil)
	out := mustWait(t, exec)
	text, ok := out.(string)
	if !ok || !strings.Contains(text, "child blew up") {
		t.Fatalf("expected the child error text, got %v", out)
	}

	children, err := st.ListRuns(context.Background(), run.ListOpts{Workflow: "fragile"})
	if err != nil || len(children) != 1 {
		t.Fatalf("list child runs: %v (%d)", err, len(children))
	}
	if children[0].Status != run.StatusFailed {
		t.Fatalf("child status = %s", children[0].Status)
	}

	// The parent itself completed; the child's failure was its input,
	// not its fate.
	waitStatus(t, eng, exec.RunID(), run.StatusCompleted)
}

func TestHandoffUnknownChildFailsParent(t *testing.T) {
	eng, _ := newTestEngine(t)

	mustRegister(t, eng, graph.New("parent").Start("delegate").
		Step("delegate", func(_ context.Context, _ any, _ *run.Context) (graph.Result, error) {
			return graph.Handoff("ghost", nil, "merge"), nil
		}).
		Step("merge", func(_ context.Context, input any, _ *run.Context) (graph.Result, error) {
			return graph.Finish(input), nil
		}))

	exec := mustExecute(t, eng, "parent", nil)
	err := mustWaitErr(t, exec)
	if !errors.Is(err, stepflow.ErrWorkflowNotFound) {
		t.Fatalf("expected ErrWorkflowNotFound, got %v", err)
	}
	waitStatus(t, eng, exec.RunID(), run.StatusFailed)
}

func TestHandoffTokenIsChildRunID(t *testing.T) {
	eng, st := newTestEngine(t)

	hold := make(chan struct{})
	mustRegister(t, eng, graph.New("slowchild").Start("work").
		Step("work", func(ctx context.Context, _ any, _ *run.Context) (graph.Result, error) {
			select {
			case <-hold:
			case <-ctx.Done():
			}
			return graph.Finish("ok"), nil
		}))
	mustRegister(t, eng, graph.New("parent").Start("delegate").
		Step("delegate", func(_ context.Context, _ any, _ *run.Context) (graph.Result, error) {
			return graph.Handoff("slowchild", nil, "merge"), nil
		}).
		Step("merge", func(_ context.Context, input any, _ *run.Context) (graph.Result, error) {
			return graph.Finish(input), nil
		}))

	exec := mustExecute(t, eng, "parent", nil)
	r := waitStatus(t, eng, exec.RunID(), run.StatusSuspended)

	children, err := st.ListRuns(context.Background(), run.ListOpts{Workflow: "slowchild"})
	if err != nil || len(children) != 1 {
		t.Fatalf("list child runs: %v (%d)", err, len(children))
	}
	if r.AwaitToken != children[0].ID.String() {
		t.Fatalf("await token %q should be the child run ID %q", r.AwaitToken, children[0].ID)
	}

	susp, err := st.GetSuspension(context.Background(), r.AwaitToken)
	if err != nil {
		t.Fatalf("get suspension: %v", err)
	}
	if susp.Handoff == nil || susp.Handoff.Workflow != "slowchild" || susp.Handoff.ChildRunID != children[0].ID {
		t.Fatalf("suspension handoff not recorded: %+v", susp.Handoff)
	}

	close(hold)
	if out := mustWait(t, exec); out != "ok" {
		t.Fatalf("expected ok, got %v", out)
	}
}
