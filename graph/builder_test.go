package graph_test

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/xraph/stepflow"
	"github.com/xraph/stepflow/backoff"
	"github.com/xraph/stepflow/graph"
	"github.com/xraph/stepflow/run"
)

func noop(_ context.Context, _ any, _ *run.Context) (graph.Result, error) {
	return graph.Finish(nil), nil
}

func TestBuilderBuildsGraph(t *testing.T) {
	g, err := graph.New("order").
		Start("reserve").
		Step("reserve", noop).
		Step("charge", noop).
		Step("ship", noop).
		Build()
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}

	if g.Name() != "order" {
		t.Errorf("Name() = %q, want %q", g.Name(), "order")
	}
	if g.StartStep() != "reserve" {
		t.Errorf("StartStep() = %q, want %q", g.StartStep(), "reserve")
	}
	if g.Len() != 3 {
		t.Errorf("Len() = %d, want 3", g.Len())
	}
	want := []string{"reserve", "charge", "ship"}
	if got := g.Steps(); !reflect.DeepEqual(got, want) {
		t.Errorf("Steps() = %v, want %v", got, want)
	}
	if _, ok := g.Step("charge"); !ok {
		t.Error("Step(charge) missing")
	}
	if _, ok := g.Step("refund"); ok {
		t.Error("Step(refund) = ok, want missing")
	}
}

func TestBuilderValidation(t *testing.T) {
	tests := []struct {
		name  string
		build func() (*graph.Graph, error)
	}{
		{
			"empty graph name",
			func() (*graph.Graph, error) {
				return graph.New("").Start("a").Step("a", noop).Build()
			},
		},
		{
			"no steps",
			func() (*graph.Graph, error) {
				return graph.New("g").Start("a").Build()
			},
		},
		{
			"no start declared",
			func() (*graph.Graph, error) {
				return graph.New("g").Step("a", noop).Build()
			},
		},
		{
			"start not registered",
			func() (*graph.Graph, error) {
				return graph.New("g").Start("missing").Step("a", noop).Build()
			},
		},
		{
			"duplicate step",
			func() (*graph.Graph, error) {
				return graph.New("g").Start("a").Step("a", noop).Step("a", noop).Build()
			},
		},
		{
			"nil handler",
			func() (*graph.Graph, error) {
				return graph.New("g").Start("a").Step("a", nil).Build()
			},
		},
		{
			"empty step name",
			func() (*graph.Graph, error) {
				return graph.New("g").Start("a").Step("a", noop).Step("", noop).Build()
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := tt.build()
			if err == nil {
				t.Fatal("expected build error, got nil")
			}
			if !errors.Is(err, stepflow.ErrInvalidGraph) {
				t.Errorf("error %v does not match ErrInvalidGraph", err)
			}
			if g != nil {
				t.Error("expected nil graph on build error")
			}
		})
	}
}

func TestBuilderStepOptions(t *testing.T) {
	retry := backoff.Policy{MaxAttempts: 4, Strategy: backoff.NewConstant(time.Millisecond)}

	g, err := graph.New("agent").
		Start("reason").
		Step("reason", noop,
			graph.WithInvocationLimit(5),
			graph.WithOnLimit(graph.LimitFail),
			graph.WithTimeout(2*time.Second),
			graph.WithRetry(retry),
		).
		Build()
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}

	s, ok := g.Step("reason")
	if !ok {
		t.Fatal("Step(reason) missing")
	}
	if s.InvocationLimit != 5 {
		t.Errorf("InvocationLimit = %d, want 5", s.InvocationLimit)
	}
	if s.OnLimit != graph.LimitFail {
		t.Errorf("OnLimit = %s, want %s", s.OnLimit, graph.LimitFail)
	}
	if s.Timeout != 2*time.Second {
		t.Errorf("Timeout = %v, want 2s", s.Timeout)
	}
	if s.Retry == nil || s.Retry.MaxAttempts != 4 {
		t.Errorf("Retry = %+v, want MaxAttempts 4", s.Retry)
	}
}

func TestBuilderDefaultOnLimit(t *testing.T) {
	g, err := graph.New("g").Start("a").Step("a", noop).Build()
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}

	s, _ := g.Step("a")
	if s.OnLimit != graph.LimitStop {
		t.Errorf("default OnLimit = %s, want %s", s.OnLimit, graph.LimitStop)
	}
	if s.InvocationLimit != 0 {
		t.Errorf("default InvocationLimit = %d, want 0 (unbounded)", s.InvocationLimit)
	}
}
