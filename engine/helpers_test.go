package engine_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/xraph/stepflow/engine"
	"github.com/xraph/stepflow/graph"
	"github.com/xraph/stepflow/id"
	"github.com/xraph/stepflow/run"
	"github.com/xraph/stepflow/store/memory"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestEngine builds an engine on a fresh in-memory store and shuts it
// down with the test. The store is returned so tests can inspect
// persisted state directly.
func newTestEngine(t *testing.T, opts ...engine.Option) (*engine.Engine, *memory.Store) {
	t.Helper()
	st := memory.New()
	base := []engine.Option{
		engine.WithStore(st),
		engine.WithLogger(testLogger()),
	}
	eng, err := engine.New(append(base, opts...)...)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := eng.Shutdown(ctx); err != nil {
			t.Errorf("shutdown: %v", err)
		}
	})
	return eng, st
}

func mustRegister(t *testing.T, eng *engine.Engine, b *graph.Builder) {
	t.Helper()
	g, err := b.Build()
	if err != nil {
		t.Fatalf("build graph: %v", err)
	}
	if err := eng.Register(g); err != nil {
		t.Fatalf("register graph: %v", err)
	}
}

func mustExecute(t *testing.T, eng *engine.Engine, workflow string, input any) *engine.Execution {
	t.Helper()
	exec, err := eng.Execute(context.Background(), workflow, input)
	if err != nil {
		t.Fatalf("execute %s: %v", workflow, err)
	}
	return exec
}

func mustWait(t *testing.T, exec *engine.Execution) any {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	out, err := exec.Wait(ctx)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	return out
}

func mustWaitErr(t *testing.T, exec *engine.Execution) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := exec.Wait(ctx)
	if err == nil {
		t.Fatal("expected run failure")
	}
	return err
}

// waitFor polls cond until it holds or the test deadline lapses.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for !cond() {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for %s", what)
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}
}

// waitStatus polls the store until the run reaches the wanted status.
func waitStatus(t *testing.T, eng *engine.Engine, runID id.RunID, want run.Status) *run.Run {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		r, err := eng.Instance(context.Background(), runID)
		if err == nil && r.Status == want {
			return r
		}
		got := "<none>"
		if err == nil {
			got = string(r.Status)
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for status %s (last %s, err %v)", want, got, err)
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}
}

func mustRecords(t *testing.T, eng *engine.Engine, runID id.RunID) []*run.Record {
	t.Helper()
	recs, err := eng.Records(context.Background(), runID)
	if err != nil {
		t.Fatalf("records: %v", err)
	}
	return recs
}

// countRecords tallies records of one type and status, optionally scoped
// to a step.
func countRecords(recs []*run.Record, typ run.RecordType, status run.RecordStatus, step string) int {
	n := 0
	for _, rec := range recs {
		if rec.Type != typ || rec.Status != status {
			continue
		}
		if step != "" && rec.Step != step {
			continue
		}
		n++
	}
	return n
}
