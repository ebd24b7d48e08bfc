package schedule_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/xraph/stepflow/engine"
	"github.com/xraph/stepflow/graph"
	"github.com/xraph/stepflow/id"
	"github.com/xraph/stepflow/run"
	"github.com/xraph/stepflow/schedule"
	"github.com/xraph/stepflow/store/memory"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startSpy records StartFunc invocations with thread safety.
type startSpy struct {
	mu    sync.Mutex
	calls []string
}

func (sp *startSpy) fn() schedule.StartFunc {
	return func(_ context.Context, workflow string, _ any) (id.RunID, error) {
		sp.mu.Lock()
		sp.calls = append(sp.calls, workflow)
		sp.mu.Unlock()
		return id.NewRunID(), nil
	}
}

func (sp *startSpy) count() int {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	return len(sp.calls)
}

// every is a fixed-delay schedule so tests run at millisecond cadence.
type every struct{ d time.Duration }

func (e every) Next(t time.Time) time.Time { return t.Add(e.d) }

func newTestScheduler(t *testing.T, start schedule.StartFunc) *schedule.Scheduler {
	t.Helper()

	s := schedule.NewScheduler(start, testLogger(), schedule.WithTickInterval(5*time.Millisecond))
	t.Cleanup(func() {
		if err := s.Stop(context.Background()); err != nil {
			t.Errorf("Stop: %v", err)
		}
	})
	return s
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestFiresRepeatedly(t *testing.T) {
	spy := &startSpy{}
	s := newTestScheduler(t, spy.fn())

	err := s.Add(schedule.Definition{
		Name:     "heartbeat",
		Schedule: every{10 * time.Millisecond},
		Workflow: "pulse",
		Input:    "ping",
	})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	waitFor(t, "two firings", func() bool { return spy.count() >= 2 })

	entries := s.Entries()
	if len(entries) != 1 {
		t.Fatalf("Entries len = %d, want 1", len(entries))
	}
	e := entries[0]
	if !e.Enabled {
		t.Error("entry disabled, want enabled")
	}
	if e.LastRunAt == nil {
		t.Fatal("LastRunAt is nil after firing")
	}
	if !e.NextRunAt.After(*e.LastRunAt) {
		t.Errorf("NextRunAt %v not after LastRunAt %v", e.NextRunAt, *e.LastRunAt)
	}
}

func TestDisableStopsFiring(t *testing.T) {
	spy := &startSpy{}
	s := newTestScheduler(t, spy.fn())

	err := s.Add(schedule.Definition{
		Name:     "report",
		Schedule: every{10 * time.Millisecond},
		Workflow: "nightly",
	})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	waitFor(t, "first firing", func() bool { return spy.count() >= 1 })

	if err := s.Disable("report"); err != nil {
		t.Fatalf("Disable: %v", err)
	}
	// Let any in-flight tick drain before sampling the count.
	time.Sleep(50 * time.Millisecond)
	before := spy.count()
	time.Sleep(100 * time.Millisecond)
	if after := spy.count(); after != before {
		t.Errorf("fired %d times while disabled", after-before)
	}

	if err := s.Enable("report"); err != nil {
		t.Fatalf("Enable: %v", err)
	}
	waitFor(t, "firing after re-enable", func() bool { return spy.count() > before })
}

func TestAddValidation(t *testing.T) {
	spy := &startSpy{}
	s := schedule.NewScheduler(spy.fn(), testLogger())

	if err := s.Add(schedule.Definition{Expr: "@hourly", Workflow: "w"}); err == nil {
		t.Error("Add with empty name: expected error")
	}
	if err := s.Add(schedule.Definition{Name: "n", Expr: "@hourly"}); err == nil {
		t.Error("Add with empty workflow: expected error")
	}
	if err := s.Add(schedule.Definition{Name: "n", Expr: "not a cron", Workflow: "w"}); err == nil {
		t.Error("Add with bad expression: expected error")
	}

	err := s.Add(schedule.Definition{Name: "daily", Expr: "0 9 * * *", Workflow: "digest"})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	entries := s.Entries()
	if len(entries) != 1 {
		t.Fatalf("Entries len = %d, want 1", len(entries))
	}
	if !entries[0].NextRunAt.After(time.Now().UTC().Add(-time.Minute)) {
		t.Errorf("NextRunAt %v not in the future", entries[0].NextRunAt)
	}

	err = s.Add(schedule.Definition{Name: "daily", Expr: "0 10 * * *", Workflow: "digest"})
	if !errors.Is(err, schedule.ErrEntryExists) {
		t.Errorf("duplicate Add error = %v, want ErrEntryExists", err)
	}
}

func TestRemoveAndUnknownEntries(t *testing.T) {
	spy := &startSpy{}
	s := schedule.NewScheduler(spy.fn(), testLogger())

	if err := s.Add(schedule.Definition{Name: "tmp", Expr: "@hourly", Workflow: "w"}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := s.Remove("tmp"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if got := len(s.Entries()); got != 0 {
		t.Errorf("Entries len = %d, want 0", got)
	}

	if err := s.Remove("tmp"); !errors.Is(err, schedule.ErrEntryNotFound) {
		t.Errorf("Remove unknown error = %v, want ErrEntryNotFound", err)
	}
	if err := s.Disable("ghost"); !errors.Is(err, schedule.ErrEntryNotFound) {
		t.Errorf("Disable unknown error = %v, want ErrEntryNotFound", err)
	}
	if err := s.Enable("ghost"); !errors.Is(err, schedule.ErrEntryNotFound) {
		t.Errorf("Enable unknown error = %v, want ErrEntryNotFound", err)
	}
}

func TestSchedulerDrivesEngine(t *testing.T) {
	st := memory.New()
	eng, err := engine.New(
		engine.WithStore(st),
		engine.WithLogger(testLogger()),
	)
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := eng.Shutdown(ctx); err != nil {
			t.Errorf("Shutdown: %v", err)
		}
	})

	g, err := graph.New("beacon").
		Start("blink").
		Step("blink", func(_ context.Context, input any, _ *run.Context) (graph.Result, error) {
			return graph.Finish(input), nil
		}).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if err := eng.Register(g); err != nil {
		t.Fatalf("Register: %v", err)
	}

	s := newTestScheduler(t, func(ctx context.Context, workflow string, input any) (id.RunID, error) {
		ex, execErr := eng.Execute(ctx, workflow, input)
		if execErr != nil {
			return id.RunID{}, execErr
		}
		return ex.RunID(), nil
	})
	err = s.Add(schedule.Definition{
		Name:     "beacon-every-10ms",
		Schedule: every{10 * time.Millisecond},
		Workflow: "beacon",
		Input:    "flash",
	})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	waitFor(t, "two completed scheduled runs", func() bool {
		runs, listErr := st.ListRuns(context.Background(), run.ListOpts{
			Workflow: "beacon",
			Status:   run.StatusCompleted,
		})
		return listErr == nil && len(runs) >= 2
	})
}
