package watch_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/xraph/stepflow/engine"
	"github.com/xraph/stepflow/graph"
	"github.com/xraph/stepflow/run"
	"github.com/xraph/stepflow/store/memory"
	"github.com/xraph/stepflow/watch"
)

func newFeedEngine(t *testing.T, opts ...watch.Option) (*engine.Engine, *watch.Feed) {
	t.Helper()

	feed := watch.NewFeed(slog.New(slog.NewTextHandler(io.Discard, nil)), opts...)
	eng, err := engine.New(
		engine.WithStore(memory.New()),
		engine.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		engine.WithInterceptors(feed),
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
		feed.Close()
	})
	return eng, feed
}

func pipeline(name string) *graph.Builder {
	return graph.New(name).
		Start("extract").
		Step("extract", func(_ context.Context, input any, _ *run.Context) (graph.Result, error) {
			return graph.Continue("load", input), nil
		}).
		Step("load", func(_ context.Context, input any, _ *run.Context) (graph.Result, error) {
			return graph.Finish(input), nil
		})
}

// collectUntil reads events until one of the given type arrives. Fails
// the test if that takes longer than five seconds.
func collectUntil(t *testing.T, sub *watch.Subscriber, typ watch.EventType) []*watch.Event {
	t.Helper()

	var events []*watch.Event
	deadline := time.After(5 * time.Second)
	for {
		select {
		case evt, ok := <-sub.C():
			if !ok {
				t.Fatalf("subscriber closed before %s arrived", typ)
			}
			events = append(events, evt)
			if evt.Type == typ {
				return events
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s, got %d events", typ, len(events))
		}
	}
}

func waitForStats(t *testing.T, feed *watch.Feed, cond func(watch.Stats) bool) watch.Stats {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for {
		st := feed.Stats()
		if cond(st) {
			return st
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for feed stats, last %+v", st)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestFeedFollowsRun(t *testing.T) {
	eng, feed := newFeedEngine(t)

	g, err := pipeline("etl").Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if err := eng.Register(g); err != nil {
		t.Fatalf("Register: %v", err)
	}

	sub := feed.Subscribe("probe", watch.TopicRuns)

	exec, err := eng.Execute(context.Background(), "etl", "rows")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if _, err := exec.Wait(context.Background()); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	events := collectUntil(t, sub, watch.EventRunCompleted)

	wantTypes := []watch.EventType{
		watch.EventRunStarted,
		watch.EventStepStarted,
		watch.EventStepCompleted,
		watch.EventStepStarted,
		watch.EventStepCompleted,
		watch.EventRunCompleted,
	}
	if len(events) != len(wantTypes) {
		t.Fatalf("got %d events, want %d", len(events), len(wantTypes))
	}
	for i, want := range wantTypes {
		if events[i].Type != want {
			t.Errorf("event %d type = %s, want %s", i, events[i].Type, want)
		}
		if events[i].RunID != exec.RunID().String() {
			t.Errorf("event %d run_id = %s, want %s", i, events[i].RunID, exec.RunID())
		}
		if events[i].Workflow != "etl" {
			t.Errorf("event %d workflow = %q, want %q", i, events[i].Workflow, "etl")
		}
	}
	if events[1].Step != "extract" || events[3].Step != "load" {
		t.Errorf("step.started steps = %q, %q, want extract, load", events[1].Step, events[3].Step)
	}
	if events[1].Entry != 1 || events[1].Attempt != 1 {
		t.Errorf("entry/attempt = %d/%d, want 1/1", events[1].Entry, events[1].Attempt)
	}
}

func TestFeedReportsFailure(t *testing.T) {
	eng, feed := newFeedEngine(t)

	errDiskOffline := errors.New("disk offline")
	g, err := graph.New("doomed").
		Start("explode").
		Step("explode", func(_ context.Context, _ any, _ *run.Context) (graph.Result, error) {
			return graph.Result{}, errDiskOffline
		}).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if err := eng.Register(g); err != nil {
		t.Fatalf("Register: %v", err)
	}

	sub := feed.Subscribe("probe", watch.TopicRuns)

	exec, err := eng.Execute(context.Background(), "doomed", nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if _, err := exec.Wait(context.Background()); err == nil {
		t.Fatal("Wait: expected error")
	}

	events := collectUntil(t, sub, watch.EventRunFailed)
	last := events[len(events)-1]
	if last.Error == "" {
		t.Error("run.failed event has empty error")
	}

	var sawStepFailed bool
	for _, evt := range events {
		if evt.Type == watch.EventStepFailed {
			sawStepFailed = true
			if evt.Step != "explode" {
				t.Errorf("step.failed step = %q, want %q", evt.Step, "explode")
			}
		}
	}
	if !sawStepFailed {
		t.Error("no step.failed event before run.failed")
	}
}

func TestRunTopicIsolation(t *testing.T) {
	eng, feed := newFeedEngine(t)

	release := make(chan struct{})
	g, err := graph.New("gated").
		Start("hold").
		Step("hold", func(ctx context.Context, input any, _ *run.Context) (graph.Result, error) {
			select {
			case <-release:
			case <-ctx.Done():
				return graph.Result{}, ctx.Err()
			}
			return graph.Finish(input), nil
		}).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if err := eng.Register(g); err != nil {
		t.Fatalf("Register: %v", err)
	}
	other, err := pipeline("noise").Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if err := eng.Register(other); err != nil {
		t.Fatalf("Register: %v", err)
	}

	execA, err := eng.Execute(context.Background(), "gated", "a")
	if err != nil {
		t.Fatalf("Execute gated: %v", err)
	}
	sub := feed.Subscribe("focused", watch.RunTopic(execA.RunID().String()))

	// Drive another run to completion; none of its events may reach the
	// per-run subscriber.
	execB, err := eng.Execute(context.Background(), "noise", "b")
	if err != nil {
		t.Fatalf("Execute noise: %v", err)
	}
	if _, err := execB.Wait(context.Background()); err != nil {
		t.Fatalf("Wait noise: %v", err)
	}

	close(release)
	if _, err := execA.Wait(context.Background()); err != nil {
		t.Fatalf("Wait gated: %v", err)
	}

	events := collectUntil(t, sub, watch.EventRunCompleted)
	for _, evt := range events {
		if evt.RunID != execA.RunID().String() {
			t.Errorf("per-run subscriber saw event for run %s", evt.RunID)
		}
	}
}

func TestSlowSubscriberDropsEvents(t *testing.T) {
	eng, feed := newFeedEngine(t, watch.WithBufferSize(1))

	g, err := pipeline("firehose").Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if err := eng.Register(g); err != nil {
		t.Fatalf("Register: %v", err)
	}

	feed.Subscribe("sluggish", watch.TopicRuns)

	exec, err := eng.Execute(context.Background(), "firehose", nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if _, err := exec.Wait(context.Background()); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	// A two-step run publishes six events; the unread buffer holds one.
	st := waitForStats(t, feed, func(st watch.Stats) bool {
		return st.TotalPublished+st.TotalDropped == 6
	})
	if st.TotalPublished != 1 {
		t.Errorf("TotalPublished = %d, want 1", st.TotalPublished)
	}
	if st.TotalDropped != 5 {
		t.Errorf("TotalDropped = %d, want 5", st.TotalDropped)
	}
}

func TestRemoveSubscriberClosesChannel(t *testing.T) {
	feed := watch.NewFeed(slog.New(slog.NewTextHandler(io.Discard, nil)))

	sub := feed.Subscribe("transient", watch.TopicRuns, watch.RunTopic("run_x"))
	if got := len(sub.Topics()); got != 2 {
		t.Fatalf("Topics count = %d, want 2", got)
	}

	feed.RemoveSubscriber("transient")

	select {
	case _, ok := <-sub.C():
		if ok {
			t.Fatal("expected closed channel, got event")
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed")
	}

	st := feed.Stats()
	if st.SubscriberCount != 0 {
		t.Errorf("SubscriberCount = %d, want 0", st.SubscriberCount)
	}
	if st.TopicCount != 0 {
		t.Errorf("TopicCount = %d, want 0", st.TopicCount)
	}
}

func TestSubscribeSameIDReplaces(t *testing.T) {
	feed := watch.NewFeed(slog.New(slog.NewTextHandler(io.Discard, nil)))

	first := feed.Subscribe("ui", watch.TopicRuns)
	second := feed.Subscribe("ui", watch.TopicRuns)

	select {
	case _, ok := <-first.C():
		if ok {
			t.Fatal("expected first subscriber closed, got event")
		}
	case <-time.After(time.Second):
		t.Fatal("first subscriber not closed on replace")
	}

	if st := feed.Stats(); st.SubscriberCount != 1 {
		t.Errorf("SubscriberCount = %d, want 1", st.SubscriberCount)
	}
	second.Close()
}
