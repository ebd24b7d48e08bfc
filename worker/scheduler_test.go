package worker_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/xraph/stepflow/worker"
)

func TestSchedulerFiresAfterDelay(t *testing.T) {
	s := worker.NewScheduler(testLogger())

	var fired atomic.Bool
	s.After(10*time.Millisecond, func() { fired.Store(true) })

	waitFor(t, "callback to fire", func() bool { return fired.Load() })
	waitFor(t, "timer bookkeeping to clear", func() bool { return s.Pending() == 0 })
}

func TestSchedulerCancelPreventsFire(t *testing.T) {
	s := worker.NewScheduler(testLogger())

	var fired atomic.Bool
	tm := s.After(50*time.Millisecond, func() { fired.Store(true) })

	if !tm.Cancel() {
		t.Fatal("Cancel() = false, want true for a pending timer")
	}
	if tm.Cancel() {
		t.Error("second Cancel() = true, want no-op")
	}

	time.Sleep(100 * time.Millisecond)
	if fired.Load() {
		t.Error("cancelled callback fired")
	}
	if got := s.Pending(); got != 0 {
		t.Errorf("Pending() = %d, want 0", got)
	}
}

func TestSchedulerShutdownCancelsPending(t *testing.T) {
	s := worker.NewScheduler(testLogger())

	var fired atomic.Bool
	s.After(time.Hour, func() { fired.Store(true) })
	s.After(time.Hour, func() { fired.Store(true) })

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown error: %v", err)
	}
	if fired.Load() {
		t.Error("pending callbacks fired during shutdown")
	}

	// Scheduling after shutdown yields an inert timer.
	tm := s.After(time.Millisecond, func() { fired.Store(true) })
	if tm.Cancel() {
		t.Error("Cancel() on inert timer = true, want false")
	}
	time.Sleep(20 * time.Millisecond)
	if fired.Load() {
		t.Error("callback scheduled after shutdown fired")
	}
}

func TestSchedulerRecoversFromCallbackPanic(t *testing.T) {
	s := worker.NewScheduler(testLogger())

	s.After(time.Millisecond, func() { panic("callback exploded") })

	var fired atomic.Bool
	s.After(5*time.Millisecond, func() { fired.Store(true) })

	waitFor(t, "scheduler to survive panic", func() bool { return fired.Load() })

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown error: %v", err)
	}
}
