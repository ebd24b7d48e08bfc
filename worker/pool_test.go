package worker_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/xraph/stepflow"
	"github.com/xraph/stepflow/worker"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startPool(t *testing.T, core, max, queue int, opts ...worker.PoolOption) *worker.Pool {
	t.Helper()
	opts = append(opts, worker.WithPoolLogger(testLogger()))
	pool := worker.NewPool(core, max, queue, opts...)
	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("start error: %v", err)
	}
	return pool
}

func shutdownPool(t *testing.T, pool *worker.Pool) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := pool.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown error: %v", err)
	}
}

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

func TestPoolStartShutdown(t *testing.T) {
	pool := startPool(t, 2, 4, 8)

	// Double start is a no-op.
	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("double start error: %v", err)
	}

	shutdownPool(t, pool)

	// Double shutdown is a no-op.
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := pool.Shutdown(ctx); err != nil {
		t.Fatalf("double shutdown error: %v", err)
	}
}

func TestPoolExecutesTasks(t *testing.T) {
	pool := startPool(t, 2, 4, 16)

	var done atomic.Int32
	for i := 0; i < 10; i++ {
		if err := pool.Submit(func() { done.Add(1) }); err != nil {
			t.Fatalf("submit %d error: %v", i, err)
		}
	}

	waitFor(t, "tasks to complete", func() bool { return done.Load() == 10 })
	shutdownPool(t, pool)
}

func TestPoolRejectsWhenSaturated(t *testing.T) {
	pool := startPool(t, 1, 1, 1)

	release := make(chan struct{})
	started := make(chan struct{})
	if err := pool.Submit(func() { close(started); <-release }); err != nil {
		t.Fatalf("submit blocker error: %v", err)
	}
	<-started

	// Worker busy, queue empty: this one queues.
	if err := pool.Submit(func() {}); err != nil {
		t.Fatalf("submit queued task error: %v", err)
	}

	// Worker busy, queue full, pool at max size.
	err := pool.Submit(func() {})
	if !errors.Is(err, stepflow.ErrQueueFull) {
		t.Errorf("err = %v, want ErrQueueFull", err)
	}

	close(release)
	shutdownPool(t, pool)
}

func TestPoolGrowsBeyondCore(t *testing.T) {
	pool := startPool(t, 1, 4, 1, worker.WithIdleTimeout(25*time.Millisecond))

	release := make(chan struct{})
	var running atomic.Int32
	blocker := func() {
		running.Add(1)
		<-release
	}

	if err := pool.Submit(blocker); err != nil {
		t.Fatalf("submit 1 error: %v", err)
	}
	waitFor(t, "core worker to pick up blocker", func() bool { return running.Load() == 1 })

	// Core worker busy: fills the queue.
	if err := pool.Submit(blocker); err != nil {
		t.Fatalf("submit 2 error: %v", err)
	}
	// Queue full: these grow the pool, and the overflow workers run them.
	if err := pool.Submit(blocker); err != nil {
		t.Fatalf("submit 3 error: %v", err)
	}
	if err := pool.Submit(blocker); err != nil {
		t.Fatalf("submit 4 error: %v", err)
	}

	waitFor(t, "overflow workers to run", func() bool { return running.Load() == 3 })
	if got := pool.Workers(); got != 3 {
		t.Errorf("Workers() = %d, want 3", got)
	}

	close(release)
	waitFor(t, "queued blocker to drain", func() bool { return running.Load() == 4 })

	// Overflow workers retire once idle; the core worker stays.
	waitFor(t, "overflow workers to retire", func() bool { return pool.Workers() == 1 })

	shutdownPool(t, pool)
}

func TestPoolSubmitAfterShutdown(t *testing.T) {
	pool := startPool(t, 1, 1, 1)
	shutdownPool(t, pool)

	err := pool.Submit(func() {})
	if !errors.Is(err, stepflow.ErrPoolClosed) {
		t.Errorf("err = %v, want ErrPoolClosed", err)
	}
}

func TestPoolShutdownDrainsQueue(t *testing.T) {
	pool := startPool(t, 1, 1, 32)

	var done atomic.Int32
	for i := 0; i < 20; i++ {
		if err := pool.Submit(func() { done.Add(1) }); err != nil {
			t.Fatalf("submit %d error: %v", i, err)
		}
	}

	shutdownPool(t, pool)

	if got := done.Load(); got != 20 {
		t.Errorf("completed tasks = %d, want 20 (accepted work must finish)", got)
	}
}

func TestPoolRecoversFromTaskPanic(t *testing.T) {
	pool := startPool(t, 1, 1, 4)

	var done atomic.Bool
	if err := pool.Submit(func() { panic("task exploded") }); err != nil {
		t.Fatalf("submit panicking task error: %v", err)
	}
	if err := pool.Submit(func() { done.Store(true) }); err != nil {
		t.Fatalf("submit follow-up error: %v", err)
	}

	waitFor(t, "worker to survive panic", func() bool { return done.Load() })
	shutdownPool(t, pool)
}
