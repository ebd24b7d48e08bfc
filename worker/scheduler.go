package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Scheduler runs callbacks after a delay. The engine uses it for retry
// backoff so that a waiting retry never occupies a pool worker.
type Scheduler struct {
	logger *slog.Logger

	mu     sync.Mutex
	timers map[*Timer]struct{}
	closed bool
	wg     sync.WaitGroup
}

// Timer is a handle to one scheduled callback.
type Timer struct {
	s *Scheduler
	t *time.Timer

	mu        sync.Mutex
	cancelled bool
}

// NewScheduler creates a scheduler.
func NewScheduler(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		logger: logger,
		timers: make(map[*Timer]struct{}),
	}
}

// After runs fn once d has elapsed. After Shutdown the returned timer is
// inert and fn never runs.
func (s *Scheduler) After(d time.Duration, fn func()) *Timer {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return &Timer{}
	}

	tm := &Timer{s: s}
	s.wg.Add(1)
	tm.t = time.AfterFunc(d, func() {
		defer s.wg.Done()
		defer s.forget(tm)
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("scheduled task panic", slog.Any("panic", r))
			}
		}()
		fn()
	})
	s.timers[tm] = struct{}{}
	return tm
}

// Pending reports the number of scheduled callbacks that have not fired.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

func (s *Scheduler) forget(tm *Timer) {
	s.mu.Lock()
	delete(s.timers, tm)
	s.mu.Unlock()
}

// Cancel stops the callback if it has not fired yet and reports whether
// it did. Cancelling an already fired or already cancelled timer is a
// no-op.
func (tm *Timer) Cancel() bool {
	if tm.t == nil {
		return false
	}

	tm.mu.Lock()
	defer tm.mu.Unlock()

	if tm.cancelled {
		return false
	}
	if !tm.t.Stop() {
		return false
	}
	tm.cancelled = true
	tm.s.forget(tm)
	tm.s.wg.Done()
	return true
}

// Shutdown cancels all pending callbacks and waits for in-flight ones to
// return, or for ctx to expire.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	pending := make([]*Timer, 0, len(s.timers))
	for tm := range s.timers {
		pending = append(pending, tm)
	}
	s.mu.Unlock()

	for _, tm := range pending {
		tm.Cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
