// Package worker provides the execution resources the engine schedules
// runs on: an elastic goroutine pool with a bounded submission queue, and
// a scheduler for delayed callbacks such as retry backoff.
package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/stepflow"
)

// Task is a unit of work executed by the pool.
type Task func()

// Pool executes submitted tasks on a bounded set of goroutines. Core
// workers are resident for the pool's lifetime; when the queue is full
// the pool grows up to max workers, and overflow workers retire after
// sitting idle. Submit never blocks: once the queue is full and the pool
// is at max size it reports stepflow.ErrQueueFull.
type Pool struct {
	core    int
	max     int
	idleTTL time.Duration
	logger  *slog.Logger

	tasks chan Task

	mu      sync.Mutex
	workers int
	started bool
	closed  bool
	wg      sync.WaitGroup
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithIdleTimeout sets how long an overflow worker waits for work before
// retiring. Core workers never retire.
func WithIdleTimeout(d time.Duration) PoolOption {
	return func(p *Pool) { p.idleTTL = d }
}

// WithPoolLogger sets the pool's logger.
func WithPoolLogger(logger *slog.Logger) PoolOption {
	return func(p *Pool) { p.logger = logger }
}

// NewPool creates a pool with core resident workers, growth up to max,
// and a submission queue of the given capacity.
func NewPool(core, max, queue int, opts ...PoolOption) *Pool {
	if core < 1 {
		core = 1
	}
	if max < core {
		max = core
	}
	if queue < 0 {
		queue = 0
	}
	p := &Pool{
		core:    core,
		max:     max,
		idleTTL: 30 * time.Second,
		logger:  slog.Default(),
		tasks:   make(chan Task, queue),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start launches the core workers. It returns immediately and is a
// no-op when the pool is already running.
func (p *Pool) Start(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return stepflow.ErrPoolClosed
	}
	if p.started {
		return nil
	}
	p.started = true

	p.logger.Info("worker pool starting",
		slog.Int("core", p.core),
		slog.Int("max", p.max),
		slog.Int("queue", cap(p.tasks)),
	)

	for range p.core {
		p.spawnLocked(nil, 0)
	}
	return nil
}

// Submit hands task to the pool. It returns stepflow.ErrPoolClosed after
// Shutdown and stepflow.ErrQueueFull when the queue is full and the pool
// cannot grow any further.
func (p *Pool) Submit(task Task) error {
	if task == nil {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return stepflow.ErrPoolClosed
	}

	select {
	case p.tasks <- task:
		return nil
	default:
	}

	// Queue is full. Grow by one overflow worker primed with this task.
	if p.workers < p.max {
		p.spawnLocked(task, p.idleTTL)
		return nil
	}
	return stepflow.ErrQueueFull
}

// spawnLocked starts one worker. A zero idle duration marks a resident
// core worker. Callers must hold p.mu.
func (p *Pool) spawnLocked(first Task, idle time.Duration) {
	p.workers++
	p.wg.Add(1)
	go p.work(first, idle)
}

func (p *Pool) work(first Task, idle time.Duration) {
	defer p.wg.Done()
	defer func() {
		p.mu.Lock()
		p.workers--
		p.mu.Unlock()
	}()

	if first != nil {
		p.run(first)
	}

	if idle <= 0 {
		for task := range p.tasks {
			p.run(task)
		}
		return
	}

	timer := time.NewTimer(idle)
	defer timer.Stop()
	for {
		select {
		case task, ok := <-p.tasks:
			if !ok {
				return
			}
			p.run(task)
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(idle)
		case <-timer.C:
			// Idle overflow worker retires.
			return
		}
	}
}

func (p *Pool) run(task Task) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("task panic", slog.Any("panic", r))
		}
	}()
	task()
}

// Workers reports the current number of live workers.
func (p *Pool) Workers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.workers
}

// QueueDepth reports the number of tasks waiting in the queue.
func (p *Pool) QueueDepth() int { return len(p.tasks) }

// Shutdown stops accepting work, lets workers drain the queue, and waits
// for them to exit or for ctx to expire. It is a no-op when called twice.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.tasks)
	p.mu.Unlock()

	p.logger.Info("worker pool stopping")

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		p.logger.Warn("worker pool shutdown timed out")
		return ctx.Err()
	}
}
