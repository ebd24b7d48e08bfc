package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"
)

// exprParser supports standard 5-field cron and descriptors like
// "@every 30s".
var exprParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor,
)

// ParseExpr parses a cron expression with the scheduler's parser.
func ParseExpr(expr string) (cronlib.Schedule, error) {
	return exprParser.Parse(expr)
}

type entry struct {
	def       Definition
	sched     cronlib.Schedule
	enabled   bool
	lastRunAt *time.Time
	nextRunAt time.Time
}

// Scheduler fires due entries on a tick loop.
type Scheduler struct {
	start  StartFunc
	logger *slog.Logger

	tickInterval time.Duration

	mu      sync.Mutex
	entries map[string]*entry
	started bool
	stopped bool

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithTickInterval sets how often the scheduler checks for due entries.
func WithTickInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.tickInterval = d
		}
	}
}

// NewScheduler creates a Scheduler. A nil logger falls back to
// slog.Default.
func NewScheduler(start StartFunc, logger *slog.Logger, opts ...Option) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		start:        start,
		logger:       logger,
		tickInterval: 1 * time.Second,
		entries:      make(map[string]*entry),
		stopCh:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add registers a definition. The entry starts enabled; its first firing
// is the next time the schedule matches after registration.
func (s *Scheduler) Add(def Definition) error {
	if def.Name == "" {
		return fmt.Errorf("schedule: entry has no name")
	}
	if def.Workflow == "" {
		return fmt.Errorf("schedule: entry %q has no workflow", def.Name)
	}

	sched := def.Schedule
	if sched == nil {
		parsed, err := ParseExpr(def.Expr)
		if err != nil {
			return fmt.Errorf("schedule: parse expression %q: %w", def.Expr, err)
		}
		sched = parsed
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[def.Name]; exists {
		return fmt.Errorf("schedule: entry %q: %w", def.Name, ErrEntryExists)
	}
	s.entries[def.Name] = &entry{
		def:       def,
		sched:     sched,
		enabled:   true,
		nextRunAt: sched.Next(time.Now().UTC()),
	}
	s.logger.Debug("schedule entry added",
		slog.String("entry", def.Name),
		slog.String("workflow", def.Workflow),
	)
	return nil
}

// Remove deletes an entry by name.
func (s *Scheduler) Remove(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[name]; !ok {
		return fmt.Errorf("schedule: entry %q: %w", name, ErrEntryNotFound)
	}
	delete(s.entries, name)
	return nil
}

// Enable turns an entry back on. Firings missed while disabled are
// skipped; the next firing is the next schedule match from now.
func (s *Scheduler) Enable(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[name]
	if !ok {
		return fmt.Errorf("schedule: entry %q: %w", name, ErrEntryNotFound)
	}
	if !e.enabled {
		e.enabled = true
		e.nextRunAt = e.sched.Next(time.Now().UTC())
	}
	return nil
}

// Disable stops an entry from firing without removing it.
func (s *Scheduler) Disable(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[name]
	if !ok {
		return fmt.Errorf("schedule: entry %q: %w", name, ErrEntryNotFound)
	}
	e.enabled = false
	return nil
}

// Entries returns a snapshot of all entries, sorted by name.
func (s *Scheduler) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		view := Entry{
			Definition: e.def,
			Enabled:    e.enabled,
			NextRunAt:  e.nextRunAt,
		}
		if e.lastRunAt != nil {
			last := *e.lastRunAt
			view.LastRunAt = &last
		}
		out = append(out, view)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Name < out[k].Name })
	return out
}

// Start launches the tick loop. Calling Start again is a no-op.
func (s *Scheduler) Start(_ context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.mu.Unlock()

	s.wg.Add(1)
	go s.tickLoop()
	s.logger.Info("scheduler started",
		slog.Duration("tick_interval", s.tickInterval),
	)
	return nil
}

// Stop signals the tick loop to stop and waits for it to finish. Safe to
// call multiple times.
func (s *Scheduler) Stop(_ context.Context) error {
	s.mu.Lock()
	if !s.started || s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
	return nil
}

func (s *Scheduler) tickLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

// tick fires every enabled entry whose next run time has passed.
func (s *Scheduler) tick() {
	now := time.Now().UTC()

	s.mu.Lock()
	var due []*entry
	for _, e := range s.entries {
		if e.enabled && !e.nextRunAt.After(now) {
			due = append(due, e)
		}
	}
	s.mu.Unlock()

	for _, e := range due {
		s.fire(e, now)
	}
}

// fire launches one run and advances the entry's schedule. A failed
// launch is logged; the entry still advances, so the next firing waits
// for the next schedule match.
func (s *Scheduler) fire(e *entry, now time.Time) {
	ctx := context.Background()

	runID, err := s.start(ctx, e.def.Workflow, e.def.Input)
	if err != nil {
		s.logger.Error("schedule fire error",
			slog.String("entry", e.def.Name),
			slog.String("workflow", e.def.Workflow),
			slog.String("error", err.Error()),
		)
	} else {
		s.logger.Info("schedule fired",
			slog.String("entry", e.def.Name),
			slog.String("workflow", e.def.Workflow),
			slog.String("run_id", runID.String()),
		)
	}

	s.mu.Lock()
	e.lastRunAt = &now
	e.nextRunAt = e.sched.Next(now)
	s.mu.Unlock()
}
