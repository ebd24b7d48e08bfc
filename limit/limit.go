// Package limit provides per-workflow admission control: caps on
// concurrently executing runs and a token-bucket limiter on how fast new
// runs may be admitted. Workflows without a config have no limits.
package limit

import (
	"sync"

	"golang.org/x/time/rate"
)

// Config defines admission behaviour for one workflow.
type Config struct {
	// Workflow is the workflow name the config applies to.
	Workflow string

	// MaxConcurrentRuns caps how many runs of this workflow may be
	// executing at once. Suspended runs do not count. Zero means no cap.
	MaxConcurrentRuns int

	// StartRate is the maximum sustained admissions per second, covering
	// both new runs and resumes. Zero disables rate limiting.
	StartRate float64

	// StartBurst is the token-bucket burst size. Defaults to 1 when
	// StartRate is set and StartBurst is zero.
	StartBurst int
}

type workflowState struct {
	config  Config
	limiter *rate.Limiter
	active  int
}

func newWorkflowState(cfg Config) *workflowState {
	ws := &workflowState{config: cfg}
	if cfg.StartRate > 0 {
		burst := cfg.StartBurst
		if burst <= 0 {
			burst = 1
		}
		ws.limiter = rate.NewLimiter(rate.Limit(cfg.StartRate), burst)
	}
	return ws
}

// Manager tracks admission state per workflow. It is safe for concurrent
// use.
type Manager struct {
	mu        sync.Mutex
	workflows map[string]*workflowState
}

// NewManager creates a Manager with the given workflow configurations.
func NewManager(configs ...Config) *Manager {
	m := &Manager{workflows: make(map[string]*workflowState, len(configs))}
	for _, cfg := range configs {
		m.workflows[cfg.Workflow] = newWorkflowState(cfg)
	}
	return m
}

// Acquire checks the rate limiter and the concurrency cap for workflow.
// If the run is admitted it takes a slot and returns true; the caller
// MUST call Release when the run stops executing.
func (m *Manager) Acquire(workflow string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	ws := m.workflows[workflow]
	if ws == nil {
		return true
	}
	if ws.limiter != nil && !ws.limiter.Allow() {
		return false
	}
	if ws.config.MaxConcurrentRuns > 0 && ws.active >= ws.config.MaxConcurrentRuns {
		return false
	}
	ws.active++
	return true
}

// Release frees the slot taken by Acquire.
func (m *Manager) Release(workflow string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ws := m.workflows[workflow]; ws != nil && ws.active > 0 {
		ws.active--
	}
}

// SetConfig updates (or creates) a workflow's admission config. The
// active count carries over when reconfiguring.
func (m *Manager) SetConfig(cfg Config) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ws := newWorkflowState(cfg)
	if existing := m.workflows[cfg.Workflow]; existing != nil {
		ws.active = existing.active
	}
	m.workflows[cfg.Workflow] = ws
}

// ActiveRuns reports how many runs of workflow currently hold a slot.
func (m *Manager) ActiveRuns(workflow string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ws := m.workflows[workflow]; ws != nil {
		return ws.active
	}
	return 0
}
