package graph

import (
	"fmt"
	"sort"
	"sync"

	"github.com/xraph/stepflow"
)

// Registry stores workflow graphs by name. Re-registration overwrites,
// which supports hot redefinition in tests and tooling. It is safe for
// concurrent registration and dispatch; readers never observe a partially
// registered graph because graphs are immutable and swapped atomically
// under the lock.
type Registry struct {
	mu     sync.RWMutex
	graphs map[string]*Graph
}

// NewRegistry creates an empty graph registry.
func NewRegistry() *Registry {
	return &Registry{graphs: make(map[string]*Graph)}
}

// Register stores a graph under its name, replacing any previous
// registration.
func (r *Registry) Register(g *Graph) error {
	if g == nil {
		return fmt.Errorf("register nil graph: %w", stepflow.ErrInvalidGraph)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.graphs[g.Name()] = g
	return nil
}

// Get returns the graph registered under name.
func (r *Registry) Get(name string) (*Graph, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.graphs[name]
	return g, ok
}

// Resolve returns the named step of the named workflow. It fails with
// ErrWorkflowNotFound for an unregistered workflow and with
// UnknownStepError for a step name no registered step matches.
func (r *Registry) Resolve(workflow, step string) (*Step, error) {
	g, ok := r.Get(workflow)
	if !ok {
		return nil, fmt.Errorf("resolve workflow %q: %w", workflow, stepflow.ErrWorkflowNotFound)
	}

	s, ok := g.Step(step)
	if !ok {
		return nil, &stepflow.UnknownStepError{Workflow: workflow, Step: step}
	}
	return s, nil
}

// Names returns all registered workflow names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.graphs))
	for name := range r.graphs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
