package graph

// Graph is an immutable workflow definition: a set of named steps and the
// step the engine enters first. Build one with the Builder; a built graph
// is never mutated and is safe to share across the registry and concurrent
// dispatch.
type Graph struct {
	name  string
	start string
	steps map[string]*Step
	order []string
}

// Name returns the workflow name the graph registers under.
func (g *Graph) Name() string { return g.name }

// StartStep returns the name of the step the engine enters first.
func (g *Graph) StartStep() string { return g.start }

// Step returns the named step definition.
func (g *Graph) Step(name string) (*Step, bool) {
	s, ok := g.steps[name]
	return s, ok
}

// Steps returns all step names in registration order.
func (g *Graph) Steps() []string {
	out := make([]string, len(g.order))
	copy(out, g.order)
	return out
}

// Len returns the number of registered steps.
func (g *Graph) Len() int { return len(g.steps) }
