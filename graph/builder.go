package graph

import (
	"errors"
	"fmt"

	"github.com/xraph/stepflow"
)

// Builder assembles an immutable Graph through a fluent API:
//
//	g, err := graph.New("agent").
//	    Start("plan").
//	    Step("plan", planHandler).
//	    Step("act", actHandler, graph.WithInvocationLimit(5)).
//	    Build()
//
// Build validates construction only: a non-empty graph name, a declared and
// registered start step, unique step names, and non-nil handlers. It does
// not validate transition targets or detect cycles; successors are dynamic
// strings resolved at dispatch time, and loops are legal.
type Builder struct {
	name  string
	start string
	steps map[string]*Step
	order []string
	errs  []error
}

// New starts building a workflow graph with the given name.
func New(name string) *Builder {
	return &Builder{
		name:  name,
		steps: make(map[string]*Step),
	}
}

// Start declares the step the engine enters first.
func (b *Builder) Start(step string) *Builder {
	b.start = step
	return b
}

// Step registers a named step with its handler and options. Registering a
// name twice is a build error.
func (b *Builder) Step(name string, h Handler, opts ...StepOption) *Builder {
	if name == "" {
		b.errs = append(b.errs, fmt.Errorf("graph %q: step with empty name: %w", b.name, stepflow.ErrInvalidGraph))
		return b
	}
	if h == nil {
		b.errs = append(b.errs, fmt.Errorf("graph %q: step %q has nil handler: %w", b.name, name, stepflow.ErrInvalidGraph))
		return b
	}
	if _, exists := b.steps[name]; exists {
		b.errs = append(b.errs, fmt.Errorf("graph %q: duplicate step %q: %w", b.name, name, stepflow.ErrInvalidGraph))
		return b
	}

	s := &Step{
		Name:    name,
		Handler: h,
		OnLimit: LimitStop,
	}
	for _, opt := range opts {
		opt(s)
	}

	b.steps[name] = s
	b.order = append(b.order, name)
	return b
}

// Build validates the definition and returns the immutable graph.
func (b *Builder) Build() (*Graph, error) {
	errs := b.errs
	if b.name == "" {
		errs = append(errs, fmt.Errorf("graph with empty name: %w", stepflow.ErrInvalidGraph))
	}
	if len(b.steps) == 0 {
		errs = append(errs, fmt.Errorf("graph %q: no steps registered: %w", b.name, stepflow.ErrInvalidGraph))
	}
	if b.start == "" {
		errs = append(errs, fmt.Errorf("graph %q: no start step declared: %w", b.name, stepflow.ErrInvalidGraph))
	} else if _, ok := b.steps[b.start]; !ok {
		errs = append(errs, fmt.Errorf("graph %q: start step %q not registered: %w", b.name, b.start, stepflow.ErrInvalidGraph))
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	steps := make(map[string]*Step, len(b.steps))
	for name, s := range b.steps {
		steps[name] = s
	}
	order := make([]string, len(b.order))
	copy(order, b.order)

	return &Graph{
		name:  b.name,
		start: b.start,
		steps: steps,
		order: order,
	}, nil
}
