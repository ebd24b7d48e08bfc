package intercept

import (
	"context"
	"sync"

	"github.com/xraph/stepflow/graph"
)

type stubOutcome struct {
	result graph.Result
	err    error
}

// Stub is a canned StepInterceptor for tests. Outcomes registered with
// Return and Throw are consumed in FIFO order per step; Always installs a
// fallback served once the queue drains. Steps with no configured outcome
// fall through to the real handler.
type Stub struct {
	name string

	mu     sync.Mutex
	queues map[string][]stubOutcome
	always map[string]graph.Result
	calls  map[string]int
}

var _ StepInterceptor = (*Stub)(nil)

// NewStub returns an empty stub registered under name.
func NewStub(name string) *Stub {
	return &Stub{
		name:   name,
		queues: make(map[string][]stubOutcome),
		always: make(map[string]graph.Result),
		calls:  make(map[string]int),
	}
}

// Name implements Interceptor.
func (s *Stub) Name() string { return s.name }

// Return queues result as the next outcome for step.
func (s *Stub) Return(step string, result graph.Result) *Stub {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queues[step] = append(s.queues[step], stubOutcome{result: result})
	return s
}

// Throw queues err as the next outcome for step.
func (s *Stub) Throw(step string, err error) *Stub {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queues[step] = append(s.queues[step], stubOutcome{err: err})
	return s
}

// Always installs result as the steady-state outcome for step, served
// whenever the queued outcomes are exhausted.
func (s *Stub) Always(step string, result graph.Result) *Stub {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.always[step] = result
	return s
}

// Calls reports how many times the stub substituted an outcome for step.
// Fall-throughs are not counted.
func (s *Stub) Calls(step string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[step]
}

// InterceptStep implements StepInterceptor.
func (s *Stub) InterceptStep(_ context.Context, sc *StepContext) (graph.Result, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	step := sc.Step.Name
	if q := s.queues[step]; len(q) > 0 {
		out := q[0]
		s.queues[step] = q[1:]
		s.calls[step]++
		return out.result, true, out.err
	}
	if res, ok := s.always[step]; ok {
		s.calls[step]++
		return res, true, nil
	}
	return graph.Result{}, false, nil
}
