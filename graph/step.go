package graph

import (
	"context"
	"time"

	"github.com/xraph/stepflow/backoff"
	"github.com/xraph/stepflow/run"
)

// OnLimit selects the behavior when a step exceeds its invocation limit.
type OnLimit string

const (
	// LimitStop completes the run, using the step's last produced data as
	// the run result. This is the default: a tripped loop guard ends a
	// reasoning loop gracefully with its best answer so far.
	LimitStop OnLimit = "stop"
	// LimitFail fails the run with a StepLimitExceededError.
	LimitFail OnLimit = "fail"
)

// Handler is a step's work function: a pure function of its input and the
// run context. Returning a non-nil error is the Go form of throwing; the
// engine feeds it to the step's retry policy.
type Handler func(ctx context.Context, input any, wctx *run.Context) (Result, error)

// Step is a named node in a workflow graph.
type Step struct {
	// Name is unique within the graph. Other steps transition here by
	// returning Continue(Name, ...).
	Name string

	// Handler does the step's work.
	Handler Handler

	// InvocationLimit caps how often this step may be entered within one
	// run. Zero means unbounded. Retries within one entry do not count.
	InvocationLimit int

	// OnLimit picks the policy applied when the limit would be exceeded.
	OnLimit OnLimit

	// Timeout bounds a single handler invocation. Zero falls back to the
	// engine's default step timeout.
	Timeout time.Duration

	// Retry overrides the engine's retry policy for this step.
	Retry *backoff.Policy
}

// StepOption configures a step at registration time.
type StepOption func(*Step)

// WithInvocationLimit caps how often the step may be entered in one run.
func WithInvocationLimit(n int) StepOption {
	return func(s *Step) { s.InvocationLimit = n }
}

// WithOnLimit sets the policy applied when the invocation limit trips.
func WithOnLimit(p OnLimit) StepOption {
	return func(s *Step) { s.OnLimit = p }
}

// WithTimeout bounds a single handler invocation.
func WithTimeout(d time.Duration) StepOption {
	return func(s *Step) { s.Timeout = d }
}

// WithRetry attaches a retry policy to the step.
func WithRetry(p backoff.Policy) StepOption {
	return func(s *Step) { s.Retry = &p }
}
