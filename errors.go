package stepflow

import (
	"errors"
	"fmt"
	"time"

	"github.com/xraph/stepflow/id"
)

var (
	// Store errors.
	ErrNoStore          = errors.New("stepflow: no store configured")
	ErrStoreClosed      = errors.New("stepflow: store closed")
	ErrRunAlreadyExists = errors.New("stepflow: run already exists")

	// Not found errors.
	ErrWorkflowNotFound   = errors.New("stepflow: workflow not found")
	ErrRunNotFound        = errors.New("stepflow: run not found")
	ErrSuspensionNotFound = errors.New("stepflow: suspension not found")
	ErrAsyncStateNotFound = errors.New("stepflow: async step state not found")
	ErrSessionNotFound    = errors.New("stepflow: session not found")
	ErrProgressNotFound   = errors.New("stepflow: progress not found")

	// Definition errors.
	ErrInvalidGraph = errors.New("stepflow: invalid graph definition")
	ErrUnknownStep  = errors.New("stepflow: unknown step")

	// Dispatch errors.
	ErrStepLimitExceeded = errors.New("stepflow: step invocation limit exceeded")
	ErrStepTimeout       = errors.New("stepflow: step timed out")
	ErrIllegalResume     = errors.New("stepflow: run is not suspended")
	ErrTokenMismatch     = errors.New("stepflow: resume event token mismatch")
	ErrRunCancelled      = errors.New("stepflow: run cancelled")
	ErrRunRejected       = errors.New("stepflow: run rejected by admission limits")

	// Lifecycle errors.
	ErrEngineClosed = errors.New("stepflow: engine closed")
	ErrPoolClosed   = errors.New("stepflow: worker pool closed")
	ErrQueueFull    = errors.New("stepflow: worker queue full")
)

// UnknownStepError reports a named transition that resolves to no registered
// step. This is a programming error in a workflow definition; it fails the
// run on first reach, never at registration time.
type UnknownStepError struct {
	Workflow string
	Step     string
}

func (e *UnknownStepError) Error() string {
	return fmt.Sprintf("stepflow: unknown step %q in workflow %q", e.Step, e.Workflow)
}

// Is reports a match against ErrUnknownStep so callers can test with
// errors.Is without losing the structured fields.
func (e *UnknownStepError) Is(target error) bool { return target == ErrUnknownStep }

// StepLimitExceededError reports that a step was entered more often than its
// invocation limit allows under the FAIL policy.
type StepLimitExceededError struct {
	Workflow string
	Step     string
	Limit    int
}

func (e *StepLimitExceededError) Error() string {
	return fmt.Sprintf("stepflow: step %q in workflow %q exceeded invocation limit %d", e.Step, e.Workflow, e.Limit)
}

func (e *StepLimitExceededError) Is(target error) bool { return target == ErrStepLimitExceeded }

// IllegalResumeStateError reports a resume call against a run that is not
// suspended.
type IllegalResumeStateError struct {
	RunID  id.RunID
	Status string
}

func (e *IllegalResumeStateError) Error() string {
	return fmt.Sprintf("stepflow: cannot resume run %s in status %s", e.RunID, e.Status)
}

func (e *IllegalResumeStateError) Is(target error) bool { return target == ErrIllegalResume }

// StepTimeoutError reports a handler that exceeded its time budget. The
// engine treats it as a handler failure, so it feeds the retry pipeline.
type StepTimeoutError struct {
	Workflow string
	Step     string
	Timeout  time.Duration
}

func (e *StepTimeoutError) Error() string {
	return fmt.Sprintf("stepflow: step %q in workflow %q timed out after %s", e.Step, e.Workflow, e.Timeout)
}

func (e *StepTimeoutError) Is(target error) bool { return target == ErrStepTimeout }

// HandlerExecutionError wraps an error or recovered panic raised by a step
// handler. The cause stays reachable through errors.Is/errors.As for
// retry-path assertions.
type HandlerExecutionError struct {
	Workflow string
	Step     string
	Err      error
}

func (e *HandlerExecutionError) Error() string {
	return fmt.Sprintf("stepflow: step %q in workflow %q failed: %v", e.Step, e.Workflow, e.Err)
}

func (e *HandlerExecutionError) Unwrap() error { return e.Err }
