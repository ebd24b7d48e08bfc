package graph

// Kind identifies the variant of a step Result.
type Kind string

const (
	// KindContinue proceeds to a named step.
	KindContinue Kind = "continue"
	// KindFinish completes the run successfully.
	KindFinish Kind = "finish"
	// KindFail fails the step, feeding the retry policy.
	KindFail Kind = "fail"
	// KindSuspend parks the run pending an external event.
	KindSuspend Kind = "suspend"
)

// Result is the closed outcome algebra every step handler returns. Build
// one with Continue, Finish, Fail, Suspend, or Handoff. The zero Result is
// invalid; a handler returning it (with a nil error) fails the run.
type Result struct {
	kind       Kind
	next       string
	data       any
	err        error
	token      string
	continueTo string
	handoff    *handoffSpec
}

type handoffSpec struct {
	workflow string
	input    any
}

// Continue proceeds to the named step, passing data as its input.
func Continue(next string, data any) Result {
	return Result{kind: KindContinue, next: next, data: data}
}

// Finish completes the run successfully with result.
func Finish(result any) Result {
	return Result{kind: KindFinish, data: result}
}

// Fail fails the step with err. The engine feeds the failure to the step's
// retry policy; exhausting the policy fails the run terminally.
func Fail(err error) Result {
	return Result{kind: KindFail, err: err}
}

// Suspend parks the run until an event carrying token arrives. On resume
// the run continues at continueTo with the event payload as input. data is
// persisted with the suspension for the resuming side to inspect.
func Suspend(token, continueTo string, data any) Result {
	return Result{kind: KindSuspend, token: token, continueTo: continueTo, data: data}
}

// Handoff suspends the run, starts the named child workflow with input,
// and resumes at continueTo with the child's result once the child reaches
// a terminal state. The engine mints the await token from the child run,
// so external resumption stays possible.
func Handoff(workflow string, input any, continueTo string) Result {
	return Result{
		kind:       KindSuspend,
		continueTo: continueTo,
		handoff:    &handoffSpec{workflow: workflow, input: input},
	}
}

// Kind returns the result variant. The zero Result reports an empty Kind.
func (r Result) Kind() Kind { return r.kind }

// Next returns the Continue target step.
func (r Result) Next() string { return r.next }

// Data returns the payload of a Continue, Finish, or Suspend result.
func (r Result) Data() any { return r.data }

// Err returns the Fail cause.
func (r Result) Err() error { return r.err }

// Token returns the Suspend await token. Empty for handoffs, where the
// engine mints the token from the child run.
func (r Result) Token() string { return r.token }

// ContinueTo returns the step a suspended run resumes at.
func (r Result) ContinueTo() string { return r.continueTo }

// Handoff returns the child workflow delegation of a Suspend result
// produced by the Handoff constructor.
func (r Result) Handoff() (workflow string, input any, ok bool) {
	if r.handoff == nil {
		return "", nil, false
	}
	return r.handoff.workflow, r.handoff.input, true
}
