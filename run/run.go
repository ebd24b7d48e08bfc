package run

import (
	"time"

	"github.com/xraph/stepflow"
	"github.com/xraph/stepflow/id"
)

// Run represents a single execution of a workflow graph. It is persisted
// after every step boundary, so a crash loses at most one in-flight step
// and a suspended run can resume in a different process.
type Run struct {
	stepflow.Entity

	ID       id.RunID `json:"id"`
	Workflow string   `json:"workflow"`
	Status   Status   `json:"status"`

	// CurrentStep is the step the run is executing, about to execute, or
	// suspended in front of.
	CurrentStep string `json:"current_step,omitempty"`

	// Context is the append-only per-run data store.
	Context *Context `json:"context"`

	// Input is the JSON-encoded initial input passed to Execute.
	Input []byte `json:"input,omitempty"`

	// CurrentInput is the JSON-encoded input pending for CurrentStep.
	// Best effort: a value that does not marshal leaves it empty while
	// the in-memory value keeps flowing through the run.
	CurrentInput []byte `json:"current_input,omitempty"`

	// Invocations counts entries per step name. Persisted so invocation
	// limits hold across suspension and process restarts.
	Invocations map[string]int `json:"invocations,omitempty"`

	// AwaitToken is the token a suspended run expects its resume event to
	// carry. Empty unless Status is suspended.
	AwaitToken string `json:"await_token,omitempty"`

	// Result is the JSON-encoded terminal result of a completed run.
	Result []byte `json:"result,omitempty"`

	// Error is the terminal error text of a failed run.
	Error string `json:"error,omitempty"`

	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// New creates a Run in StatusCreated for the named workflow.
func New(workflow string, input []byte) *Run {
	return &Run{
		Entity:      stepflow.NewEntity(),
		ID:          id.NewRunID(),
		Workflow:    workflow,
		Status:      StatusCreated,
		Context:     NewContext(),
		Input:       input,
		Invocations: make(map[string]int),
		StartedAt:   time.Now().UTC(),
	}
}

// Clone returns a deep copy of the run. Stores return clones so callers
// never alias engine-owned state.
func (r *Run) Clone() *Run {
	if r == nil {
		return nil
	}

	cp := *r
	cp.Context = r.Context.Clone()

	if r.Input != nil {
		cp.Input = append([]byte(nil), r.Input...)
	}
	if r.CurrentInput != nil {
		cp.CurrentInput = append([]byte(nil), r.CurrentInput...)
	}
	if r.Result != nil {
		cp.Result = append([]byte(nil), r.Result...)
	}
	if r.Invocations != nil {
		cp.Invocations = make(map[string]int, len(r.Invocations))
		for k, v := range r.Invocations {
			cp.Invocations[k] = v
		}
	}
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}
