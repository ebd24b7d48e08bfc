package run

import (
	"github.com/xraph/stepflow"
	"github.com/xraph/stepflow/id"
)

// Suspension parks a run pending an external event. It is keyed by the
// await token and holds everything the run needs when the event arrives:
// the continuation step, the data the suspending step saved, and the child
// workflow descriptor for handoffs.
type Suspension struct {
	stepflow.Entity

	Token    string   `json:"token"`
	RunID    id.RunID `json:"run_id"`
	NextStep string   `json:"next_step"`
	Data     []byte   `json:"data,omitempty"`
	Handoff  *Handoff `json:"handoff,omitempty"`
}

// Handoff describes delegation to a child workflow. The parent stays
// suspended until the child reaches a terminal state, then resumes at the
// suspension's continuation step with the child's result as the event
// payload.
type Handoff struct {
	Workflow   string   `json:"workflow"`
	Input      []byte   `json:"input,omitempty"`
	ChildRunID id.RunID `json:"child_run_id,omitempty"`
}
