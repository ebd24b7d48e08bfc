// Package progress tracks coarse advancement of long-running runs: which
// step is executing, a completion percentage reported by handlers, and a
// terminal state. One progress row exists per run.
package progress

import (
	"github.com/xraph/stepflow"
	"github.com/xraph/stepflow/id"
)

// State is the high-level position of a run for progress reporting.
type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// Progress is the latest known advancement snapshot for a run.
type Progress struct {
	stepflow.Entity

	RunID    id.RunID `json:"run_id"`
	Workflow string   `json:"workflow"`
	Step     string   `json:"step"`
	Percent  int      `json:"percent"`
	State    State    `json:"state"`
	Note     string   `json:"note"`
}

// New creates a pending snapshot for a run.
func New(runID id.RunID, workflow string) *Progress {
	return &Progress{
		Entity:   stepflow.NewEntity(),
		RunID:    runID,
		Workflow: workflow,
		State:    StatePending,
	}
}

// Clone returns a copy.
func (p *Progress) Clone() *Progress {
	if p == nil {
		return nil
	}
	clone := *p
	return &clone
}
