package run

import (
	"github.com/xraph/stepflow"
	"github.com/xraph/stepflow/id"
)

// AsyncState records partial progress of a step whose handler is itself
// asynchronous, before the engine's own suspend/resume engages. Keyed by
// run and step; overwritten on every save and cleared when the step
// completes.
type AsyncState struct {
	stepflow.Entity

	RunID id.RunID `json:"run_id"`
	Step  string   `json:"step"`
	Data  []byte   `json:"data,omitempty"`
}
