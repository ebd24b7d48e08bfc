package run

import (
	"time"

	"github.com/xraph/stepflow/id"
)

// RecordType distinguishes workflow-level from step-level records.
type RecordType string

const (
	// RecordWorkflow marks records for the run as a whole.
	RecordWorkflow RecordType = "workflow"
	// RecordStep marks records for a single step invocation.
	RecordStep RecordType = "step"
)

// RecordStatus is the phase captured by a record.
type RecordStatus string

const (
	RecordStarted   RecordStatus = "started"
	RecordCompleted RecordStatus = "completed"
	RecordFailed    RecordStatus = "failed"
)

// Record is an append-only execution log entry used for tracing and test
// assertions. Records are never mutated after they are appended.
//
// Seq is the per-run dispatch sequence assigned by the engine; sorting a
// run's records by Seq reproduces the exact dispatch order, and timestamps
// are consistent with that order.
type Record struct {
	ID        id.RecordID  `json:"id"`
	RunID     id.RunID     `json:"run_id"`
	Workflow  string       `json:"workflow"`
	Type      RecordType   `json:"type"`
	Step      string       `json:"step,omitempty"`
	Status    RecordStatus `json:"status"`
	Data      []byte       `json:"data,omitempty"`
	Error     string       `json:"error,omitempty"`
	Seq       int64        `json:"seq"`
	Timestamp time.Time    `json:"timestamp"`
}
