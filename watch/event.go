// Package watch provides a live feed of run lifecycle events. The Feed is
// an observer interceptor: registered with the engine, it fans every run
// and step transition out to channel subscribers via topic-based pub/sub,
// so callers can follow a run as it executes without polling the store.
package watch

import "time"

// EventType identifies the kind of lifecycle event.
type EventType string

const (
	EventRunStarted   EventType = "run.started"
	EventRunCompleted EventType = "run.completed"
	EventRunFailed    EventType = "run.failed"
	EventRunCancelled EventType = "run.cancelled"

	EventStepStarted   EventType = "step.started"
	EventStepCompleted EventType = "step.completed"
	EventStepFailed    EventType = "step.failed"
)

// Event is the envelope delivered to subscribers. Events of one run
// arrive in dispatch order; events of different runs interleave.
type Event struct {
	// Type identifies the lifecycle event.
	Type EventType `json:"type"`

	// Timestamp is when the event was emitted.
	Timestamp time.Time `json:"ts"`

	// Topic is the per-run topic this event belongs to.
	Topic string `json:"topic"`

	RunID    string `json:"run_id"`
	Workflow string `json:"workflow"`

	// Step fields are set on step.* events only.
	Step    string `json:"step,omitempty"`
	Entry   int    `json:"entry,omitempty"`
	Attempt int    `json:"attempt,omitempty"`

	// ElapsedMs is the handler or run duration on completion events.
	ElapsedMs int64 `json:"elapsed_ms,omitempty"`

	// Error is the failure text on step.failed, run.failed and
	// run.cancelled events.
	Error string `json:"error,omitempty"`
}
