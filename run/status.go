package run

// Status represents the lifecycle state of a workflow run.
type Status string

const (
	// StatusCreated means the run is persisted but not yet dispatched.
	StatusCreated Status = "created"
	// StatusRunning means the run is executing steps.
	StatusRunning Status = "running"
	// StatusSuspended means the run is parked awaiting an external event.
	StatusSuspended Status = "suspended"
	// StatusCompleted means the run finished successfully.
	StatusCompleted Status = "completed"
	// StatusFailed means the run failed terminally.
	StatusFailed Status = "failed"
	// StatusCancelled means the run was cancelled by the caller.
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
// Cancellation is terminal and wins every race: a cancelled run never
// becomes completed or failed afterward.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// CanTransition reports whether a run may move from s to next. The machine
// is created → running → {suspended ⇄ running} → {completed, failed,
// cancelled}.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusCreated:
		return next == StatusRunning || next == StatusCancelled
	case StatusRunning:
		return next == StatusSuspended || next.Terminal()
	case StatusSuspended:
		return next == StatusRunning || next == StatusCancelled
	default:
		return false
	}
}
