package engine

// EventKey is the run-context key resume payloads are appended under.
// Steps downstream of a suspension read the most recent event with
// Context.Get(EventKey) and the full approval trail with GetAll.
const EventKey = "event"

// Event wakes a suspended run.
type Event struct {
	// Token must equal the await token the run suspended on. For a
	// handoff suspension this is the child run's ID.
	Token string

	// Data is delivered to the continuation step as its input and
	// appended to the run context under EventKey.
	Data any
}
