// Package graph defines the workflow graph model: named steps, their
// handlers and policies, the step Result algebra, the fluent Builder, and
// the process-wide graph Registry.
//
// Graphs carry no edge list. A step names its successor at run time by
// returning Continue("next", data), which doubles as the branch mechanism:
// any step can pick any registered step based on runtime logic. Loops are
// expressed by re-emitting an earlier step's name and are bounded only by
// per-step invocation limits, never by static analysis. Targets are
// resolved against registered step names at dispatch time; an unknown
// target fails the run on first reach.
package graph
