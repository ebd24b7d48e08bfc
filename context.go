package stepflow

import (
	"context"

	"github.com/xraph/stepflow/id"
)

// RunInfo carries correlation metadata for the current step invocation. The
// engine stamps it on the context passed to handlers and interceptors; there
// is no hidden per-goroutine state.
type RunInfo struct {
	RunID    id.RunID
	Workflow string
	Step     string

	// Entry is the invocation count for this step within the run,
	// starting at 1.
	Entry int

	// Attempt is the retry attempt within this entry, starting at 1.
	Attempt int
}

type runInfoKey struct{}

// WithRunInfo returns a context carrying the given run metadata.
func WithRunInfo(ctx context.Context, info RunInfo) context.Context {
	return context.WithValue(ctx, runInfoKey{}, info)
}

// RunInfoFromContext extracts the run metadata stamped by the engine. The
// second return is false when ctx does not originate from a step dispatch.
func RunInfoFromContext(ctx context.Context) (RunInfo, bool) {
	info, ok := ctx.Value(runInfoKey{}).(RunInfo)
	return info, ok
}
