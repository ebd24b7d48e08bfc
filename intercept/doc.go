// Package intercept defines the execution interceptor system. Interceptors
// are notified around every step invocation and workflow lifecycle
// transition, and may substitute step results for deterministic testing.
//
// Each hook is a separate interface so interceptors opt in only to the
// events they care about. Observer hooks (before/after/error and workflow
// lifecycle) are isolated: an error or panic from one is logged and never
// aborts the run. The substitution hook is the opposite: its error is
// re-thrown as the step's failure so tests exercise the real retry path.
//
// Interceptors are injected explicitly at engine construction or via
// AddInterceptor. There is no process-global registration.
package intercept
