// Package stepflow provides a graph-based, durable workflow orchestration
// engine for Go. Workflows are directed graphs of named steps; step handlers
// return a closed result algebra (continue, finish, fail, suspend) and the
// engine drives dispatch, persistence, retries, invocation limits, and
// suspend/resume across process restarts.
//
// Stepflow is designed as a library, not a service. Import it, configure a
// store, build a graph, and execute runs:
//
//	g, err := graph.New("review").
//	    Start("screen").
//	    Step("screen", screenHandler).
//	    Step("approve", approveHandler, graph.WithTimeout(30*time.Second)).
//	    Build()
//
//	e, err := engine.New(engine.WithStore(memory.New()))
//	e.Register(g)
//	exec, err := e.Execute(ctx, "review", input)
//	result, err := exec.Get(time.Minute)
//
// # Architecture
//
// Stepflow follows a composable store pattern where each aggregate (run,
// session, progress) defines its own store interface and a single backend
// implements all of them. Backends: memory, Redis, MongoDB, PostgreSQL.
//
// Steps may loop freely; termination is enforced by per-step invocation
// limits rather than static graph analysis, which makes iterative
// LLM-reasoning workflows a first-class pattern. Interceptors observe every
// step and workflow transition and may substitute step results for
// deterministic testing.
//
// All entity IDs use TypeID — type-prefixed, K-sortable, UUIDv7-based,
// compile-time safe identifiers.
package stepflow
