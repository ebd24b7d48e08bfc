// Package engine wires the stepflow subsystems together: the graph and
// interceptor registries, the worker pool and scheduler, admission limits,
// and the composite store. It owns the dispatch loop that drives a run
// from step to step.
//
// This package sits above all subsystem packages: the root stepflow
// package defines Config, Entity, and the error taxonomy (imported by
// graph, run, and the stores) and so cannot host the engine itself.
//
// A minimal session:
//
//	eng, err := engine.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer eng.Shutdown(context.Background())
//
//	g, _ := graph.New("greet").
//	    Start("hello").
//	    Step("hello", func(ctx context.Context, input any, wctx *run.Context) (graph.Result, error) {
//	        return graph.Finish(fmt.Sprintf("hello, %v", input)), nil
//	    }).
//	    Build()
//	_ = eng.Register(g)
//
//	exec, _ := eng.Execute(context.Background(), "greet", "world")
//	result, _ := exec.Wait(context.Background())
//
// Steps of one run execute strictly in sequence; separate runs are fully
// concurrent. A suspended run holds no goroutine: it lives only in the
// store until Resume (or a finishing child workflow) wakes it.
package engine
