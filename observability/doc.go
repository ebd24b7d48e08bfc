// Package observability provides OpenTelemetry-based tracing and metrics
// interceptors for stepflow. The TracingInterceptor opens a span per step
// invocation; the MetricsInterceptor records step durations, execution
// counters, and run lifecycle counters.
//
// Both attach through the engine's interceptor registry:
//
//	eng, err := engine.New(
//	    engine.WithInterceptors(observability.Tracing(), observability.Metrics()),
//	)
//
// With no global TracerProvider or MeterProvider configured, the OTel API
// hands back noop instruments and both interceptors become pass-throughs.
package observability
