package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/stepflow/graph"
	"github.com/xraph/stepflow/intercept"
)

// tracerName is the instrumentation scope name for stepflow traces.
const tracerName = "github.com/xraph/stepflow"

// Compile-time interface checks.
var (
	_ intercept.Interceptor = (*TracingInterceptor)(nil)
	_ intercept.BeforeStep  = (*TracingInterceptor)(nil)
	_ intercept.AfterStep   = (*TracingInterceptor)(nil)
	_ intercept.StepError   = (*TracingInterceptor)(nil)
)

// spanKey keys the open span in the step's invocation scratch space.
type spanKey struct{}

// TracingInterceptor opens an OpenTelemetry span per step invocation. The
// span starts before the handler runs and ends when the step reports a
// result or an error, so retries of the same entry produce one span each.
type TracingInterceptor struct {
	tracer trace.Tracer
}

// Tracing returns a tracing interceptor using the global OTel
// TracerProvider. If no TracerProvider is configured, noop spans are
// produced and the interceptor becomes a pass-through.
//
// Span: stepflow.step.execute, with attributes: stepflow.workflow,
// stepflow.run.id, stepflow.step, stepflow.entry, stepflow.attempt, and
// stepflow.outcome on success.
func Tracing() *TracingInterceptor {
	tracer := otel.Tracer(tracerName)
	return TracingWithTracer(tracer)
}

// TracingWithTracer returns a tracing interceptor using the provided
// tracer. This variant allows injecting a specific TracerProvider for
// testing.
func TracingWithTracer(tracer trace.Tracer) *TracingInterceptor {
	return &TracingInterceptor{tracer: tracer}
}

// Name implements intercept.Interceptor.
func (t *TracingInterceptor) Name() string { return "tracing" }

// OnBeforeStep implements intercept.BeforeStep. It starts the invocation
// span and parks it in the step context for the closing hook.
func (t *TracingInterceptor) OnBeforeStep(ctx context.Context, sc *intercept.StepContext) error {
	_, span := t.tracer.Start(ctx, "stepflow.step.execute",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("stepflow.workflow", sc.Run.Workflow),
			attribute.String("stepflow.run.id", sc.Run.ID.String()),
			attribute.String("stepflow.step", sc.Step.Name),
			attribute.Int("stepflow.entry", sc.Entry),
			attribute.Int("stepflow.attempt", sc.Attempt),
		),
	)
	sc.Set(spanKey{}, span)
	return nil
}

// OnAfterStep implements intercept.AfterStep. It closes the invocation
// span with Ok status and the result kind as the outcome attribute.
func (t *TracingInterceptor) OnAfterStep(_ context.Context, sc *intercept.StepContext, result graph.Result, _ time.Duration) error {
	span, ok := t.spanFrom(sc)
	if !ok {
		return nil
	}
	span.SetAttributes(attribute.String("stepflow.outcome", string(result.Kind())))
	span.SetStatus(codes.Ok, "")
	span.End()
	return nil
}

// OnStepError implements intercept.StepError. It records the failure on
// the invocation span and closes it with Error status.
func (t *TracingInterceptor) OnStepError(_ context.Context, sc *intercept.StepContext, stepErr error, _ time.Duration) error {
	span, ok := t.spanFrom(sc)
	if !ok {
		return nil
	}
	span.RecordError(stepErr)
	span.SetStatus(codes.Error, stepErr.Error())
	span.End()
	return nil
}

func (t *TracingInterceptor) spanFrom(sc *intercept.StepContext) (trace.Span, bool) {
	v, ok := sc.Value(spanKey{})
	if !ok {
		return nil, false
	}
	span, ok := v.(trace.Span)
	return span, ok
}
