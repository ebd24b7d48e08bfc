package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xraph/stepflow/graph"
	"github.com/xraph/stepflow/intercept"
	"github.com/xraph/stepflow/run"
)

// meterName is the instrumentation scope name for stepflow metrics.
const meterName = "github.com/xraph/stepflow"

// Compile-time interface checks.
var (
	_ intercept.Interceptor       = (*MetricsInterceptor)(nil)
	_ intercept.AfterStep         = (*MetricsInterceptor)(nil)
	_ intercept.StepError         = (*MetricsInterceptor)(nil)
	_ intercept.WorkflowStarted   = (*MetricsInterceptor)(nil)
	_ intercept.WorkflowCompleted = (*MetricsInterceptor)(nil)
	_ intercept.WorkflowFailed    = (*MetricsInterceptor)(nil)
)

// MetricsInterceptor records step and run lifecycle metrics.
type MetricsInterceptor struct {
	stepDuration   metric.Float64Histogram
	stepExecutions metric.Int64Counter
	runStarted     metric.Int64Counter
	runCompleted   metric.Int64Counter
	runFailed      metric.Int64Counter
	runDuration    metric.Float64Histogram
	activeRuns     metric.Int64UpDownCounter
}

// Metrics returns a metrics interceptor using the global OTel
// MeterProvider. If no MeterProvider is configured, noop instruments are
// used and the interceptor becomes a pass-through.
//
// Instruments:
//   - stepflow.step.duration (Float64Histogram): handler execution time in
//     seconds, with attributes: workflow, step, status ("ok" or "error")
//   - stepflow.step.executions (Int64Counter): total step executions,
//     with attributes: workflow, step, status ("ok" or "error")
//   - stepflow.run.started / .completed / .failed (Int64Counter): run
//     lifecycle transitions, with attribute: workflow
//   - stepflow.run.duration (Float64Histogram): wall time of completed
//     runs in seconds, with attribute: workflow
//   - stepflow.runs.active (Int64UpDownCounter): runs started but not yet
//     terminal, with attribute: workflow
func Metrics() *MetricsInterceptor {
	meter := otel.Meter(meterName)
	return MetricsWithMeter(meter)
}

// MetricsWithMeter returns a metrics interceptor using the provided meter.
// This variant allows injecting a specific MeterProvider for testing.
func MetricsWithMeter(meter metric.Meter) *MetricsInterceptor {
	// Create instruments once at construction time. OTel instruments are
	// safe for concurrent use. On error, the API returns noop instruments
	// so the interceptor degrades gracefully.
	stepDuration, err := meter.Float64Histogram(
		"stepflow.step.duration",
		metric.WithDescription("Duration of step handler execution in seconds"),
		metric.WithUnit("s"),
	)
	_ = err // noop fallback guaranteed by OTel API contract

	stepExecutions, err := meter.Int64Counter(
		"stepflow.step.executions",
		metric.WithDescription("Total number of step handler executions"),
		metric.WithUnit("{execution}"),
	)
	_ = err

	runStarted, err := meter.Int64Counter(
		"stepflow.run.started",
		metric.WithDescription("Total number of runs started"),
		metric.WithUnit("{run}"),
	)
	_ = err

	runCompleted, err := meter.Int64Counter(
		"stepflow.run.completed",
		metric.WithDescription("Total number of runs completed successfully"),
		metric.WithUnit("{run}"),
	)
	_ = err

	runFailed, err := meter.Int64Counter(
		"stepflow.run.failed",
		metric.WithDescription("Total number of runs failed or cancelled"),
		metric.WithUnit("{run}"),
	)
	_ = err

	runDuration, err := meter.Float64Histogram(
		"stepflow.run.duration",
		metric.WithDescription("Wall time of completed runs in seconds"),
		metric.WithUnit("s"),
	)
	_ = err

	activeRuns, err := meter.Int64UpDownCounter(
		"stepflow.runs.active",
		metric.WithDescription("Runs started but not yet terminal"),
		metric.WithUnit("{run}"),
	)
	_ = err

	return &MetricsInterceptor{
		stepDuration:   stepDuration,
		stepExecutions: stepExecutions,
		runStarted:     runStarted,
		runCompleted:   runCompleted,
		runFailed:      runFailed,
		runDuration:    runDuration,
		activeRuns:     activeRuns,
	}
}

// Name implements intercept.Interceptor.
func (m *MetricsInterceptor) Name() string { return "metrics" }

// ── Step hooks ──────────────────────────────────────

// OnAfterStep implements intercept.AfterStep.
func (m *MetricsInterceptor) OnAfterStep(ctx context.Context, sc *intercept.StepContext, _ graph.Result, elapsed time.Duration) error {
	m.recordStep(ctx, sc, "ok", elapsed)
	return nil
}

// OnStepError implements intercept.StepError.
func (m *MetricsInterceptor) OnStepError(ctx context.Context, sc *intercept.StepContext, _ error, elapsed time.Duration) error {
	m.recordStep(ctx, sc, "error", elapsed)
	return nil
}

func (m *MetricsInterceptor) recordStep(ctx context.Context, sc *intercept.StepContext, status string, elapsed time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("workflow", sc.Run.Workflow),
		attribute.String("step", sc.Step.Name),
		attribute.String("status", status),
	)
	m.stepDuration.Record(ctx, elapsed.Seconds(), attrs)
	m.stepExecutions.Add(ctx, 1, attrs)
}

// ── Run lifecycle hooks ─────────────────────────────

// OnWorkflowStarted implements intercept.WorkflowStarted.
func (m *MetricsInterceptor) OnWorkflowStarted(ctx context.Context, r *run.Run) error {
	attrs := metric.WithAttributes(attribute.String("workflow", r.Workflow))
	m.runStarted.Add(ctx, 1, attrs)
	m.activeRuns.Add(ctx, 1, attrs)
	return nil
}

// OnWorkflowCompleted implements intercept.WorkflowCompleted.
func (m *MetricsInterceptor) OnWorkflowCompleted(ctx context.Context, r *run.Run, elapsed time.Duration) error {
	attrs := metric.WithAttributes(attribute.String("workflow", r.Workflow))
	m.runCompleted.Add(ctx, 1, attrs)
	m.runDuration.Record(ctx, elapsed.Seconds(), attrs)
	m.activeRuns.Add(ctx, -1, attrs)
	return nil
}

// OnWorkflowFailed implements intercept.WorkflowFailed. Cancellation
// reaches this hook too, so the active gauge stays balanced for every
// terminal state.
func (m *MetricsInterceptor) OnWorkflowFailed(ctx context.Context, r *run.Run, _ error) error {
	attrs := metric.WithAttributes(attribute.String("workflow", r.Workflow))
	m.runFailed.Add(ctx, 1, attrs)
	m.activeRuns.Add(ctx, -1, attrs)
	return nil
}
