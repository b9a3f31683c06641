package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xraph/payflow/checkpoint"
	"github.com/xraph/payflow/ext"
	"github.com/xraph/payflow/state"
)

// meterName is the instrumentation scope name for payflow metrics.
const meterName = "github.com/xraph/payflow"

// Compile-time interface checks.
var (
	_ ext.Extension         = (*MetricsExtension)(nil)
	_ ext.WorkflowStarted   = (*MetricsExtension)(nil)
	_ ext.StageCompleted    = (*MetricsExtension)(nil)
	_ ext.StageFailed       = (*MetricsExtension)(nil)
	_ ext.WorkflowSuspended = (*MetricsExtension)(nil)
	_ ext.WorkflowResumed   = (*MetricsExtension)(nil)
	_ ext.WorkflowCompleted = (*MetricsExtension)(nil)
	_ ext.WorkflowFailed    = (*MetricsExtension)(nil)
)

// MetricsExtension records workflow lifecycle metrics via OpenTelemetry.
// Register it on the engine's extension registry to track workflow
// throughput, per-stage latency, suspension rates, and reviewer
// decision mix.
type MetricsExtension struct {
	workflowsStarted   metric.Int64Counter
	workflowsCompleted metric.Int64Counter
	workflowsFailed    metric.Int64Counter
	workflowsSuspended metric.Int64Counter
	workflowsResumed   metric.Int64Counter
	workflowDuration   metric.Float64Histogram
	stageDuration      metric.Float64Histogram
	stageFailures      metric.Int64Counter
}

// NewMetricsExtension creates a MetricsExtension using the global OTel
// MeterProvider. Without a configured provider the instruments are
// noops and the extension is a pass-through.
func NewMetricsExtension() *MetricsExtension {
	return NewMetricsExtensionWithMeter(otel.Meter(meterName))
}

// NewMetricsExtensionWithMeter creates a MetricsExtension with the
// provided meter. This variant allows injecting a specific
// MeterProvider for testing.
func NewMetricsExtensionWithMeter(meter metric.Meter) *MetricsExtension {
	// Instruments are created once here. On error the OTel API returns
	// noop instruments, so the extension degrades gracefully.
	m := &MetricsExtension{}

	m.workflowsStarted, _ = meter.Int64Counter(
		"payflow.workflow.started",
		metric.WithDescription("Total workflows started"),
		metric.WithUnit("{workflow}"),
	)
	m.workflowsCompleted, _ = meter.Int64Counter(
		"payflow.workflow.completed",
		metric.WithDescription("Total workflows reaching a completed terminal status"),
		metric.WithUnit("{workflow}"),
	)
	m.workflowsFailed, _ = meter.Int64Counter(
		"payflow.workflow.failed",
		metric.WithDescription("Total workflows failing terminally"),
		metric.WithUnit("{workflow}"),
	)
	m.workflowsSuspended, _ = meter.Int64Counter(
		"payflow.workflow.suspended",
		metric.WithDescription("Total workflows suspended for human review"),
		metric.WithUnit("{workflow}"),
	)
	m.workflowsResumed, _ = meter.Int64Counter(
		"payflow.workflow.resumed",
		metric.WithDescription("Total workflows resumed after a reviewer decision"),
		metric.WithUnit("{workflow}"),
	)
	m.workflowDuration, _ = meter.Float64Histogram(
		"payflow.workflow.duration",
		metric.WithDescription("Wall-clock time from workflow start to terminal status in seconds"),
		metric.WithUnit("s"),
	)
	m.stageDuration, _ = meter.Float64Histogram(
		"payflow.stage.duration",
		metric.WithDescription("Stage execution time in seconds"),
		metric.WithUnit("s"),
	)
	m.stageFailures, _ = meter.Int64Counter(
		"payflow.stage.failures",
		metric.WithDescription("Total stage failures"),
		metric.WithUnit("{failure}"),
	)

	return m
}

// Name implements ext.Extension.
func (m *MetricsExtension) Name() string { return "otel-metrics" }

// OnWorkflowStarted implements ext.WorkflowStarted.
func (m *MetricsExtension) OnWorkflowStarted(ctx context.Context, _ *state.WorkflowState) error {
	m.workflowsStarted.Add(ctx, 1)

	return nil
}

// OnStageCompleted implements ext.StageCompleted.
func (m *MetricsExtension) OnStageCompleted(ctx context.Context, _ *state.WorkflowState, stage state.Stage, elapsed time.Duration) error {
	m.stageDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(
		attribute.String("stage", string(stage)),
	))

	return nil
}

// OnStageFailed implements ext.StageFailed.
func (m *MetricsExtension) OnStageFailed(ctx context.Context, _ *state.WorkflowState, stage state.Stage, _ error) error {
	m.stageFailures.Add(ctx, 1, metric.WithAttributes(
		attribute.String("stage", string(stage)),
	))

	return nil
}

// OnWorkflowSuspended implements ext.WorkflowSuspended.
func (m *MetricsExtension) OnWorkflowSuspended(ctx context.Context, _ *state.WorkflowState, cp *checkpoint.Checkpoint) error {
	m.workflowsSuspended.Add(ctx, 1, metric.WithAttributes(
		attribute.Int("priority", cp.Priority),
	))

	return nil
}

// OnWorkflowResumed implements ext.WorkflowResumed.
func (m *MetricsExtension) OnWorkflowResumed(ctx context.Context, _ *state.WorkflowState, decision checkpoint.Decision) error {
	m.workflowsResumed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("decision", string(decision)),
	))

	return nil
}

// OnWorkflowCompleted implements ext.WorkflowCompleted.
func (m *MetricsExtension) OnWorkflowCompleted(ctx context.Context, st *state.WorkflowState, elapsed time.Duration) error {
	attrs := metric.WithAttributes(
		attribute.String("status", string(st.Status)),
	)
	m.workflowsCompleted.Add(ctx, 1, attrs)
	m.workflowDuration.Record(ctx, elapsed.Seconds(), attrs)

	return nil
}

// OnWorkflowFailed implements ext.WorkflowFailed.
func (m *MetricsExtension) OnWorkflowFailed(ctx context.Context, st *state.WorkflowState, _ error) error {
	m.workflowsFailed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("stage", string(st.CurrentStage)),
	))

	return nil
}
