package observability_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/xraph/payflow"
	"github.com/xraph/payflow/checkpoint"
	"github.com/xraph/payflow/observability"
	"github.com/xraph/payflow/state"
)

func setupTestMeter() (*sdkmetric.ManualReader, *sdkmetric.MeterProvider) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	return reader, mp
}

func collectMetrics(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("failed to collect metrics: %v", err)
	}

	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}

	return nil
}

func newTestState() *state.WorkflowState {
	st := state.New(state.InvoicePayload{
		InvoiceID:   "INV-001",
		VendorName:  "Acme Corp",
		InvoiceDate: "2025-01-15",
		Amount:      5500,
		Currency:    "USD",
	})
	st.Status = state.StatusCompleted

	return st
}

func TestMetrics_WorkflowCounters(t *testing.T) {
	reader, mp := setupTestMeter()
	m := observability.NewMetricsExtensionWithMeter(mp.Meter("test"))
	st := newTestState()

	_ = m.OnWorkflowStarted(context.Background(), st)
	_ = m.OnWorkflowCompleted(context.Background(), st, 120*time.Millisecond)

	rm := collectMetrics(t, reader)

	for _, name := range []string{"payflow.workflow.started", "payflow.workflow.completed"} {
		metric := findMetric(rm, name)
		if metric == nil {
			t.Fatalf("%s metric not found", name)
		}
		sum, ok := metric.Data.(metricdata.Sum[int64])
		if !ok {
			t.Fatalf("%s: expected Sum[int64] data type", name)
		}
		if len(sum.DataPoints) == 0 || sum.DataPoints[0].Value != 1 {
			t.Errorf("%s: expected one data point with value 1", name)
		}
	}
}

func TestMetrics_CompletedCarriesStatus(t *testing.T) {
	reader, mp := setupTestMeter()
	m := observability.NewMetricsExtensionWithMeter(mp.Meter("test"))
	st := newTestState()
	st.Status = state.StatusManualHandoff

	_ = m.OnWorkflowCompleted(context.Background(), st, time.Second)

	rm := collectMetrics(t, reader)
	metric := findMetric(rm, "payflow.workflow.completed")
	if metric == nil {
		t.Fatal("payflow.workflow.completed metric not found")
	}

	sum := metric.Data.(metricdata.Sum[int64])
	found := false
	for _, attr := range sum.DataPoints[0].Attributes.ToSlice() {
		if string(attr.Key) == "status" && attr.Value.AsString() == string(state.StatusManualHandoff) {
			found = true
			break
		}
	}
	if !found {
		t.Error("expected status attribute on completed counter")
	}
}

func TestMetrics_StageDurationHistogram(t *testing.T) {
	reader, mp := setupTestMeter()
	m := observability.NewMetricsExtensionWithMeter(mp.Meter("test"))
	st := newTestState()

	_ = m.OnStageCompleted(context.Background(), st, state.StageMatch, 40*time.Millisecond)

	rm := collectMetrics(t, reader)
	metric := findMetric(rm, "payflow.stage.duration")
	if metric == nil {
		t.Fatal("payflow.stage.duration metric not found")
	}

	hist, ok := metric.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("expected Histogram[float64] data type")
	}
	if len(hist.DataPoints) == 0 {
		t.Fatal("no data points recorded for stage duration")
	}
	if hist.DataPoints[0].Count != 1 {
		t.Errorf("expected count=1, got %d", hist.DataPoints[0].Count)
	}

	var stageAttr string
	for _, attr := range hist.DataPoints[0].Attributes.ToSlice() {
		if attr.Key == attribute.Key("stage") {
			stageAttr = attr.Value.AsString()
		}
	}
	if stageAttr != string(state.StageMatch) {
		t.Errorf("stage attribute = %q, want %q", stageAttr, state.StageMatch)
	}
}

func TestMetrics_SuspendAndResume(t *testing.T) {
	reader, mp := setupTestMeter()
	m := observability.NewMetricsExtensionWithMeter(mp.Meter("test"))
	st := newTestState()

	cp, _, err := checkpoint.New(st, "match below threshold", 3, payflow.DefaultConfig())
	if err != nil {
		t.Fatalf("checkpoint.New: %v", err)
	}

	_ = m.OnWorkflowSuspended(context.Background(), st, cp)
	_ = m.OnWorkflowResumed(context.Background(), st, checkpoint.DecisionAccept)

	rm := collectMetrics(t, reader)

	suspended := findMetric(rm, "payflow.workflow.suspended")
	if suspended == nil {
		t.Fatal("payflow.workflow.suspended metric not found")
	}
	resumed := findMetric(rm, "payflow.workflow.resumed")
	if resumed == nil {
		t.Fatal("payflow.workflow.resumed metric not found")
	}

	sum := resumed.Data.(metricdata.Sum[int64])
	found := false
	for _, attr := range sum.DataPoints[0].Attributes.ToSlice() {
		if string(attr.Key) == "decision" && attr.Value.AsString() == string(checkpoint.DecisionAccept) {
			found = true
			break
		}
	}
	if !found {
		t.Error("expected decision attribute on resumed counter")
	}
}

func TestMetrics_StageFailures(t *testing.T) {
	reader, mp := setupTestMeter()
	m := observability.NewMetricsExtensionWithMeter(mp.Meter("test"))
	st := newTestState()

	_ = m.OnStageFailed(context.Background(), st, state.StageIntake, errors.New("boom"))
	_ = m.OnWorkflowFailed(context.Background(), st, errors.New("boom"))

	rm := collectMetrics(t, reader)
	if findMetric(rm, "payflow.stage.failures") == nil {
		t.Error("payflow.stage.failures metric not found")
	}
	if findMetric(rm, "payflow.workflow.failed") == nil {
		t.Error("payflow.workflow.failed metric not found")
	}
}

func TestMetrics_DefaultNoopSafe(t *testing.T) {
	// Creating the extension without a global provider must not panic.
	m := observability.NewMetricsExtension()
	st := newTestState()

	if err := m.OnWorkflowStarted(context.Background(), st); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Name() != "otel-metrics" {
		t.Errorf("Name() = %q", m.Name())
	}
}
