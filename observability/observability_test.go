package observability

import (
	"context"
	"fmt"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func TestDefaultTracerConfig(t *testing.T) {
	cfg := DefaultTracerConfig("test-service")

	if cfg.ServiceName != "test-service" {
		t.Errorf("expected ServiceName 'test-service', got %s", cfg.ServiceName)
	}
	if cfg.Endpoint != "localhost:4318" {
		t.Errorf("expected Endpoint 'localhost:4318', got %s", cfg.Endpoint)
	}
	if cfg.SampleRate != 1.0 {
		t.Errorf("expected SampleRate 1.0, got %f", cfg.SampleRate)
	}
	if !cfg.Insecure {
		t.Error("expected Insecure to be true")
	}
}

func TestDefaultMeterConfig(t *testing.T) {
	cfg := DefaultMeterConfig("test-service")

	if cfg.ServiceName != "test-service" {
		t.Errorf("expected ServiceName 'test-service', got %s", cfg.ServiceName)
	}
	if cfg.Interval != 15*time.Second {
		t.Errorf("expected Interval 15s, got %v", cfg.Interval)
	}
}

func TestNewMetrics(t *testing.T) {
	meter := noop.NewMeterProvider().Meter("test")
	metrics, err := NewMetrics(meter)
	if err != nil {
		t.Fatalf("unexpected error creating metrics: %v", err)
	}
	if metrics == nil {
		t.Fatal("expected non-nil metrics")
	}

	ctx := context.Background()
	metrics.RecordRunStart(ctx)
	metrics.RecordRunEnd(ctx, "ingest", "ok", 100*time.Millisecond)
	metrics.RecordItems(ctx, "ingest", 3)
	metrics.RecordInflight(ctx, "map_parallel", 1)
	metrics.RecordLaneItem(ctx, "parallelize")
	metrics.RecordError(ctx, "run", "ingest")
}

// collectSums returns the int64 sum data points of every instrument, keyed
// by instrument name.
func collectSums(t *testing.T, reader *sdkmetric.ManualReader) map[string]int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	sums := make(map[string]int64)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if data, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range data.DataPoints {
					sums[m.Name] += dp.Value
				}
			}
		}
	}
	return sums
}

func TestMetricsRecordValues(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer mp.Shutdown(context.Background())

	metrics, err := NewMetrics(mp.Meter("test"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx := context.Background()
	metrics.RecordRunStart(ctx)
	metrics.RecordItems(ctx, "ingest", 5)
	metrics.RecordInflight(ctx, "map_parallel", 1)
	metrics.RecordInflight(ctx, "map_parallel", 1)
	metrics.RecordInflight(ctx, "map_parallel", -1)
	metrics.RecordRunEnd(ctx, "ingest", "ok", time.Millisecond)

	sums := collectSums(t, reader)
	if sums["flow.run.total"] != 1 {
		t.Errorf("expected 1 run, got %d", sums["flow.run.total"])
	}
	if sums["flow.run.active"] != 0 {
		t.Errorf("expected no active run, got %d", sums["flow.run.active"])
	}
	if sums["flow.items.total"] != 5 {
		t.Errorf("expected 5 items, got %d", sums["flow.items.total"])
	}
	if sums["flow.stage.inflight"] != 1 {
		t.Errorf("expected 1 in flight, got %d", sums["flow.stage.inflight"])
	}
}

func TestNewRunContext(t *testing.T) {
	rc := NewRunContext("ingest", "run-1", nil)

	if rc.Pipeline != "ingest" {
		t.Errorf("expected Pipeline 'ingest', got %s", rc.Pipeline)
	}
	if rc.RunID != "run-1" {
		t.Errorf("expected RunID 'run-1', got %s", rc.RunID)
	}
	if rc.StartTime.IsZero() {
		t.Error("expected StartTime to be set")
	}
}

func TestRunContextFromContext(t *testing.T) {
	metrics, _ := NewMetrics(noop.NewMeterProvider().Meter("test"))
	rc := NewRunContext("ingest", "run-1", metrics)
	ctx := WithRunContext(context.Background(), rc)

	retrieved := RunContextFromContext(ctx)
	if retrieved == nil {
		t.Fatal("expected run context from context")
	}
	if retrieved.RunID != rc.RunID {
		t.Errorf("expected RunID %s, got %s", rc.RunID, retrieved.RunID)
	}
	if MetricsFromContext(ctx) != metrics {
		t.Error("expected metrics carried by the run context")
	}
}

func TestRunContextFromContext_NotSet(t *testing.T) {
	if RunContextFromContext(context.Background()) != nil {
		t.Error("expected nil when run context not set")
	}
	if MetricsFromContext(context.Background()) != nil {
		t.Error("expected nil metrics when run context not set")
	}
}

func TestRunContext_Duration(t *testing.T) {
	rc := NewRunContext("ingest", "run-1", nil)
	rc.StartTime = time.Now().Add(-50 * time.Millisecond)

	duration := rc.Duration()
	if duration < 45*time.Millisecond || duration > 200*time.Millisecond {
		t.Errorf("expected duration around 50ms, got %v", duration)
	}
}

func TestRunContext_NilMetrics(t *testing.T) {
	rc := NewRunContext("ingest", "run-1", nil)
	ctx, span := rc.Start(context.Background(), "")
	rc.End(ctx, span, false, 0, nil)
}

func TestRunContext_Span(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	defer tp.Shutdown(context.Background())
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	defer otel.SetTracerProvider(prev)

	rc := NewRunContext("ingest", "run-1", nil)
	ctx, span := rc.Start(context.Background(), SpanPipelineRun)
	rc.End(ctx, span, true, 4, fmt.Errorf("boom"))

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	got := spans[0]
	if got.Name != SpanPipelineRun {
		t.Errorf("expected span name %q, got %q", SpanPipelineRun, got.Name)
	}
	attrs := make(map[string]string)
	for _, kv := range got.Attributes {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	if attrs[AttrRunID] != "run-1" {
		t.Errorf("expected run id attribute, got %q", attrs[AttrRunID])
	}
	if attrs[AttrStatus] != "error" {
		t.Errorf("expected status 'error', got %q", attrs[AttrStatus])
	}
	if attrs[AttrItems] != "4" {
		t.Errorf("expected items '4', got %q", attrs[AttrItems])
	}
	if len(got.Events) == 0 {
		t.Error("expected the error to be recorded as an event")
	}
}

func TestRunContextWithMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer mp.Shutdown(context.Background())
	metrics, _ := NewMetrics(mp.Meter("test"))

	rc := NewRunContext("ingest", "run-1", metrics)
	ctx, span := rc.Start(context.Background(), "")
	rc.End(ctx, span, false, 2, fmt.Errorf("failed"))

	sums := collectSums(t, reader)
	if sums["flow.error.total"] != 1 {
		t.Errorf("expected 1 error, got %d", sums["flow.error.total"])
	}
	if sums["flow.items.total"] != 2 {
		t.Errorf("expected 2 items, got %d", sums["flow.items.total"])
	}
}

func TestTracer(t *testing.T) {
	tracer := Tracer("test-tracer")
	if tracer == nil {
		t.Fatal("expected non-nil tracer")
	}
}

func TestMeter(t *testing.T) {
	meter := Meter("test-meter")
	if meter == nil {
		t.Fatal("expected non-nil meter")
	}
}

func TestStartSpan(t *testing.T) {
	ctx := context.Background()
	ctx, span := StartSpan(ctx, "test-operation")
	defer span.End()

	if span == nil {
		t.Fatal("expected non-nil span")
	}
	if ctx == nil {
		t.Fatal("expected non-nil context")
	}
}

func installRecorder(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})
	return exporter
}

func TestRecordSpanError(t *testing.T) {
	exporter := installRecorder(t)

	_, span := StartSpan(context.Background(), "test-error")
	RecordSpanError(span, fmt.Errorf("test error"))
	RecordSpanError(span, nil)
	span.End()

	got := exporter.GetSpans()[0]
	if len(got.Events) != 1 {
		t.Errorf("expected 1 error event, got %d", len(got.Events))
	}
	if got.Status.Code != codes.Error || got.Status.Description != "test error" {
		t.Errorf("expected error status, got %+v", got.Status)
	}
}

func TestRecordSpanErrorNoSpan(t *testing.T) {
	RecordSpanError(trace.SpanFromContext(context.Background()), fmt.Errorf("no span error"))
}

func TestStageFailed(t *testing.T) {
	exporter := installRecorder(t)
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer mp.Shutdown(context.Background())
	metrics, err := NewMetrics(mp.Meter("test"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx := WithRunContext(context.Background(), NewRunContext("ingest", "run-1", metrics))
	ctx, span := StartSpan(ctx, "run")
	StageFailed(ctx, "map_parallel", fmt.Errorf("boom"))
	span.End()

	events := exporter.GetSpans()[0].Events
	if len(events) != 1 || events[0].Name != EventStageFailed {
		t.Fatalf("expected a %s event, got %+v", EventStageFailed, events)
	}
	if sums := collectSums(t, reader); sums["flow.error.total"] != 1 {
		t.Errorf("expected 1 recorded error, got %d", sums["flow.error.total"])
	}
}

func TestStageFailedWithoutRun(t *testing.T) {
	StageFailed(context.Background(), "parallelize", fmt.Errorf("boom"))
}

func TestSampler(t *testing.T) {
	tests := []struct {
		name string
		rate float64
		want string
	}{
		{"always sample", 1.0, "AlwaysOnSampler"},
		{"never sample", 0.0, "AlwaysOffSampler"},
		{"ratio based", 0.5, "TraceIDRatioBased{0.5}"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := sampler(tc.rate).Description(); got != tc.want {
				t.Errorf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestInitTracer(t *testing.T) {
	cfg := &TracerConfig{
		ServiceName:    "test-service",
		ServiceVersion: "1.0.0",
		Environment:    "test",
		Endpoint:       "localhost:4318",
		Insecure:       true,
		SampleRate:     1.0,
	}

	prev := otel.GetTracerProvider()
	defer otel.SetTracerProvider(prev)

	tp, err := InitTracer(context.Background(), cfg)
	if err != nil {
		t.Fatalf("InitTracer failed: %v", err)
	}
	defer tp.Shutdown(context.Background())
}

func TestInitMeter(t *testing.T) {
	cfg := &MeterConfig{
		ServiceName:    "test-service",
		ServiceVersion: "1.0.0",
		Environment:    "test",
		Endpoint:       "localhost:4318",
		Insecure:       true,
		Interval:       15 * time.Second,
	}

	prev := otel.GetMeterProvider()
	defer otel.SetMeterProvider(prev)

	mp, err := InitMeter(context.Background(), cfg)
	if err != nil {
		t.Fatalf("InitMeter failed: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = mp.Shutdown(ctx)
}

func TestNewResource(t *testing.T) {
	res, err := newResource("svc", "1.2.3", "test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	found := false
	for _, kv := range res.Attributes() {
		if string(kv.Key) == AttrServiceName && kv.Value.AsString() == "svc" {
			found = true
		}
	}
	if !found {
		t.Error("expected service.name attribute on resource")
	}
}
