package flow

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	flowerrors "github.com/kbukum/flowkit/errors"
	"github.com/kbukum/flowkit/logger"
	"github.com/kbukum/flowkit/observability"
)

func TestPipelineSingleUse(t *testing.T) {
	ctx := testContext(t)
	src := Of(1, 2, 3)
	doubled := Map(src, func(_ context.Context, v int) (int, error) { return v * 2, nil })

	if _, err := Collect(ctx, doubled); err != nil {
		t.Fatalf("first run: %v", err)
	}

	for name, run := range map[string]func() error{
		"same pipeline": func() error { _, err := Collect(ctx, doubled); return err },
		"source":        func() error { _, err := Collect(ctx, src); return err },
		"new branch":    func() error { return Run(ctx, src.Filter(func(context.Context, int) (bool, error) { return true, nil }), nil) },
		"iter":          func() error { _, err := doubled.Iter(ctx); return err },
	} {
		t.Run(name, func(t *testing.T) {
			if err := run(); !flowerrors.IsCode(err, flowerrors.ErrCodePipelineReused) {
				t.Fatalf("expected PIPELINE_REUSED, got %v", err)
			}
		})
	}
}

func TestPipelineReusedAfterFailure(t *testing.T) {
	boom := errors.New("boom")
	p := Map(Of(1), func(context.Context, int) (int, error) { return 0, boom })
	if _, err := Collect(testContext(t), p); err != boom {
		t.Fatalf("expected boom, got %v", err)
	}
	if _, err := Collect(testContext(t), p); !flowerrors.IsMisuse(err) {
		t.Fatalf("expected a misuse error, got %v", err)
	}
}

func TestConcatClaimsInputs(t *testing.T) {
	a, b := Of(1), Of(2)
	if _, err := Collect(testContext(t), Concat(a, b)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := Collect(testContext(t), b); !flowerrors.IsCode(err, flowerrors.ErrCodePipelineReused) {
		t.Fatalf("expected concatenated input to be claimed, got %v", err)
	}
}

func TestRunSink(t *testing.T) {
	var got []int
	err := Run(testContext(t), Of(1, 2, 3), func(_ context.Context, v int) error {
		got = append(got, v)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !sliceEqual(got, []int{1, 2, 3}) {
		t.Errorf("expected [1 2 3], got %v", got)
	}
}

func TestRunNilSink(t *testing.T) {
	var observed []int
	p := Of(1, 2, 3).Observe(func(_ context.Context, v int) error {
		observed = append(observed, v)
		return nil
	})
	if err := Run(testContext(t), p, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !sliceEqual(observed, []int{1, 2, 3}) {
		t.Errorf("expected every value to be pulled, got %v", observed)
	}
}

func TestRunSinkError(t *testing.T) {
	boom := errors.New("sink failed")
	reads := 0
	var delivered []int
	err := Run(testContext(t), countingSource(10, &reads), func(_ context.Context, v int) error {
		delivered = append(delivered, v)
		if v == 2 {
			return boom
		}
		return nil
	})
	if err != boom {
		t.Fatalf("expected sink error, got %v", err)
	}
	if !sliceEqual(delivered, []int{1, 2}) {
		t.Errorf("expected values up to the failure, got %v", delivered)
	}
	if reads != 2 {
		t.Errorf("expected no reads after the failure, got %d", reads)
	}
}

func TestDrainAndForEach(t *testing.T) {
	sum := 0
	r := Drain(Of(1, 2, 3), func(_ context.Context, v int) error {
		sum += v
		return nil
	})
	if sum != 0 {
		t.Fatal("expected Drain to be lazy")
	}
	if err := r.Run(testContext(t)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sum != 6 {
		t.Errorf("expected sum 6, got %d", sum)
	}

	count := 0
	if err := ForEach(testContext(t), Of("a", "b"), func(context.Context, string) error {
		count++
		return nil
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 2 {
		t.Errorf("expected 2 values, got %d", count)
	}
}

func TestIter(t *testing.T) {
	ctx := testContext(t)
	iter, err := Of(1, 2).Iter(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer iter.Close()

	var got []int
	for {
		v, ok, err := iter.Next(ctx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !ok {
			break
		}
		got = append(got, v)
	}
	if !sliceEqual(got, []int{1, 2}) {
		t.Errorf("expected [1 2], got %v", got)
	}
}

func TestRunContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	src := NewSource(Source[int]{
		Read: func(ctx context.Context, emit *Emitter[int]) error {
			cancel()
			<-ctx.Done()
			return ctx.Err()
		},
	})
	if _, err := Collect(ctx, src); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestRunLogging(t *testing.T) {
	var buf bytes.Buffer
	log := logger.New(&logger.Config{Level: "debug", Format: "json", Writer: &buf}, "test")

	err := Run(testContext(t), Of(1, 2, 3).Named("numbers"), nil,
		WithLogger(log), WithRunID("run-42"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected start and finish entries, got %q", buf.String())
	}
	var finished map[string]interface{}
	if err := json.Unmarshal([]byte(lines[1]), &finished); err != nil {
		t.Fatalf("invalid log line %q: %v", lines[1], err)
	}
	if finished["message"] != "pipeline run finished" {
		t.Errorf("unexpected message %v", finished["message"])
	}
	if finished[logger.FieldRunID] != "run-42" {
		t.Errorf("expected run id run-42, got %v", finished[logger.FieldRunID])
	}
	if finished[logger.FieldPipeline] != "numbers" {
		t.Errorf("expected pipeline numbers, got %v", finished[logger.FieldPipeline])
	}
	if finished[logger.FieldCount] != float64(3) {
		t.Errorf("expected count 3, got %v", finished[logger.FieldCount])
	}
}

func TestRunLogsFailure(t *testing.T) {
	var buf bytes.Buffer
	log := logger.New(&logger.Config{Level: "error", Format: "json", Writer: &buf}, "test")
	boom := errors.New("boom")

	_ = Run(testContext(t), Map(Of(1), func(context.Context, int) (int, error) { return 0, boom }), nil,
		WithLogger(log), WithName("failing"))

	var entry map[string]interface{}
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("expected one error entry, got %q: %v", buf.String(), err)
	}
	if entry[logger.FieldError] != "boom" {
		t.Errorf("expected error field 'boom', got %v", entry[logger.FieldError])
	}
	if entry[logger.FieldPipeline] != "failing" {
		t.Errorf("expected pipeline 'failing', got %v", entry[logger.FieldPipeline])
	}
}

func TestRunTracing(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	defer tp.Shutdown(context.Background())
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	defer otel.SetTracerProvider(prev)

	err := Run(testContext(t), Of(1, 2), nil, WithTracing("ingest"), WithLogger(logger.Nop()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Name != "ingest" {
		t.Errorf("expected span 'ingest', got %q", spans[0].Name)
	}
	var items int64 = -1
	for _, kv := range spans[0].Attributes {
		if string(kv.Key) == observability.AttrItems {
			items = kv.Value.AsInt64()
		}
	}
	if items != 2 {
		t.Errorf("expected items attribute 2, got %d", items)
	}
}

func TestRunTracingStageFailure(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	defer tp.Shutdown(context.Background())
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	defer otel.SetTracerProvider(prev)

	boom := errors.New("boom")
	p := MapParallel(Of(1, 2, 3), 2, func(_ context.Context, v int) (int, error) {
		if v == 2 {
			return 0, boom
		}
		return v, nil
	})
	if err := Run(testContext(t), p, nil, WithTracing("ingest"), WithLogger(logger.Nop())); err != boom {
		t.Fatalf("expected boom, got %v", err)
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	var failed bool
	for _, ev := range spans[0].Events {
		if ev.Name == observability.EventStageFailed {
			failed = true
		}
	}
	if !failed {
		t.Errorf("expected a %s event, got %+v", observability.EventStageFailed, spans[0].Events)
	}
	if spans[0].Status.Code != codes.Error {
		t.Errorf("expected error status, got %+v", spans[0].Status)
	}
}

func TestRunMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer mp.Shutdown(context.Background())
	metrics, err := observability.NewMetrics(mp.Meter("test"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	p := MapParallel(Of(1, 2, 3, 4), 2, func(_ context.Context, v int) (int, error) { return v, nil })
	lanes := Parallelize(p, 2, func(lane *Pipeline[int]) *Pipeline[int] { return lane })
	if err := Run(testContext(t), lanes, nil, WithMetrics(metrics), WithLogger(logger.Nop())); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	sums := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if data, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range data.DataPoints {
					sums[m.Name] += dp.Value
				}
			}
		}
	}
	if sums["flow.run.total"] != 1 {
		t.Errorf("expected 1 run, got %d", sums["flow.run.total"])
	}
	if sums["flow.items.total"] != 4 {
		t.Errorf("expected 4 items, got %d", sums["flow.items.total"])
	}
	if sums["flow.lane.items"] != 4 {
		t.Errorf("expected 4 lane items, got %d", sums["flow.lane.items"])
	}
	if sums["flow.stage.inflight"] != 0 {
		t.Errorf("expected in-flight gauge back at 0, got %d", sums["flow.stage.inflight"])
	}
}

func TestConfig(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected defaults to validate, got %v", err)
	}
	if cfg.Concurrency != 4 || cfg.Lanes != 2 || cfg.BatchSize != 100 {
		t.Errorf("unexpected defaults %+v", cfg)
	}

	bad := Config{Concurrency: -1, Lanes: 2, BatchSize: 1}
	err := bad.Validate()
	if !flowerrors.IsCode(err, flowerrors.ErrCodeInvalidInput) {
		t.Fatalf("expected INVALID_INPUT, got %v", err)
	}
	if !strings.Contains(err.Error(), "concurrency") {
		t.Errorf("expected the field to be named, got %v", err)
	}
}
