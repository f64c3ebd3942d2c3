package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// RunContext holds observability context for one pipeline run.
type RunContext struct {
	Pipeline  string
	RunID     string
	StartTime time.Time
	Metrics   *Metrics
}

// NewRunContext creates a new run context.
// If metrics is nil, metric recording is silently skipped.
func NewRunContext(pipeline, runID string, metrics *Metrics) *RunContext {
	return &RunContext{
		Pipeline:  pipeline,
		RunID:     runID,
		StartTime: time.Now(),
		Metrics:   metrics,
	}
}

type runContextKey struct{}

// WithRunContext stores a RunContext in the context.
func WithRunContext(ctx context.Context, rc *RunContext) context.Context {
	return context.WithValue(ctx, runContextKey{}, rc)
}

// RunContextFromContext retrieves the RunContext from context, or nil.
func RunContextFromContext(ctx context.Context) *RunContext {
	if rc, ok := ctx.Value(runContextKey{}).(*RunContext); ok {
		return rc
	}
	return nil
}

// MetricsFromContext returns the metrics of the run carried by ctx, or nil.
func MetricsFromContext(ctx context.Context) *Metrics {
	if rc := RunContextFromContext(ctx); rc != nil {
		return rc.Metrics
	}
	return nil
}

// Start records the run start metric. When spanName is not empty a span is
// started as well and returned with its context; otherwise the span is a
// non-recording one taken from ctx.
func (rc *RunContext) Start(ctx context.Context, spanName string) (context.Context, trace.Span) {
	span := trace.SpanFromContext(ctx)
	if spanName != "" {
		ctx, span = StartSpan(ctx, spanName)
		span.SetAttributes(
			attribute.String(AttrPipeline, rc.Pipeline),
			attribute.String(AttrRunID, rc.RunID),
		)
	}
	if rc.Metrics != nil {
		rc.Metrics.RecordRunStart(ctx)
	}
	return ctx, span
}

// End records the outcome of the run on the span and in the metrics. The
// span is ended only when owned is true.
func (rc *RunContext) End(ctx context.Context, span trace.Span, owned bool, items int64, err error) {
	duration := time.Since(rc.StartTime)
	status := "ok"
	if err != nil {
		status = "error"
	}

	if owned {
		RecordSpanError(span, err)
		span.SetAttributes(
			attribute.String(AttrStatus, status),
			attribute.Int64(AttrItems, items),
			attribute.Int64(AttrDurationMs, duration.Milliseconds()),
		)
		span.End()
	}

	if rc.Metrics != nil {
		rc.Metrics.RecordItems(ctx, rc.Pipeline, items)
		rc.Metrics.RecordRunEnd(ctx, rc.Pipeline, status, duration)
		if err != nil {
			rc.Metrics.RecordError(ctx, "run", rc.Pipeline)
		}
	}
}

// Duration returns the elapsed time since the run started.
func (rc *RunContext) Duration() time.Duration {
	return time.Since(rc.StartTime)
}
