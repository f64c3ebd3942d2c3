// Package observability provides OpenTelemetry tracing and metrics for
// pipeline runs.
//
// Tracing:
//
//	cfg := observability.DefaultTracerConfig("my-service")
//	tp, err := observability.InitTracer(ctx, &cfg)
//	defer tp.Shutdown(ctx)
//
// Metrics:
//
//	cfg := observability.DefaultMeterConfig("my-service")
//	mp, err := observability.InitMeter(ctx, &cfg)
//	defer mp.Shutdown(ctx)
//
//	metrics, err := observability.NewMetrics(observability.Meter("my-service"))
//	err = flow.Run(ctx, p, sink, flow.WithMetrics(metrics), flow.WithTracing("ingest"))
//
// A run stores its RunContext in the context handed to every stage, so
// parallel stages record their in-flight gauges through MetricsFromContext
// and report the failures they originate with StageFailed.
package observability
