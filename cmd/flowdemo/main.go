// Command flowdemo runs a small ingest pipeline end to end: a paginated
// source, ordered enrichment, per-lane scoring and batched delivery.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kbukum/flowkit/config"
	"github.com/kbukum/flowkit/flow"
	"github.com/kbukum/flowkit/logger"
	"github.com/kbukum/flowkit/observability"
	"github.com/kbukum/flowkit/validation"
	"github.com/kbukum/flowkit/version"
)

const serviceName = "flowdemo"

// DemoConfig is the configuration file layout of flowdemo.
type DemoConfig struct {
	config.ServiceConfig `yaml:",inline" mapstructure:",squash"`

	Flow   flow.Config  `yaml:"flow" mapstructure:"flow"`
	Source SourceConfig `yaml:"source" mapstructure:"source"`
}

// ApplyDefaults applies defaults to every section.
func (c *DemoConfig) ApplyDefaults() {
	c.ServiceConfig.ApplyDefaults()
	c.Flow.ApplyDefaults()
	c.Source.ApplyDefaults()
}

// Validate validates every section.
func (c *DemoConfig) Validate() error {
	if err := c.ServiceConfig.Validate(); err != nil {
		return err
	}
	if err := c.Flow.Validate(); err != nil {
		return err
	}
	return c.Source.Validate()
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "flowdemo: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configFile = flag.String("config", "", "path to config.yml")
		pages      = flag.Int("pages", 0, "number of pages to fetch (overrides config)")
		runID      = flag.String("run-id", "", "run id to use instead of a generated one")
		push       = flag.Bool("push", false, "feed the records through a pushable source")
	)
	flag.Parse()

	opts := []config.LoaderOption{config.WithEnvPrefix("FLOWDEMO")}
	if *configFile != "" {
		opts = append(opts, config.WithConfigFile(*configFile))
	}
	cfg, err := config.Load[DemoConfig](serviceName, opts...)
	if err != nil {
		return err
	}
	if *pages > 0 {
		cfg.Source.Pages = *pages
	}
	if err := validation.New().
		Range("pages", cfg.Source.Pages, 1, 10000).
		OptionalUUID("run_id", *runID).
		Struct(cfg.Source).
		Err(); err != nil {
		return err
	}

	logger.Init(cfg.Logging)
	log := logger.WithComponent("flowdemo")
	logger.Register("flow", logger.WithComponent("flow"))
	log.Info("starting", version.GetVersionInfo().LogFields())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runOpts := []flow.RunOption{flow.WithName("records")}
	if *runID != "" {
		runOpts = append(runOpts, flow.WithRunID(*runID))
	}

	if cfg.Telemetry.Enabled() {
		shutdown, metrics, err := initTelemetry(ctx, &cfg.ServiceConfig)
		if err != nil {
			return err
		}
		defer shutdown()
		runOpts = append(runOpts, flow.WithMetrics(metrics), flow.WithTracing(observability.SpanPipelineRun))
	}

	var records *flow.Pipeline[Record]
	if *push {
		records = pushRecords(ctx, cfg, log)
	} else {
		records = paginatedRecords(cfg.Source)
	}

	var stats summary
	start := time.Now()
	err = flow.Run(ctx, buildPipeline(records, cfg), stats.add(log), runOpts...)
	if err != nil {
		return err
	}
	log.Info("done", logger.MergeWithDuration(logger.Fields(
		"batches", stats.batches,
		"records", stats.records,
		"flagged", stats.flagged,
	), time.Since(start)))
	return nil
}

// initTelemetry installs the OTLP tracer and meter providers and returns a
// function flushing both.
func initTelemetry(ctx context.Context, svc *config.ServiceConfig) (func(), *observability.Metrics, error) {
	tcfg := svc.Telemetry.TracerConfig(svc)
	tp, err := observability.InitTracer(ctx, &tcfg)
	if err != nil {
		return nil, nil, err
	}
	mcfg := svc.Telemetry.MeterConfig(svc)
	mp, err := observability.InitMeter(ctx, &mcfg)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, nil, err
	}
	metrics, err := observability.NewMetrics(observability.Meter(serviceName))
	if err != nil {
		_ = tp.Shutdown(ctx)
		_ = mp.Shutdown(ctx)
		return nil, nil, err
	}

	shutdown := func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(sctx); err != nil {
			logger.Warn("tracer shutdown failed", logger.Fields(logger.FieldError, err.Error()))
		}
		if err := mp.Shutdown(sctx); err != nil {
			logger.Warn("meter shutdown failed", logger.Fields(logger.FieldError, err.Error()))
		}
	}
	return shutdown, metrics, nil
}
