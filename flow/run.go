package flow

import (
	"context"

	"github.com/google/uuid"

	"github.com/kbukum/flowkit/errors"
	"github.com/kbukum/flowkit/logger"
	"github.com/kbukum/flowkit/observability"
)

// RunOption configures a single run of a pipeline.
type RunOption func(*runOptions)

type runOptions struct {
	log      *logger.Logger
	metrics  *observability.Metrics
	spanName string
	name     string
	runID    string
}

// WithLogger sets the logger used for run start, finish and failure entries.
// The default is the "flow" logger from the logger registry.
func WithLogger(l *logger.Logger) RunOption {
	return func(o *runOptions) { o.log = l }
}

// WithMetrics records run and stage metrics on m.
func WithMetrics(m *observability.Metrics) RunOption {
	return func(o *runOptions) { o.metrics = m }
}

// WithTracing wraps the run in a span with the given name.
func WithTracing(spanName string) RunOption {
	return func(o *runOptions) { o.spanName = spanName }
}

// WithName overrides the pipeline name reported in logs, spans and metrics.
func WithName(name string) RunOption {
	return func(o *runOptions) { o.name = name }
}

// WithRunID sets the run id instead of generating one.
func WithRunID(id string) RunOption {
	return func(o *runOptions) { o.runID = id }
}

func newRunOptions(name string, opts []RunOption) *runOptions {
	o := &runOptions{name: name}
	for _, opt := range opts {
		opt(o)
	}
	if o.log == nil {
		o.log = logger.Get("flow")
	}
	if o.runID == "" {
		o.runID = uuid.NewString()
	}
	return o
}

// Runnable is a pipeline bound to a sink, ready to be executed.
type Runnable struct {
	run func(ctx context.Context) error
}

// Run executes the pipeline until completion, failure or context
// cancellation.
func (r *Runnable) Run(ctx context.Context) error {
	return r.run(ctx)
}

// Drain binds p to sink. Nothing runs until Run is called, and the result
// can be run only once.
func Drain[T any](p *Pipeline[T], sink func(context.Context, T) error, opts ...RunOption) *Runnable {
	return &Runnable{
		run: func(ctx context.Context) error {
			return Run(ctx, p, sink, opts...)
		},
	}
}

// Collect runs p and returns every value it produces. On failure the values
// gathered so far are dropped and the first error is returned.
func Collect[T any](ctx context.Context, p *Pipeline[T], opts ...RunOption) ([]T, error) {
	out := []T{}
	err := Run(ctx, p, func(_ context.Context, v T) error {
		out = append(out, v)
		return nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ForEach pulls all values and calls fn for each.
func ForEach[T any](ctx context.Context, p *Pipeline[T], fn func(context.Context, T) error) error {
	return Drain(p, fn).Run(ctx)
}

// Run pulls p to completion, handing every value to sink. A nil sink
// discards the values. Run returns after every goroutine started by the
// pipeline has finished: on the first error the run context is cancelled,
// the remaining stages are closed and the error is returned as produced.
func Run[T any](ctx context.Context, p *Pipeline[T], sink func(context.Context, T) error, opts ...RunOption) (err error) {
	o := newRunOptions(p.name, opts)
	log := o.log.WithFields(logger.Fields(
		logger.FieldRunID, o.runID,
		logger.FieldPipeline, o.name,
	))

	if !p.chain.claim() {
		err := errors.PipelineReused(o.name)
		log.Error("pipeline run rejected", logger.Fields(logger.FieldError, err.Error()))
		return err
	}

	rc := observability.NewRunContext(o.name, o.runID, o.metrics)
	ctx = observability.WithRunContext(ctx, rc)
	ctx, span := rc.Start(ctx, o.spanName)
	log = log.WithContext(ctx)
	log.Debug("pipeline run started")

	var count int64
	defer func() {
		rc.End(ctx, span, o.spanName != "", count, err)
		fields := logger.MergeWithDuration(logger.Fields(logger.FieldCount, count), rc.Duration())
		if err != nil {
			log.Error("pipeline run failed", logger.MergeWithError(fields, err))
			return
		}
		log.Debug("pipeline run finished", fields)
	}()

	rctx, cancel := context.WithCancel(ctx)
	iter := p.create(rctx)
	defer func() {
		cancel()
		if cerr := iter.Close(); err == nil {
			err = cerr
		}
	}()

	for {
		v, ok, err := iter.Next(rctx)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		count++
		if sink == nil {
			continue
		}
		if err := sink(rctx, v); err != nil {
			return err
		}
	}
}
