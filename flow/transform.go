package flow

import (
	"context"

	"github.com/kbukum/flowkit/errors"
)

// Transform holds the hooks of a custom transform node.
type Transform[I, O any] struct {
	// Init runs once before the first upstream value is requested. Optional.
	Init func(ctx context.Context) error
	// OnValue runs once per upstream value and may emit any number of values.
	// Calling emit.Close stops further upstream reads; emissions scheduled
	// with emit.Go before the close still flow downstream.
	OnValue func(ctx context.Context, v I, emit *Emitter[O]) error
	// Flush runs once when the upstream is exhausted. Optional. It is not
	// called when the node closed itself.
	Flush func(ctx context.Context, emit *Emitter[O]) error
}

// Through appends a custom transform node to p.
func Through[I, O any](p *Pipeline[I], t Transform[I, O]) *Pipeline[O] {
	return throughNamed(p, "transform", func(context.Context) Transform[I, O] { return t })
}

// ThroughFunc appends a transform node whose hooks are built when the run
// starts, so per-run state can live in the closure.
func ThroughFunc[I, O any](p *Pipeline[I], build func(ctx context.Context) Transform[I, O]) *Pipeline[O] {
	return throughNamed(p, "transform", build)
}

func throughNamed[I, O any](p *Pipeline[I], name string, build func(ctx context.Context) Transform[I, O]) *Pipeline[O] {
	return derive(p, func(ctx context.Context) Iterator[O] {
		up := p.create(ctx)
		var t Transform[I, O]
		if err := protect(func() error { t = build(ctx); return nil }); err != nil {
			return &closingErrIter[O]{err: err, up: up.Close}
		}
		if t.OnValue == nil {
			return &closingErrIter[O]{err: errors.MissingField("Transform.OnValue"), up: up.Close}
		}
		return newNode(ctx, name, t.Init, transformStep(up, t), up.Close)
	})
}

func transformStep[I, O any](up Iterator[I], t Transform[I, O]) func(context.Context, *Emitter[O]) error {
	return func(ctx context.Context, emit *Emitter[O]) error {
		v, ok, err := up.Next(ctx)
		if err != nil {
			return err
		}
		if !ok {
			if t.Flush != nil {
				if err := t.Flush(ctx, emit); err != nil {
					return err
				}
			}
			emit.Close()
			return nil
		}
		return t.OnValue(ctx, v, emit)
	}
}

// closingErrIter fails on Next and still closes the upstream it replaced.
type closingErrIter[T any] struct {
	err error
	up  func() error
}

func (it *closingErrIter[T]) Next(context.Context) (T, bool, error) {
	var zero T
	return zero, false, it.err
}

func (it *closingErrIter[T]) Close() error { return it.up() }
