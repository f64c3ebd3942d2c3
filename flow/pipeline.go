package flow

import (
	"context"
	"sync/atomic"

	"github.com/kbukum/flowkit/errors"
)

// Pipeline represents a lazy, pull-based data pipeline.
// No work happens until values are pulled via Collect, Run, Drain, or Iter.
//
// Every operator returns a new *Pipeline that shares the chain of the one it
// was built from. A chain runs once: running any pipeline of the chain a
// second time, or running two pipelines built from the same source, fails
// with errors.ErrCodePipelineReused.
type Pipeline[T any] struct {
	name   string
	create func(ctx context.Context) Iterator[T]
	chain  *chain
}

type chain struct {
	claimed atomic.Bool
	parents []*chain
}

func (c *chain) claim() bool {
	if !c.claimed.CompareAndSwap(false, true) {
		return false
	}
	for _, p := range c.parents {
		if !p.claim() {
			return false
		}
	}
	return true
}

func newPipeline[T any](name string, create func(ctx context.Context) Iterator[T]) *Pipeline[T] {
	return &Pipeline[T]{name: name, create: create, chain: &chain{}}
}

// derive builds a pipeline on the same chain as p.
func derive[I, O any](p *Pipeline[I], create func(ctx context.Context) Iterator[O]) *Pipeline[O] {
	return &Pipeline[O]{name: p.name, create: create, chain: p.chain}
}

// Name returns the name used in logs, spans and misuse errors.
func (p *Pipeline[T]) Name() string { return p.name }

// Named returns a pipeline on the same chain carrying name.
func (p *Pipeline[T]) Named(name string) *Pipeline[T] {
	return &Pipeline[T]{name: name, create: p.create, chain: p.chain}
}

// Iter claims the chain and returns its raw Iterator. The caller must Close it.
func (p *Pipeline[T]) Iter(ctx context.Context) (Iterator[T], error) {
	if !p.chain.claim() {
		return nil, errors.PipelineReused(p.name)
	}
	return p.create(ctx), nil
}

// Filter is the method form of Filter.
func (p *Pipeline[T]) Filter(pred func(context.Context, T) (bool, error)) *Pipeline[T] {
	return Filter(p, pred)
}

// Observe is the method form of Observe.
func (p *Pipeline[T]) Observe(fn func(context.Context, T) error) *Pipeline[T] {
	return Observe(p, fn)
}

// While is the method form of While.
func (p *Pipeline[T]) While(pred func(context.Context, T) (bool, error)) *Pipeline[T] {
	return While(p, pred)
}

// MapParallel is the method form of MapParallel for type-preserving functions.
func (p *Pipeline[T]) MapParallel(n int, fn func(context.Context, T) (T, error)) *Pipeline[T] {
	return MapParallel(p, n, fn)
}
