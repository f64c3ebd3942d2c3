package flow

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// fanIn runs a fixed set of producers under one errgroup and hands their
// values to Next as they arrive. The channel is unbuffered, so a producer
// stays blocked on its value until the consumer asks for it.
type fanIn[T any] struct {
	ctx       context.Context
	cancel    context.CancelFunc
	producers []func(ctx context.Context, send func(T) error) error
	release   func() error

	out      chan T
	gctx     context.Context
	err      error // set before out is closed
	finished chan struct{}
	failed   atomic.Bool

	startOnce sync.Once
	closeOnce sync.Once
}

func newFanIn[T any](
	ctx context.Context,
	cancel context.CancelFunc,
	producers []func(ctx context.Context, send func(T) error) error,
	release func() error,
) *fanIn[T] {
	return &fanIn[T]{
		ctx:       ctx,
		cancel:    cancel,
		producers: producers,
		release:   release,
		out:       make(chan T),
	}
}

func (f *fanIn[T]) start() {
	g, gctx := errgroup.WithContext(f.ctx)
	f.gctx = gctx
	f.finished = make(chan struct{})
	for _, produce := range f.producers {
		g.Go(func() error {
			err := protect(func() error {
				return produce(gctx, func(v T) error {
					select {
					case f.out <- v:
						return nil
					case <-gctx.Done():
						return gctx.Err()
					}
				})
			})
			if err != nil {
				f.failed.Store(true)
			}
			return err
		})
	}
	go func() {
		defer close(f.finished)
		f.err = g.Wait()
		close(f.out)
	}()
}

// stopped reports whether a producer failed or the run was cancelled. The
// group context alone is not enough: Wait cancels it on a clean finish too.
func (f *fanIn[T]) stopped() bool {
	return f.failed.Load() || f.ctx.Err() != nil
}

func (f *fanIn[T]) Next(ctx context.Context) (T, bool, error) {
	var zero T
	f.startOnce.Do(f.start)
	select {
	case v, open := <-f.out:
		return f.deliver(v, open)
	case <-f.gctx.Done():
		if f.stopped() {
			return zero, false, f.settle()
		}
		// every producer returned cleanly; out is about to close
		select {
		case v, open := <-f.out:
			return f.deliver(v, open)
		case <-ctx.Done():
			return zero, false, ctx.Err()
		}
	case <-ctx.Done():
		return zero, false, ctx.Err()
	}
}

func (f *fanIn[T]) deliver(v T, open bool) (T, bool, error) {
	var zero T
	if !open {
		return zero, false, f.err
	}
	if f.stopped() {
		return zero, false, f.settle()
	}
	return v, true, nil
}

// settle waits for every producer to stop after a failure and returns the
// error that stopped them.
func (f *fanIn[T]) settle() error {
	for range f.out {
	}
	<-f.finished
	if f.err != nil {
		return f.err
	}
	return f.ctx.Err()
}

func (f *fanIn[T]) Close() error {
	var err error
	f.closeOnce.Do(func() {
		f.cancel()
		if f.finished != nil {
			for range f.out {
			}
			<-f.finished
		}
		if f.release != nil {
			err = f.release()
		}
	})
	return err
}

// Merge runs the pipelines concurrently and yields values in the order they
// are produced. The first failure of any input fails the run.
func Merge[T any](pipelines ...*Pipeline[T]) *Pipeline[T] {
	parents := make([]*chain, len(pipelines))
	for i, p := range pipelines {
		parents[i] = p.chain
	}
	return &Pipeline[T]{
		name:  "merge",
		chain: &chain{parents: parents},
		create: func(ctx context.Context) Iterator[T] {
			mctx, cancel := context.WithCancel(ctx)
			iters := make([]Iterator[T], len(pipelines))
			producers := make([]func(context.Context, func(T) error) error, len(pipelines))
			for i, p := range pipelines {
				iter := p.create(mctx)
				iters[i] = iter
				producers[i] = func(ctx context.Context, send func(T) error) error {
					for {
						v, ok, err := iter.Next(ctx)
						if err != nil || !ok {
							return err
						}
						if err := send(v); err != nil {
							return err
						}
					}
				}
			}
			return newFanIn(mctx, cancel, producers, func() error {
				var firstErr error
				for _, iter := range iters {
					if err := iter.Close(); err != nil && firstErr == nil {
						firstErr = err
					}
				}
				return firstErr
			})
		},
	}
}
