package flow

import (
	"context"
)

// Map transforms each value using fn.
func Map[I, O any](p *Pipeline[I], fn func(context.Context, I) (O, error)) *Pipeline[O] {
	return throughNamed(p, "map", func(context.Context) Transform[I, O] {
		return Transform[I, O]{
			OnValue: func(ctx context.Context, v I, emit *Emitter[O]) error {
				out, err := fn(ctx, v)
				if err != nil {
					return err
				}
				return emit.Emit(out)
			},
		}
	})
}

// Filter keeps only values that satisfy the predicate.
func Filter[T any](p *Pipeline[T], pred func(context.Context, T) (bool, error)) *Pipeline[T] {
	return throughNamed(p, "filter", func(context.Context) Transform[T, T] {
		return Transform[T, T]{
			OnValue: func(ctx context.Context, v T, emit *Emitter[T]) error {
				keep, err := pred(ctx, v)
				if err != nil || !keep {
					return err
				}
				return emit.Emit(v)
			},
		}
	})
}

// Observe calls fn as a side-effect for each value, then passes the value
// through unchanged.
func Observe[T any](p *Pipeline[T], fn func(context.Context, T) error) *Pipeline[T] {
	return throughNamed(p, "observe", func(context.Context) Transform[T, T] {
		return Transform[T, T]{
			OnValue: func(ctx context.Context, v T, emit *Emitter[T]) error {
				if err := fn(ctx, v); err != nil {
					return err
				}
				return emit.Emit(v)
			},
		}
	})
}

// Batch groups values into slices of up to size values. The last group may
// be shorter. A size below 1 is treated as 1.
func Batch[T any](p *Pipeline[T], size int) *Pipeline[[]T] {
	if size < 1 {
		size = 1
	}
	return throughNamed(p, "batch", func(context.Context) Transform[T, []T] {
		var group []T
		return Transform[T, []T]{
			OnValue: func(_ context.Context, v T, emit *Emitter[[]T]) error {
				if group == nil {
					group = make([]T, 0, size)
				}
				group = append(group, v)
				if len(group) < size {
					return nil
				}
				full := group
				group = nil
				return emit.Emit(full)
			},
			Flush: func(_ context.Context, emit *Emitter[[]T]) error {
				if len(group) == 0 {
					return nil
				}
				rest := group
				group = nil
				return emit.Emit(rest)
			},
		}
	})
}

// While passes values through until pred first reports false. The failing
// value is dropped and the stage closes, so nothing more is read upstream.
func While[T any](p *Pipeline[T], pred func(context.Context, T) (bool, error)) *Pipeline[T] {
	return throughNamed(p, "while", func(context.Context) Transform[T, T] {
		return Transform[T, T]{
			OnValue: func(ctx context.Context, v T, emit *Emitter[T]) error {
				ok, err := pred(ctx, v)
				if err != nil {
					return err
				}
				if !ok {
					emit.Close()
					return nil
				}
				return emit.Emit(v)
			},
		}
	})
}

// FlatMap transforms each value into an iterator and emits everything it
// yields before the next upstream value is read.
func FlatMap[I, O any](p *Pipeline[I], fn func(context.Context, I) (Iterator[O], error)) *Pipeline[O] {
	return throughNamed(p, "flatmap", func(context.Context) Transform[I, O] {
		return Transform[I, O]{
			OnValue: func(ctx context.Context, v I, emit *Emitter[O]) (err error) {
				inner, err := fn(ctx, v)
				if err != nil {
					return err
				}
				defer func() {
					if cerr := inner.Close(); err == nil {
						err = cerr
					}
				}()
				for {
					out, ok, err := inner.Next(ctx)
					if err != nil || !ok {
						return err
					}
					if err := emit.Emit(out); err != nil {
						return err
					}
				}
			},
		}
	})
}

// Reduce accumulates all values into a single result.
// The pipeline yields exactly one value: the final accumulator.
func Reduce[T, R any](p *Pipeline[T], init R, fn func(R, T) R) *Pipeline[R] {
	return throughNamed(p, "reduce", func(context.Context) Transform[T, R] {
		acc := init
		return Transform[T, R]{
			OnValue: func(_ context.Context, v T, _ *Emitter[R]) error {
				acc = fn(acc, v)
				return nil
			},
			Flush: func(_ context.Context, emit *Emitter[R]) error {
				return emit.Emit(acc)
			},
		}
	})
}

// Concat joins multiple pipelines sequentially.
// All values from the first pipeline are yielded before the second, etc.
func Concat[T any](pipelines ...*Pipeline[T]) *Pipeline[T] {
	parents := make([]*chain, len(pipelines))
	for i, p := range pipelines {
		parents[i] = p.chain
	}
	return &Pipeline[T]{
		name:  "concat",
		chain: &chain{parents: parents},
		create: func(ctx context.Context) Iterator[T] {
			iters := make([]Iterator[T], len(pipelines))
			for i, p := range pipelines {
				iters[i] = p.create(ctx)
			}
			return &concatIter[T]{iters: iters}
		},
	}
}

type concatIter[T any] struct {
	iters []Iterator[T]
	index int
}

func (it *concatIter[T]) Next(ctx context.Context) (result T, ok bool, err error) {
	for it.index < len(it.iters) {
		val, ok, err := it.iters[it.index].Next(ctx)
		if err != nil {
			return val, false, err
		}
		if ok {
			return val, true, nil
		}
		it.index++
	}
	var zero T
	return zero, false, nil
}

func (it *concatIter[T]) Close() error {
	var firstErr error
	for _, iter := range it.iters {
		if err := iter.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
