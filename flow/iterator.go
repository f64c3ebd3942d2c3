package flow

import "context"

// Iterator provides pull-based sequential access to a stream of values.
// Every call to Next is one unit of demand sent upstream.
type Iterator[T any] interface {
	// Next returns the next value. Returns (zero, false, nil) when exhausted.
	Next(ctx context.Context) (T, bool, error)
	// Close releases any resources held by the iterator and waits for the
	// goroutines it started.
	Close() error
}

type sliceIter[T any] struct {
	items []T
	index int
}

func (it *sliceIter[T]) Next(_ context.Context) (T, bool, error) {
	if it.index >= len(it.items) {
		var zero T
		return zero, false, nil
	}
	val := it.items[it.index]
	it.index++
	return val, true, nil
}

func (it *sliceIter[T]) Close() error { return nil }

// errIter fails on the first Next. Used when a stage cannot be built.
type errIter[T any] struct {
	err error
}

func (it errIter[T]) Next(context.Context) (T, bool, error) {
	var zero T
	return zero, false, it.err
}

func (it errIter[T]) Close() error { return nil }
