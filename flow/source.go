package flow

import (
	"context"

	"github.com/kbukum/flowkit/errors"
)

// Source holds the hooks of a custom source node.
type Source[T any] struct {
	// Init runs once before the first Read. Optional.
	Init func(ctx context.Context) error
	// Read runs once per unit of demand. It may emit any number of values,
	// block between emits, call emit.Close when the data is exhausted, or
	// schedule late emissions with emit.Go. Every value one Read emits is
	// consumed downstream before Read runs again.
	Read func(ctx context.Context, emit *Emitter[T]) error
}

// Of creates a pipeline over the given values.
func Of[T any](items ...T) *Pipeline[T] {
	return FromSlice(items)
}

// FromSlice creates a pipeline from a slice of values.
func FromSlice[T any](items []T) *Pipeline[T] {
	return newPipeline("slice", func(_ context.Context) Iterator[T] {
		return &sliceIter[T]{items: items}
	})
}

// FromIterator creates a pipeline from an existing Iterator. The iterator is
// closed when the run ends.
func FromIterator[T any](iter Iterator[T]) *Pipeline[T] {
	return newPipeline("iterator", func(_ context.Context) Iterator[T] {
		return iter
	})
}

// NewSource creates a pipeline whose head is the given source node.
func NewSource[T any](src Source[T]) *Pipeline[T] {
	return FromFunc(func(context.Context) Source[T] { return src })
}

// FromFunc creates a pipeline whose source hooks are built when the run
// starts, so per-run state can live in the closure.
//
//	pages := flow.FromFunc(func(ctx context.Context) flow.Source[Row] {
//	    cursor := ""
//	    return flow.Source[Row]{
//	        Read: func(ctx context.Context, emit *flow.Emitter[Row]) error {
//	            page, err := api.List(ctx, cursor)
//	            if err != nil {
//	                return err
//	            }
//	            for _, row := range page.Rows {
//	                if err := emit.Emit(row); err != nil {
//	                    return err
//	                }
//	            }
//	            if cursor = page.Next; cursor == "" {
//	                emit.Close()
//	            }
//	            return nil
//	        },
//	    }
//	})
func FromFunc[T any](build func(ctx context.Context) Source[T]) *Pipeline[T] {
	return newPipeline("source", func(ctx context.Context) Iterator[T] {
		var src Source[T]
		if err := protect(func() error { src = build(ctx); return nil }); err != nil {
			return errIter[T]{err: err}
		}
		if src.Read == nil {
			return errIter[T]{err: errors.MissingField("Source.Read")}
		}
		return newNode(ctx, "source", src.Init, src.Read, nil)
	})
}
