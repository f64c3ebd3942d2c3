package flow

import (
	"context"
	"sync"
)

// Deferred is a value that becomes available later. Hooks block on Await to
// suspend until some external event settles it; tests use it to release
// results in a chosen order.
//
// A Deferred settles exactly once, either with a value or with an error.
type Deferred[T any] struct {
	once sync.Once
	done chan struct{}
	val  T
	err  error
}

// NewDeferred returns an unsettled Deferred.
func NewDeferred[T any]() *Deferred[T] {
	return &Deferred[T]{done: make(chan struct{})}
}

// Resolved returns a Deferred already settled with v.
func Resolved[T any](v T) *Deferred[T] {
	d := NewDeferred[T]()
	d.Resolve(v)
	return d
}

// Rejected returns a Deferred already settled with err.
func Rejected[T any](err error) *Deferred[T] {
	d := NewDeferred[T]()
	d.Reject(err)
	return d
}

// Resolve settles d with v. It reports false if d was already settled.
func (d *Deferred[T]) Resolve(v T) bool {
	return d.settle(v, nil)
}

// Reject settles d with err. It reports false if d was already settled.
func (d *Deferred[T]) Reject(err error) bool {
	var zero T
	return d.settle(zero, err)
}

func (d *Deferred[T]) settle(v T, err error) bool {
	settled := false
	d.once.Do(func() {
		d.val, d.err = v, err
		close(d.done)
		settled = true
	})
	return settled
}

// Await blocks until d settles or ctx is done.
func (d *Deferred[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-d.done:
		return d.val, d.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Done returns a channel closed once d settles.
func (d *Deferred[T]) Done() <-chan struct{} {
	return d.done
}

// Settled reports whether d has been resolved or rejected.
func (d *Deferred[T]) Settled() bool {
	select {
	case <-d.done:
		return true
	default:
		return false
	}
}
