package flow

import (
	"context"
	"sync/atomic"

	"github.com/kbukum/flowkit/errors"
)

// Emitter is the handle a hook uses to push values downstream and to close
// its node. The emitter passed to a hook is valid only until the hook
// returns; emissions that must happen later are scheduled with Go.
type Emitter[T any] struct {
	n        *node[T]
	detached bool
	live     atomic.Bool
}

// Emit queues v for the downstream stage. Values are delivered in the order
// Emit is called. A non-nil error means the run is failing or the emitter was
// misused; the hook should return it.
func (e *Emitter[T]) Emit(v T) error {
	n := e.n
	if err := e.check(); err != nil {
		return err
	}
	n.mu.Lock()
	if n.err != nil {
		err := n.err
		n.mu.Unlock()
		return err
	}
	n.queue = append(n.queue, v)
	n.mu.Unlock()
	n.signal()
	return nil
}

// Close stops the node from requesting further reads. Values already emitted
// and emissions scheduled with Go still reach the downstream stage.
func (e *Emitter[T]) Close() {
	n := e.n
	n.mu.Lock()
	if n.state == StateRunning {
		n.state = StateClosing
	}
	n.mu.Unlock()
	n.signal()
}

// Go schedules fn to run on its own goroutine with a detached emitter. The
// current read completes without waiting for fn, so the node may be asked for
// more values meanwhile; the node does not report completion until every
// scheduled fn has returned. An error returned by fn fails the run.
func (e *Emitter[T]) Go(fn func(ctx context.Context, emit *Emitter[T]) error) error {
	n := e.n
	if err := e.check(); err != nil {
		return err
	}
	n.mu.Lock()
	if n.err != nil {
		err := n.err
		n.mu.Unlock()
		return err
	}
	n.pending++
	n.tasks.Add(1)
	n.mu.Unlock()

	go func() {
		defer n.tasks.Done()
		err := protect(func() error {
			return fn(n.ctx, &Emitter[T]{n: n, detached: true})
		})
		n.mu.Lock()
		if err != nil {
			n.failLocked(err)
		}
		n.pending--
		n.mu.Unlock()
		if err != nil {
			n.cancel()
		}
		n.signal()
	}()
	return nil
}

// Closed reports whether the node has stopped taking new reads.
func (e *Emitter[T]) Closed() bool {
	s := e.n.State()
	return s >= StateClosing
}

func (e *Emitter[T]) check() error {
	n := e.n
	if err := n.ctx.Err(); err != nil {
		n.mu.Lock()
		defer n.mu.Unlock()
		if n.err != nil {
			return n.err
		}
		return err
	}
	if e.detached {
		return nil
	}
	if !e.live.Load() {
		return n.fail(errors.EmitOutsideHook(n.name))
	}
	if n.State() >= StateClosing {
		return n.fail(errors.EmitAfterClose(n.name))
	}
	return nil
}
