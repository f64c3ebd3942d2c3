package flow

import (
	"context"
	"sync"

	"github.com/kbukum/flowkit/errors"
)

// Pushable is a source fed by code outside the pipeline. Push blocks while
// the buffer is full, so a slow pipeline slows its producers down.
type Pushable[T any] struct {
	ch   chan T
	done chan struct{}

	mu       sync.Mutex
	closed   bool
	inflight sync.WaitGroup

	pipeline *Pipeline[T]
}

// NewPushable creates a pushable source holding up to buffer values that
// the pipeline has not read yet. A buffer of 0 hands every value directly to
// a waiting read.
func NewPushable[T any](buffer int) *Pushable[T] {
	if buffer < 0 {
		buffer = 0
	}
	p := &Pushable[T]{
		ch:   make(chan T, buffer),
		done: make(chan struct{}),
	}
	p.pipeline = NewSource(Source[T]{Read: p.read}).Named("pushable")
	return p
}

// Pipeline returns the pipeline reading from p.
func (p *Pushable[T]) Pipeline() *Pipeline[T] {
	return p.pipeline
}

// Push hands v to the pipeline. It fails with errors.ErrCodePushAfterClose
// once Close was called.
func (p *Pushable[T]) Push(ctx context.Context, v T) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return errors.PushAfterClose()
	}
	p.inflight.Add(1)
	p.mu.Unlock()
	defer p.inflight.Done()

	select {
	case p.ch <- v:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close ends the stream. Values pushed before Close are still delivered.
func (p *Pushable[T]) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	go func() {
		p.inflight.Wait()
		close(p.done)
	}()
}

func (p *Pushable[T]) read(ctx context.Context, emit *Emitter[T]) error {
	select {
	case v := <-p.ch:
		return emit.Emit(v)
	case <-p.done:
		for {
			select {
			case v := <-p.ch:
				if err := emit.Emit(v); err != nil {
					return err
				}
			default:
				emit.Close()
				return nil
			}
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}
