package flow

import (
	"context"
	"sync"
)

// State is the lifecycle state of a source or transform node.
type State int32

const (
	StateCreated State = iota
	StateInitializing
	StateRunning
	// StateClosing: Close was called. No new demand is issued, but emissions
	// scheduled with Emitter.Go before the close are still accepted.
	StateClosing
	StateClosed
	StateErrored
)

var stateNames = [...]string{"created", "initializing", "running", "closing", "closed", "errored"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// node is the kernel shared by sources and transforms. Each call to step is
// one read; everything the read emits is queued and handed out by Next before
// step runs again.
type node[T any] struct {
	name  string
	init  func(ctx context.Context) error
	step  func(ctx context.Context, e *Emitter[T]) error
	after func() error

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	state   State
	queue   []T
	err     error
	pending int
	wake    chan struct{}

	tasks     sync.WaitGroup
	closeOnce sync.Once
}

func newNode[T any](
	ctx context.Context,
	name string,
	init func(context.Context) error,
	step func(context.Context, *Emitter[T]) error,
	after func() error,
) *node[T] {
	nctx, cancel := context.WithCancel(ctx)
	return &node[T]{
		name:   name,
		init:   init,
		step:   step,
		after:  after,
		ctx:    nctx,
		cancel: cancel,
		wake:   make(chan struct{}, 1),
	}
}

// State returns the current lifecycle state.
func (n *node[T]) State() State {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

func (n *node[T]) Next(ctx context.Context) (T, bool, error) {
	var zero T
	if err := n.start(); err != nil {
		return zero, false, err
	}
	for {
		n.mu.Lock()
		if n.err != nil {
			err := n.err
			n.mu.Unlock()
			return zero, false, err
		}
		if len(n.queue) > 0 {
			v := n.queue[0]
			n.queue[0] = zero
			n.queue = n.queue[1:]
			n.mu.Unlock()
			return v, true, nil
		}
		switch n.state {
		case StateRunning:
			n.mu.Unlock()
			if err := n.ctx.Err(); err != nil {
				return zero, false, err
			}
			if err := n.invoke(); err != nil {
				return zero, false, err
			}
		case StateClosing:
			if n.pending == 0 {
				n.state = StateClosed
				n.mu.Unlock()
				return zero, false, nil
			}
			n.mu.Unlock()
			select {
			case <-n.wake:
			case <-ctx.Done():
				return zero, false, ctx.Err()
			}
		default:
			n.mu.Unlock()
			return zero, false, nil
		}
	}
}

// Close cancels the node context, waits for detached emissions and then
// releases upstream resources.
func (n *node[T]) Close() error {
	var err error
	n.closeOnce.Do(func() {
		n.cancel()
		n.tasks.Wait()
		n.mu.Lock()
		if n.state != StateErrored {
			n.state = StateClosed
		}
		n.queue = nil
		n.mu.Unlock()
		if n.after != nil {
			err = n.after()
		}
	})
	return err
}

func (n *node[T]) start() error {
	n.mu.Lock()
	if n.state != StateCreated {
		n.mu.Unlock()
		return nil
	}
	n.state = StateInitializing
	n.mu.Unlock()

	if n.init != nil {
		if err := protect(func() error { return n.init(n.ctx) }); err != nil {
			return n.fail(err)
		}
	}

	n.mu.Lock()
	if n.state == StateInitializing {
		n.state = StateRunning
	}
	n.mu.Unlock()
	return nil
}

func (n *node[T]) invoke() error {
	e := &Emitter[T]{n: n}
	e.live.Store(true)
	err := protect(func() error { return n.step(n.ctx, e) })
	e.live.Store(false)
	if err != nil {
		return n.fail(err)
	}
	return nil
}

// fail records err unless an earlier error is already recorded, and returns
// the error that the node now reports.
func (n *node[T]) fail(err error) error {
	n.mu.Lock()
	n.failLocked(err)
	err = n.err
	n.mu.Unlock()
	n.cancel()
	n.signal()
	return err
}

func (n *node[T]) failLocked(err error) {
	if n.err == nil {
		n.err = err
		n.state = StateErrored
		n.queue = nil
	}
}

func (n *node[T]) signal() {
	select {
	case n.wake <- struct{}{}:
	default:
	}
}
