package flow

import (
	"context"
	"sync"

	"github.com/kbukum/flowkit/observability"
)

// MapParallel applies fn to upstream values with up to n invocations in
// flight and emits the results in input order, whichever invocation finishes
// first. A value is read from upstream as soon as one of the n slots is free,
// without waiting for earlier invocations to complete; a slot is freed when
// its result has been handed downstream.
//
// The first failing invocation fails the run. The stage context passed to fn
// is cancelled and the remaining invocations are awaited; their results are
// discarded.
func MapParallel[I, O any](p *Pipeline[I], n int, fn func(context.Context, I) (O, error)) *Pipeline[O] {
	if n < 1 {
		n = 1
	}
	return derive(p, func(ctx context.Context) Iterator[O] {
		sctx, cancel := context.WithCancel(ctx)
		it := &orderedIter[I, O]{
			up:     p.create(sctx),
			fn:     fn,
			n:      n,
			ctx:    sctx,
			cancel: cancel,
			ring:   make([]slot[O], n),
			free:   make(chan struct{}, n),
			wake:   make(chan struct{}, 1),
			meter:  observability.MetricsFromContext(ctx),
		}
		for i := 0; i < n; i++ {
			it.free <- struct{}{}
		}
		return it
	})
}

type slot[O any] struct {
	val  O
	done bool
}

// orderedIter keeps results in a ring of n slots: index i lives in slot
// i%n, and an index is only admitted while next-head < n, so a slot is never
// reused before its result was flushed.
type orderedIter[I, O any] struct {
	up     Iterator[I]
	fn     func(context.Context, I) (O, error)
	n      int
	ctx    context.Context
	cancel context.CancelFunc
	meter  *observability.Metrics

	free chan struct{}
	wake chan struct{}
	wg   sync.WaitGroup

	mu     sync.Mutex
	ring   []slot[O]
	head   int
	next   int
	upDone bool
	err    error

	startOnce sync.Once
	closeOnce sync.Once
}

func (it *orderedIter[I, O]) Next(ctx context.Context) (O, bool, error) {
	var zero O
	it.startOnce.Do(func() {
		it.wg.Add(1)
		go it.feed()
	})
	for {
		it.mu.Lock()
		if it.err != nil {
			err := it.err
			it.mu.Unlock()
			return zero, false, err
		}
		if s := &it.ring[it.head%it.n]; it.head < it.next && s.done {
			v := s.val
			*s = slot[O]{}
			it.head++
			it.mu.Unlock()
			it.free <- struct{}{}
			return v, true, nil
		}
		if it.upDone && it.head == it.next {
			it.mu.Unlock()
			return zero, false, nil
		}
		it.mu.Unlock()

		select {
		case <-it.wake:
		case <-ctx.Done():
			return zero, false, ctx.Err()
		}
	}
}

func (it *orderedIter[I, O]) Close() error {
	var err error
	it.closeOnce.Do(func() {
		it.cancel()
		it.wg.Wait()
		err = it.up.Close()
	})
	return err
}

// feed pulls upstream whenever a slot is free and starts fn on the value.
func (it *orderedIter[I, O]) feed() {
	defer it.wg.Done()
	for {
		select {
		case <-it.free:
		case <-it.ctx.Done():
			return
		}
		v, ok, err := it.up.Next(it.ctx)
		if err != nil {
			it.fail(err)
			return
		}
		if !ok {
			it.mu.Lock()
			it.upDone = true
			it.mu.Unlock()
			it.signal()
			return
		}

		it.mu.Lock()
		idx := it.next
		it.next++
		it.mu.Unlock()

		it.wg.Add(1)
		go it.work(idx, v)
	}
}

func (it *orderedIter[I, O]) work(idx int, v I) {
	defer it.wg.Done()
	if it.meter != nil {
		it.meter.RecordInflight(it.ctx, "map_parallel", 1)
		defer it.meter.RecordInflight(context.WithoutCancel(it.ctx), "map_parallel", -1)
	}

	var out O
	err := protect(func() (err error) {
		out, err = it.fn(it.ctx, v)
		return err
	})
	if err != nil {
		if it.fail(err) {
			observability.StageFailed(it.ctx, "map_parallel", err)
		}
		return
	}

	it.mu.Lock()
	s := &it.ring[idx%it.n]
	s.val, s.done = out, true
	it.mu.Unlock()
	it.signal()
}

// fail records err and stops the stage. It reports whether err is the
// first failure.
func (it *orderedIter[I, O]) fail(err error) bool {
	it.mu.Lock()
	first := it.err == nil
	if first {
		it.err = err
	}
	it.mu.Unlock()
	it.cancel()
	it.signal()
	return first
}

func (it *orderedIter[I, O]) signal() {
	select {
	case it.wake <- struct{}{}:
	default:
	}
}
