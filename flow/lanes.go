package flow

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/kbukum/flowkit/observability"
)

// Parallelize spreads upstream values over n lanes. Each lane runs its own
// sub-pipeline, built by calling lane with a source that yields one upstream
// value at a time; a lane reads its next value only after the sub-pipeline
// has pushed everything for the previous one downstream. Lane output is
// forwarded as soon as it is produced, so the output order follows lane
// completion rather than input order.
//
// The first lane failure, including a failing Init of a sub-pipeline stage,
// fails the run.
func Parallelize[I, O any](p *Pipeline[I], n int, lane func(*Pipeline[I]) *Pipeline[O]) *Pipeline[O] {
	if n < 1 {
		n = 1
	}
	return derive(p, func(ctx context.Context) Iterator[O] {
		sctx, cancel := context.WithCancel(ctx)
		ls := &laneSet[I, O]{
			up:    p.create(sctx),
			lane:  lane,
			gate:  semaphore.NewWeighted(1),
			meter: observability.MetricsFromContext(ctx),
		}
		producers := make([]func(context.Context, func(O) error) error, n)
		for i := range producers {
			producers[i] = ls.run
		}
		return newFanIn(sctx, cancel, producers, ls.up.Close)
	})
}

// laneSet is the state shared by the lanes of one Parallelize stage.
type laneSet[I, O any] struct {
	up    Iterator[I]
	lane  func(*Pipeline[I]) *Pipeline[O]
	meter *observability.Metrics

	// gate serializes upstream reads between lanes.
	gate   *semaphore.Weighted
	upDone atomic.Bool
}

func (ls *laneSet[I, O]) run(ctx context.Context, send func(O) error) (err error) {
	sub := ls.lane(NewSource(Source[I]{Read: ls.pull}).Named("lane"))
	iter, err := sub.Iter(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := iter.Close(); err == nil {
			err = cerr
		}
	}()

	for {
		v, ok, err := iter.Next(ctx)
		if err != nil {
			if ctx.Err() == nil {
				observability.StageFailed(ctx, "parallelize", err)
			}
			return err
		}
		if !ok {
			return nil
		}
		if err := send(v); err != nil {
			return err
		}
	}
}

// pull is the Read hook of every lane source: it takes the next upstream
// value for the calling lane.
func (ls *laneSet[I, O]) pull(ctx context.Context, emit *Emitter[I]) error {
	if ls.upDone.Load() {
		emit.Close()
		return nil
	}
	if err := ls.gate.Acquire(ctx, 1); err != nil {
		return err
	}
	defer ls.gate.Release(1)

	if ls.upDone.Load() {
		emit.Close()
		return nil
	}
	v, ok, err := ls.up.Next(ctx)
	if err != nil {
		return err
	}
	if !ok {
		ls.upDone.Store(true)
		emit.Close()
		return nil
	}
	if ls.meter != nil {
		ls.meter.RecordLaneItem(ctx, "parallelize")
	}
	return emit.Emit(v)
}
