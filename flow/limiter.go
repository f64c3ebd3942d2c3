package flow

import (
	"context"
	"sync"
	"time"
)

// tokenBucket is a token bucket refilled at rate tokens per second and
// capped at burst tokens.
type tokenBucket struct {
	rate  float64
	burst float64

	mu         sync.Mutex
	tokens     float64
	lastRefill time.Time
	now        func() time.Time
}

func newTokenBucket(rate float64, burst int) *tokenBucket {
	if burst < 1 {
		burst = 1
	}
	b := &tokenBucket{
		rate:  rate,
		burst: float64(burst),
		now:   time.Now,
	}
	b.tokens = b.burst
	b.lastRefill = b.now()
	return b
}

// reserve takes one token and returns how long the caller has to wait
// before using it. The balance may go negative.
func (b *tokenBucket) reserve() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	b.tokens += now.Sub(b.lastRefill).Seconds() * b.rate
	b.lastRefill = now
	if b.tokens > b.burst {
		b.tokens = b.burst
	}

	b.tokens--
	if b.tokens >= 0 {
		return 0
	}
	return time.Duration(-b.tokens / b.rate * float64(time.Second))
}

// wait blocks until a token is available or ctx is done.
func (b *tokenBucket) wait(ctx context.Context) error {
	d := b.reserve()
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RateLimit passes values through at no more than perSecond values per
// second, allowing bursts of up to burst values. Values are delayed, never
// dropped. A perSecond of 0 or less disables the limit. Each run gets its
// own bucket.
func RateLimit[T any](p *Pipeline[T], perSecond float64, burst int) *Pipeline[T] {
	if perSecond <= 0 {
		return p
	}
	return throughNamed(p, "rate_limit", func(context.Context) Transform[T, T] {
		bucket := newTokenBucket(perSecond, burst)
		return Transform[T, T]{
			OnValue: func(ctx context.Context, v T, emit *Emitter[T]) error {
				if err := bucket.wait(ctx); err != nil {
					return err
				}
				return emit.Emit(v)
			},
		}
	})
}
