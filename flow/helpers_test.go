package flow

import (
	"context"
	"testing"
	"time"
)

const testTimeout = 5 * time.Second

func sliceEqual[T comparable](a, b []T) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// recv fails the test when nothing arrives on ch in time.
func recv[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for a value")
		var zero T
		return zero
	}
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	t.Cleanup(cancel)
	return ctx
}

// countingSource emits 1..n, one value per read, and counts the reads.
func countingSource(n int, reads *int) *Pipeline[int] {
	return NewSource(Source[int]{
		Read: func(_ context.Context, emit *Emitter[int]) error {
			*reads++
			if *reads > n {
				emit.Close()
				return nil
			}
			return emit.Emit(*reads)
		},
	})
}
