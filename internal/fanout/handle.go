package fanout

import (
	"context"
	"fmt"
	"sync/atomic"
)

// Handle is an in-flight computation that yields exactly one value.
//
// The goroutine starts in Spawn. Await consumes the handle; a second Await
// returns ErrHandleConsumed.
type Handle[T any] struct {
	done     chan struct{}
	value    T
	err      error
	consumed atomic.Bool
}

// Spawn starts fn on its own goroutine. A panic in fn is recovered and
// reported from Await as ErrTaskPanicked.
func Spawn[T any](ctx context.Context, fn func(ctx context.Context) (T, error)) *Handle[T] {
	h := &Handle[T]{done: make(chan struct{})}
	go func() {
		defer close(h.done)
		defer func() {
			if p := recover(); p != nil {
				h.err = fmt.Errorf("%w: %v", ErrTaskPanicked, p)
			}
		}()
		h.value, h.err = fn(ctx)
	}()
	return h
}

// Done is closed once the computation has finished. Receiving from it does
// not consume the handle.
func (h *Handle[T]) Done() <-chan struct{} { return h.done }

// Await blocks until the computation finishes or ctx is done, then consumes the handle.
func (h *Handle[T]) Await(ctx context.Context) (T, error) {
	var zero T
	select {
	case <-h.done:
	case <-ctx.Done():
		return zero, ctx.Err()
	}
	if !h.consumed.CompareAndSwap(false, true) {
		return zero, ErrHandleConsumed
	}
	return h.value, h.err
}
