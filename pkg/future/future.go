// Package future provides a single-value asynchronous result
package future

import (
	"context"
	"fmt"
)

// Future is the eventual result of an asynchronous operation.
// It completes exactly once, with either a value or an error.
type Future[T any] struct {
	done  chan struct{}
	value T
	err   error
}

// Go runs fn on a new goroutine and returns a Future for its result.
// A panic inside fn rejects the future instead of crashing the process.
func Go[T any](fn func() (T, error)) *Future[T] {
	f := &Future[T]{done: make(chan struct{})}
	go func() {
		defer close(f.done)
		defer func() {
			if r := recover(); r != nil {
				var zero T
				f.value = zero
				if err, ok := r.(error); ok {
					f.err = fmt.Errorf("panic: %w", err)
					return
				}
				f.err = fmt.Errorf("panic: %v", r)
			}
		}()
		f.value, f.err = fn()
	}()
	return f
}

// Resolved returns a completed Future holding value
func Resolved[T any](value T) *Future[T] {
	f := &Future[T]{done: make(chan struct{}), value: value}
	close(f.done)
	return f
}

// Rejected returns a completed Future holding err
func Rejected[T any](err error) *Future[T] {
	f := &Future[T]{done: make(chan struct{}), err: err}
	close(f.done)
	return f
}

// Done returns a channel closed when the future completes
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Await blocks until the future completes or ctx is done
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Result blocks until the future completes
func (f *Future[T]) Result() (T, error) {
	<-f.done
	return f.value, f.err
}

// Err blocks until the future completes and returns its error
func (f *Future[T]) Err() error {
	<-f.done
	return f.err
}
