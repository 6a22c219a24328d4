// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package workpool

import "context"

// Future is the eventual result of a task.
type Future[T any] struct {
	done  chan struct{}
	value T
	err   error
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

func (f *Future[T]) resolve(value T, err error) {
	f.value, f.err = value, err
	close(f.done)
}

// Resolved returns a future that is already complete.
func Resolved[T any](value T, err error) *Future[T] {
	f := newFuture[T]()
	f.resolve(value, err)
	return f
}

// Done is closed when the result is available.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

// Wait blocks until the result is available or ctx is done. Giving up
// on a future does not stop its task.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Submit runs fn on pool with the given weight.
func Submit[T any](ctx context.Context, pool *Pool, weight int64, fn func(context.Context) (T, error)) *Future[T] {
	future := newFuture[T]()
	go func() {
		var value T
		err := pool.run(ctx, weight, func(ctx context.Context) error {
			var err error
			value, err = fn(ctx)
			return err
		})
		future.resolve(value, err)
	}()
	return future
}

// Then runs fn on pool with the result of previous once it succeeds.
// If previous fails, fn is skipped and the error carries over.
func Then[T, U any](ctx context.Context, previous *Future[T], pool *Pool, weight int64, fn func(context.Context, T) (U, error)) *Future[U] {
	future := newFuture[U]()
	go func() {
		var value U
		input, err := previous.Wait(ctx)
		if err == nil {
			err = pool.run(ctx, weight, func(ctx context.Context) error {
				var err error
				value, err = fn(ctx, input)
				return err
			})
		}
		future.resolve(value, err)
	}()
	return future
}

// Go runs fn on its own goroutine, outside any pool. It suits tasks
// that only wait on other futures and would waste pool weight.
func Go[T any](fn func() (T, error)) *Future[T] {
	future := newFuture[T]()
	go func() {
		var value T
		err := protect(context.Background(), func(context.Context) error {
			var err error
			value, err = fn()
			return err
		})
		future.resolve(value, err)
	}()
	return future
}
