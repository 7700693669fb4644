package ormkit

import (
	"context"
	"fmt"
)

// Future is the pending result of an asynchronous command.
type Future[T any] struct {
	done chan struct{}
	val  T
	err  error
}

// Done is closed when the result is available.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

// Wait blocks until the command finishes or ctx is done. Cancelling ctx does
// not cancel the command; cancel the context the command was started with.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func goAsync[T any](fn func() (T, error)) *Future[T] {
	f := &Future[T]{done: make(chan struct{})}
	go func() {
		defer close(f.done)
		defer func() {
			if p := recover(); p != nil {
				f.err = fmt.Errorf("ormkit: async command panicked: %v", p)
			}
		}()
		f.val, f.err = fn()
	}()
	return f
}

// ExecAsync runs a non-query statement in a new goroutine. The ambient state
// of ctx, including its transaction and results filter, applies.
func ExecAsync(ctx context.Context, src Source, query string, args ...any) *Future[int64] {
	return goAsync(func() (int64, error) {
		return affected(execCall(ctx, src, call{query: query, args: args, async: true}))
	})
}

// ScalarAsync is the asynchronous form of Scalar.
func ScalarAsync[T any](ctx context.Context, src Source, query string, args ...any) *Future[T] {
	return goAsync(func() (T, error) {
		return scalarCall[T](ctx, src, call{query: query, args: args, async: true})
	})
}

// ListAsync is the asynchronous form of List.
func ListAsync[T any](ctx context.Context, src Source, query string, args ...any) *Future[[]T] {
	return goAsync(func() ([]T, error) {
		return listCall[T](ctx, src, call{query: query, args: args, async: true})
	})
}

// SingleAsync is the asynchronous form of Single.
func SingleAsync[T any](ctx context.Context, src Source, query string, args ...any) *Future[T] {
	return goAsync(func() (T, error) {
		return singleCall[T](ctx, src, call{query: query, args: args, async: true})
	})
}
