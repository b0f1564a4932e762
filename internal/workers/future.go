package workers

import (
	"context"
	"sync"
)

// Future holds the eventual outcome of a submitted task.
type Future[T any] struct {
	done  chan struct{}
	once  sync.Once
	value T
	err   error
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

func (f *Future[T]) complete(v T, err error) {
	f.once.Do(func() {
		f.value = v
		f.err = err
		close(f.done)
	})
}

// Done is closed once the task has finished.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Await blocks until the task finishes or ctx is done.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Result is one settled future, tagged with its position in the input slice.
type Result[T any] struct {
	Value T
	Err   error
	Index int
}

// Settle waits for every future and returns all outcomes in input order.
func Settle[T any](ctx context.Context, futures []*Future[T]) []Result[T] {
	results := make([]Result[T], len(futures))
	for i, f := range futures {
		v, err := f.Await(ctx)
		results[i] = Result[T]{Value: v, Err: err, Index: i}
	}
	return results
}

// AwaitAll waits for every future and fails if any of them failed, returning
// the error of the lowest-indexed failure. Values are returned only on full success.
func AwaitAll[T any](ctx context.Context, futures []*Future[T]) ([]T, error) {
	results := Settle(ctx, futures)
	values := make([]T, 0, len(results))
	for _, r := range results {
		if r.Err != nil {
			return nil, r.Err
		}
		values = append(values, r.Value)
	}
	return values, nil
}
