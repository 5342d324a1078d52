// Package pool provides a generic bounded worker pool over a lazily-produced
// input channel. It is instantiated once per nesting level of the pipeline:
// objects within a bucket, and buckets across the account.
package pool

import (
	"context"
	"fmt"
	"sync"
)

// Pair is one completed unit of work. Err is set when the worker returned an
// error (or panicked); Output is only meaningful when Err is nil.
type Pair[I, O any] struct {
	Input  I
	Output O
	Err    error
}

// Run consumes inputs with at most concurrency workers in flight and yields
// pairs on the returned channel as workers complete, in completion order.
//
// Backpressure is inherent: workers pull the next input only when free, so
// an unbounded input sequence is never materialized more than one item ahead
// of the running workers. A worker error is reported on its pair and does
// not stop the pool. The result channel is closed once the input channel is
// closed and all in-flight workers have drained.
func Run[I, O any](ctx context.Context, inputs <-chan I, concurrency int, work func(context.Context, I) (O, error)) <-chan Pair[I, O] {
	if concurrency < 1 {
		concurrency = 1
	}
	results := make(chan Pair[I, O])
	wg := &sync.WaitGroup{}
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for in := range inputs {
				out, err := invoke(ctx, work, in)
				select {
				case results <- Pair[I, O]{Input: in, Output: out, Err: err}:
				case <-ctx.Done():
					return
				}
			}
		}()
	}
	go func() {
		wg.Wait()
		close(results)
	}()
	return results
}

// invoke runs one unit of work, converting a worker panic into an error so
// a single bad unit cannot abort the pool.
func invoke[I, O any](ctx context.Context, work func(context.Context, I) (O, error), in I) (out O, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("worker panic: %v", r)
		}
	}()
	return work(ctx, in)
}
