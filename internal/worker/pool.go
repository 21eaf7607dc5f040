// Package worker provides a small generic pool for fanning independent work
// out across goroutines. Results come back indexed, so callers can reduce
// them single-threaded without any shared mutable state.
package worker

import (
	"context"
	"sync"
)

// Task pairs an input with its result or error.
type Task[T any, R any] struct {
	Input  T
	Result R
	Err    error
}

// ProcessFunc handles a single input.
type ProcessFunc[T any, R any] func(ctx context.Context, input T) (R, error)

// Pool runs inputs through a fixed number of workers.
type Pool[T any, R any] struct {
	workers int
	process ProcessFunc[T, R]
}

// NewPool creates a pool with the given concurrency.
func NewPool[T any, R any](workers int, fn ProcessFunc[T, R]) *Pool[T, R] {
	if workers < 1 {
		workers = 1
	}
	return &Pool[T, R]{workers: workers, process: fn}
}

// Execute processes all inputs and returns one Task per input, in input
// order. Cancellation stops dispatch; already-running work finishes.
func (p *Pool[T, R]) Execute(ctx context.Context, inputs []T) []Task[T, R] {
	results := make([]Task[T, R], len(inputs))
	indexCh := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < p.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range indexCh {
				result, err := p.process(ctx, inputs[idx])
				results[idx] = Task[T, R]{Input: inputs[idx], Result: result, Err: err}
			}
		}()
	}

	for i := range inputs {
		select {
		case <-ctx.Done():
			for j := i; j < len(inputs); j++ {
				results[j] = Task[T, R]{Input: inputs[j], Err: ctx.Err()}
			}
			close(indexCh)
			wg.Wait()
			return results
		case indexCh <- i:
		}
	}
	close(indexCh)
	wg.Wait()
	return results
}
