package pool

import (
	"context"
	"sync"
)

// WorkerFunc processes one item and may return an error.
type WorkerFunc[T any] func(ctx context.Context, item T) error

// Run processes items with numWorkers goroutines and returns the errors the
// workers reported, in completion order. Feeding stops when ctx is cancelled.
func Run[T any](ctx context.Context, items []T, numWorkers int, workerFunc WorkerFunc[T]) []error {
	if numWorkers < 1 {
		numWorkers = 1
	}
	var wg sync.WaitGroup
	taskChan := make(chan T, numWorkers)
	errChan := make(chan error, len(items))

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range taskChan {
				select {
				case <-ctx.Done():
					return
				default:
					if err := workerFunc(ctx, item); err != nil {
						errChan <- err
					}
				}
			}
		}()
	}

OUT:
	for _, item := range items {
		select {
		case taskChan <- item:
		case <-ctx.Done():
			break OUT
		}
	}
	close(taskChan)

	wg.Wait()
	close(errChan)

	var allErrors []error
	for err := range errChan {
		allErrors = append(allErrors, err)
	}
	return allErrors
}

// MapFunc turns one item into a result.
type MapFunc[T, R any] func(ctx context.Context, item T) (R, error)

// Result pairs a mapped value with its error.
type Result[R any] struct {
	Value R
	Err   error
}

// Map applies fn to every item concurrently and returns results in input
// order. Items skipped because ctx was cancelled carry ctx.Err(). onDone, if
// set, is called after each item that was processed.
func Map[T, R any](ctx context.Context, items []T, numWorkers int, fn MapFunc[T, R], onDone func()) []Result[R] {
	results := make([]Result[R], len(items))
	done := make([]bool, len(items))
	indexes := make([]int, len(items))
	for i := range indexes {
		indexes[i] = i
	}

	var mu sync.Mutex
	Run(ctx, indexes, numWorkers, func(ctx context.Context, i int) error {
		v, err := fn(ctx, items[i])
		results[i] = Result[R]{Value: v, Err: err}
		mu.Lock()
		done[i] = true
		if onDone != nil {
			onDone()
		}
		mu.Unlock()
		return err
	})

	for i := range results {
		if !done[i] {
			results[i].Err = ctx.Err()
		}
	}
	return results
}
