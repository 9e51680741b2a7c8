// Package parallel fans independent tasks across a bounded worker pool.
// Tasks must be self-contained: inputs and outputs cross the pool boundary
// by value and workers share no mutable state, so no locks guard task
// execution itself.
package parallel

import (
	"context"
	"fmt"
	"runtime"
	"sync"
)

// Result is one task's outcome. Exactly one of Value and Err is
// meaningful.
type Result[T any] struct {
	Value T
	Err   error
}

// Progress is invoked after each task completes with the number completed
// so far and the total submitted. Calls are serialized.
type Progress func(completed, total int)

// Map runs fn over every task on at most workers goroutines and returns
// results indexed by submission order regardless of completion order;
// downstream aggregation depends on that positional correspondence. A
// task's error (or panic) is captured into its own slot and never aborts
// siblings. workers <= 0 uses runtime.NumCPU().
//
// There is no per-task cancellation or timeout: a hung task occupies its
// worker slot until it returns. Cancelling ctx stops unstarted tasks,
// which surface a ctx error in their slots.
func Map[In, Out any](ctx context.Context, tasks []In, fn func(context.Context, In) (Out, error), workers int, progress Progress) []Result[Out] {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(tasks) {
		workers = len(tasks)
	}

	results := make([]Result[Out], len(tasks))
	if len(tasks) == 0 {
		return results
	}

	type job struct {
		index int
		input In
	}
	jobs := make(chan job)

	// The counter increments inside the critical section so callbacks see
	// strictly increasing completed counts.
	var progressMu sync.Mutex
	completed := 0

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				if err := ctx.Err(); err != nil {
					results[j.index] = Result[Out]{Err: fmt.Errorf("parallel: task %d not started: %w", j.index, err)}
				} else {
					results[j.index] = runOne(ctx, j.index, j.input, fn)
				}

				if progress != nil {
					progressMu.Lock()
					completed++
					progress(completed, len(tasks))
					progressMu.Unlock()
				}
			}
		}()
	}

	for i, task := range tasks {
		jobs <- job{index: i, input: task}
	}
	close(jobs)
	wg.Wait()

	return results
}

// runOne executes a single task, converting a panic into an error so one
// misbehaving task cannot take down the batch.
func runOne[In, Out any](ctx context.Context, index int, input In, fn func(context.Context, In) (Out, error)) (res Result[Out]) {
	defer func() {
		if r := recover(); r != nil {
			res = Result[Out]{Err: fmt.Errorf("parallel: task %d panicked: %v", index, r)}
		}
	}()

	value, err := fn(ctx, input)
	if err != nil {
		return Result[Out]{Err: fmt.Errorf("parallel: task %d: %w", index, err)}
	}
	return Result[Out]{Value: value}
}
