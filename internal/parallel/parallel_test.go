package parallel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestMapPreservesSubmissionOrder(t *testing.T) {
	tasks := make([]int, 20)
	for i := range tasks {
		tasks[i] = i
	}

	// Make later tasks finish earlier to exercise out-of-order completion.
	fn := func(_ context.Context, n int) (int, error) {
		time.Sleep(time.Duration(20-n) * time.Millisecond)
		return n * n, nil
	}

	results := Map(context.Background(), tasks, fn, 8, nil)
	if len(results) != len(tasks) {
		t.Fatalf("results length = %d, want %d", len(results), len(tasks))
	}
	for i, r := range results {
		if r.Err != nil {
			t.Fatalf("task %d: unexpected error %v", i, r.Err)
		}
		if r.Value != i*i {
			t.Errorf("results[%d] = %d, want %d", i, r.Value, i*i)
		}
	}
}

func TestMapIsolatesFailures(t *testing.T) {
	tasks := []int{0, 1, 2, 3, 4}
	wantErr := errors.New("injected")

	fn := func(_ context.Context, n int) (int, error) {
		if n == 2 {
			return 0, wantErr
		}
		return n, nil
	}

	results := Map(context.Background(), tasks, fn, 2, nil)
	for i, r := range results {
		if i == 2 {
			if !errors.Is(r.Err, wantErr) {
				t.Errorf("task 2 err = %v, want injected error", r.Err)
			}
			continue
		}
		if r.Err != nil {
			t.Errorf("task %d flagged by sibling failure: %v", i, r.Err)
		}
		if r.Value != i {
			t.Errorf("results[%d] = %d, want %d", i, r.Value, i)
		}
	}
}

func TestMapRecoversPanics(t *testing.T) {
	tasks := []int{0, 1, 2}
	fn := func(_ context.Context, n int) (int, error) {
		if n == 1 {
			panic("task exploded")
		}
		return n, nil
	}

	results := Map(context.Background(), tasks, fn, 3, nil)
	if results[1].Err == nil {
		t.Error("panicking task should surface an error in its slot")
	}
	if results[0].Err != nil || results[2].Err != nil {
		t.Error("panic leaked into sibling results")
	}
}

func TestMapProgressCallback(t *testing.T) {
	tasks := []int{0, 1, 2, 3}
	var mu sync.Mutex
	var calls []int

	progress := func(completed, total int) {
		if total != 4 {
			t.Errorf("total = %d, want 4", total)
		}
		mu.Lock()
		calls = append(calls, completed)
		mu.Unlock()
	}

	Map(context.Background(), tasks, func(_ context.Context, n int) (int, error) {
		return n, nil
	}, 2, progress)

	if len(calls) != 4 {
		t.Fatalf("progress calls = %d, want 4", len(calls))
	}
	// Counts must arrive in order: a callback may never observe a larger
	// completed count before a smaller one.
	for i, c := range calls {
		if c != i+1 {
			t.Fatalf("progress calls = %v, want [1 2 3 4]", calls)
		}
	}
}

func TestMapBoundsConcurrency(t *testing.T) {
	const workers = 3
	var mu sync.Mutex
	running, peak := 0, 0

	fn := func(_ context.Context, n int) (int, error) {
		mu.Lock()
		running++
		if running > peak {
			peak = running
		}
		mu.Unlock()

		time.Sleep(5 * time.Millisecond)

		mu.Lock()
		running--
		mu.Unlock()
		return n, nil
	}

	Map(context.Background(), []int{0, 1, 2, 3, 4, 5, 6, 7}, fn, workers, nil)
	if peak > workers {
		t.Errorf("peak concurrency = %d, exceeds limit %d", peak, workers)
	}
}

func TestMapEmptyTasks(t *testing.T) {
	results := Map(context.Background(), nil, func(_ context.Context, n int) (int, error) {
		return n, nil
	}, 4, nil)
	if len(results) != 0 {
		t.Errorf("results = %d, want 0", len(results))
	}
}

func TestMapDefaultWorkerCount(t *testing.T) {
	// workers <= 0 must still run everything.
	results := Map(context.Background(), []int{1, 2, 3}, func(_ context.Context, n int) (int, error) {
		return n * 2, nil
	}, 0, nil)
	for i, r := range results {
		if r.Err != nil {
			t.Fatalf("task %d: %v", i, r.Err)
		}
	}
}

func TestMapContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	started := make(chan struct{})
	var once sync.Once
	fn := func(ctx context.Context, n int) (string, error) {
		once.Do(func() {
			close(started)
			cancel()
			time.Sleep(10 * time.Millisecond)
		})
		return fmt.Sprintf("task-%d", n), nil
	}

	results := Map(ctx, []int{0, 1, 2, 3, 4, 5, 6, 7}, fn, 1, nil)
	<-started

	var skipped int
	for _, r := range results {
		if r.Err != nil && errors.Is(r.Err, context.Canceled) {
			skipped++
		}
	}
	if skipped == 0 {
		t.Error("cancellation should prevent unstarted tasks from running")
	}
}
