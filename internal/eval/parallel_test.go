package eval

import (
	"context"
	"fmt"
	"math/rand"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-convo-evaluator/internal/domain"
)

func TestRunParallel_PreservesOrder(t *testing.T) {
	items := make([]int, 20)
	for i := range items {
		items[i] = i
	}
	worker := func(_ context.Context, _ int, item int) (string, error) {
		time.Sleep(time.Duration(rand.Intn(5)) * time.Millisecond)
		return fmt.Sprintf("v%d", item), nil
	}
	results, errs, err := RunParallel(context.Background(), items, worker, ParallelOpts{Concurrency: 5})
	require.NoError(t, err)
	require.Len(t, results, len(items))
	require.Len(t, errs, len(items))
	for i := range items {
		assert.NoError(t, errs[i])
		assert.Equal(t, fmt.Sprintf("v%d", i), results[i], "slot %d out of order", i)
	}
}

func TestRunParallel_PerItemErrorsDoNotAbort(t *testing.T) {
	items := []int{0, 1, 2, 3, 4, 5}
	worker := func(_ context.Context, idx int, item int) (int, error) {
		if item%2 == 1 {
			return 0, fmt.Errorf("item %d broke", idx)
		}
		return item * 10, nil
	}
	results, errs, err := RunParallel(context.Background(), items, worker, ParallelOpts{Concurrency: 2})
	require.NoError(t, err, "per-item errors are local to their slot")
	for i, item := range items {
		if item%2 == 1 {
			assert.Error(t, errs[i])
		} else {
			assert.NoError(t, errs[i])
			assert.Equal(t, item*10, results[i])
		}
	}
}

func TestRunParallel_CancelledBeforeStart(t *testing.T) {
	probe := staticProbe{cancelled: map[string]bool{"job-1": true}}
	var started atomic.Int32
	worker := func(_ context.Context, _ int, _ int) (int, error) {
		started.Add(1)
		return 0, nil
	}
	_, errs, err := RunParallel(context.Background(), []int{1, 2, 3}, worker, ParallelOpts{
		Concurrency: 2,
		JobID:       "job-1",
		Probe:       probe,
	})
	assert.ErrorIs(t, err, domain.ErrJobCancelled)
	assert.Zero(t, started.Load())
	for i := range errs {
		assert.ErrorIs(t, errs[i], domain.ErrJobCancelled, "unstarted slot %d", i)
	}
}

func TestRunParallel_ContextCancelMidRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var started atomic.Int32
	worker := func(wctx context.Context, idx int, _ int) (int, error) {
		if started.Add(1) == 1 {
			cancel()
		}
		return idx, nil
	}
	items := make([]int, 50)
	_, _, err := RunParallel(ctx, items, worker, ParallelOpts{Concurrency: 1})
	assert.ErrorIs(t, err, domain.ErrJobCancelled)
	assert.Less(t, started.Load(), int32(50), "later items must not start after cancel")
}

func TestRunParallel_ProgressMessages(t *testing.T) {
	var messages []string
	worker := func(_ context.Context, idx int, _ int) (int, error) { return idx, nil }
	_, _, err := RunParallel(context.Background(), []int{1, 2}, worker, ParallelOpts{
		Concurrency: 1,
		OnProgress: func(_, _ int, message string) {
			messages = append(messages, message)
		},
	})
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "Item 1/2 (1 ok, 0 errors)", messages[0])
	assert.Equal(t, "Item 2/2 (2 ok, 0 errors)", messages[1])
}

func TestRunParallel_EmptyInput(t *testing.T) {
	worker := func(_ context.Context, idx int, _ int) (int, error) { return idx, nil }
	results, errs, err := RunParallel(context.Background(), nil, worker, ParallelOpts{})
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Empty(t, errs)
}

func TestRunParallel_InterItemDelay(t *testing.T) {
	delay := 20 * time.Millisecond
	start := time.Now()
	worker := func(_ context.Context, idx int, _ int) (int, error) { return idx, nil }
	_, _, err := RunParallel(context.Background(), []int{1, 2, 3}, worker, ParallelOpts{
		Concurrency:    1,
		InterItemDelay: delay,
	})
	require.NoError(t, err)
	// the first item starts immediately, the remaining two are staggered
	assert.GreaterOrEqual(t, time.Since(start), 2*delay)
}
