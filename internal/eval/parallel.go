// Package eval contains the evaluation engine: the parallel executor, the
// judges, the pipeline runners, the conversation agent, and the job worker.
package eval

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/fairyhunter13/ai-convo-evaluator/internal/domain"
)

// ParallelOpts tunes one RunParallel invocation.
type ParallelOpts struct {
	Concurrency    int
	JobID          string
	InterItemDelay time.Duration
	Probe          domain.CancelProbe
	OnProgress     func(completed, total int, message string)
	// MessageFn overrides the default progress message.
	MessageFn func(ok, errs, completed, total int) string
}

func defaultMessage(ok, errs, completed, total int) string {
	return fmt.Sprintf("Item %d/%d (%d ok, %d errors)", completed, total, ok, errs)
}

// RunParallel executes worker over every item with bounded concurrency.
// Results and errors are index-aligned with items regardless of completion
// order. When the job is cancelled it waits for in-flight workers to settle
// and returns ErrJobCancelled; items never started carry ErrJobCancelled in
// their error slot.
func RunParallel[T any, R any](ctx context.Context, items []T, worker func(ctx context.Context, index int, item T) (R, error), opts ParallelOpts) ([]R, []error, error) {
	total := len(items)
	results := make([]R, total)
	errs := make([]error, total)
	if total == 0 {
		return results, errs, nil
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	msgFn := opts.MessageFn
	if msgFn == nil {
		msgFn = defaultMessage
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	cancelled := func() bool {
		if runCtx.Err() != nil {
			return true
		}
		if opts.Probe != nil && opts.JobID != "" && opts.Probe.IsCancelled(runCtx, opts.JobID) {
			cancel()
			return true
		}
		return false
	}

	// The delay lock serializes staggered starts so the external rate limit
	// sees one new item per interval even under parallel dispatch.
	var delayMu sync.Mutex
	firstStarted := false
	stagger := func() error {
		if opts.InterItemDelay <= 0 {
			return nil
		}
		delayMu.Lock()
		defer delayMu.Unlock()
		if !firstStarted {
			firstStarted = true
			return nil
		}
		if cancelled() {
			return domain.ErrJobCancelled
		}
		select {
		case <-runCtx.Done():
			return domain.ErrJobCancelled
		case <-time.After(opts.InterItemDelay):
			return nil
		}
	}

	var progressMu sync.Mutex
	completed, okCount, errCount := 0, 0, 0
	settle := func(err error) {
		progressMu.Lock()
		defer progressMu.Unlock()
		completed++
		if err == nil {
			okCount++
		} else {
			errCount++
		}
		if opts.OnProgress != nil {
			opts.OnProgress(completed, total, msgFn(okCount, errCount, completed, total))
		}
	}

	sem := semaphore.NewWeighted(int64(opts.Concurrency))
	var wg sync.WaitGroup
	wasCancelled := false
	for i := range items {
		if cancelled() {
			wasCancelled = true
			errs[i] = domain.ErrJobCancelled
			continue
		}
		if err := stagger(); err != nil {
			wasCancelled = true
			errs[i] = err
			continue
		}
		if cancelled() {
			wasCancelled = true
			errs[i] = domain.ErrJobCancelled
			continue
		}
		if err := sem.Acquire(runCtx, 1); err != nil {
			wasCancelled = true
			errs[i] = domain.ErrJobCancelled
			continue
		}
		if cancelled() {
			sem.Release(1)
			wasCancelled = true
			errs[i] = domain.ErrJobCancelled
			continue
		}
		wg.Add(1)
		go func(idx int, item T) {
			defer wg.Done()
			defer sem.Release(1)
			res, err := worker(runCtx, idx, item)
			results[idx] = res
			errs[idx] = err
			settle(err)
		}(i, items[i])
	}
	wg.Wait()

	if wasCancelled || cancelled() {
		return results, errs, domain.ErrJobCancelled
	}
	return results, errs, nil
}
