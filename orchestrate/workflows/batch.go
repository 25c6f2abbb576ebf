package workflows

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/tailored-agentic-units/backlog/observability"
	"github.com/tailored-agentic-units/backlog/orchestrate/config"
)

const batchSource = "workflows.ProcessBatch"

// TaskProcessor handles one batch item.
type TaskProcessor[TItem, TResult any] func(ctx context.Context, item TItem) (TResult, error)

// outcome is the slot a worker fills for one item. Slots are written by
// exactly one worker and read after the pool drains.
type outcome[TResult any] struct {
	result TResult
	err    error
	ran    bool
}

// ProcessBatch runs processor over items on a bounded worker pool and returns
// results and failures in item order.
//
// The pool size is cfg.MaxWorkers, or min(2*NumCPU, WorkerCap, len(items))
// when MaxWorkers is 0. Without FailFast every item is attempted and an error
// is returned only when no item succeeded. With FailFast the first failure
// stops dispatch; items never started appear in neither Results nor Errors.
// Cancelling ctx stops dispatch and returns ctx.Err() wrapped.
func ProcessBatch[TItem, TResult any](
	ctx context.Context,
	cfg config.BatchConfig,
	items []TItem,
	processor TaskProcessor[TItem, TResult],
	progress ProgressFunc[TResult],
) (BatchResult[TItem, TResult], error) {
	observer, err := observability.GetObserver(cfg.Observer)
	if err != nil {
		return BatchResult[TItem, TResult]{}, fmt.Errorf("failed to resolve observer: %w", err)
	}

	workers := poolSize(cfg.MaxWorkers, cfg.WorkerCap, len(items))
	observer.OnEvent(ctx, observability.NewEvent(EventBatchStart, observability.LevelInfo, batchSource, map[string]any{
		"item_count":   len(items),
		"worker_count": workers,
		"fail_fast":    cfg.FailFast(),
	}))

	outcomes := make([]outcome[TResult], len(items))
	if len(items) > 0 {
		p := &pool[TItem, TResult]{
			items:     items,
			outcomes:  outcomes,
			processor: processor,
			progress:  progress,
			observer:  observer,
			failFast:  cfg.FailFast(),
		}
		p.run(ctx, workers)
	}

	result := gather(items, outcomes)

	switch {
	case ctx.Err() != nil:
		err = fmt.Errorf("batch cancelled: %w", ctx.Err())
	case len(result.Errors) > 0 && (cfg.FailFast() || len(result.Results) == 0):
		err = &BatchError[TItem]{Errors: result.Errors}
	}

	level := observability.LevelInfo
	if err != nil {
		level = observability.LevelWarning
	}
	observer.OnEvent(ctx, observability.NewEvent(EventBatchComplete, level, batchSource, map[string]any{
		"succeeded": len(result.Results),
		"failed":    len(result.Errors),
		"skipped":   len(items) - len(result.Results) - len(result.Errors),
	}))

	return result, err
}

type pool[TItem, TResult any] struct {
	items     []TItem
	outcomes  []outcome[TResult]
	processor TaskProcessor[TItem, TResult]
	progress  ProgressFunc[TResult]
	observer  observability.Observer
	failFast  bool
	succeeded atomic.Int32
}

func (p *pool[TItem, TResult]) run(ctx context.Context, workers int) {
	ctx, stop := context.WithCancel(ctx)
	defer stop()

	indexes := make(chan int)
	var wg sync.WaitGroup
	for w := range workers {
		wg.Go(func() {
			for i := range indexes {
				if ctx.Err() != nil {
					continue
				}
				if p.process(ctx, w, i) != nil && p.failFast {
					stop()
				}
			}
		})
	}

dispatch:
	for i := range p.items {
		select {
		case indexes <- i:
		case <-ctx.Done():
			break dispatch
		}
	}
	close(indexes)
	wg.Wait()
}

func (p *pool[TItem, TResult]) process(ctx context.Context, worker, i int) error {
	p.observer.OnEvent(ctx, observability.NewEvent(EventWorkerStart, observability.LevelVerbose, batchSource, map[string]any{
		"worker_id":  worker,
		"item_index": i,
	}))

	result, err := p.processor(ctx, p.items[i])
	p.outcomes[i] = outcome[TResult]{result: result, err: err, ran: true}

	p.observer.OnEvent(ctx, observability.NewEvent(EventWorkerComplete, observability.LevelVerbose, batchSource, map[string]any{
		"worker_id":  worker,
		"item_index": i,
		"error":      err != nil,
	}))

	if err == nil && p.progress != nil {
		p.progress(int(p.succeeded.Add(1)), len(p.items), result)
	}
	return err
}

func poolSize(maxWorkers, workerCap, items int) int {
	if maxWorkers > 0 {
		return maxWorkers
	}
	n := min(runtime.NumCPU()*2, items)
	if workerCap > 0 {
		n = min(n, workerCap)
	}
	return max(n, 1)
}

func gather[TItem, TResult any](items []TItem, outcomes []outcome[TResult]) BatchResult[TItem, TResult] {
	out := BatchResult[TItem, TResult]{
		Results: []TResult{},
		Errors:  []TaskError[TItem]{},
	}
	for i, o := range outcomes {
		switch {
		case !o.ran:
		case o.err != nil:
			out.Errors = append(out.Errors, TaskError[TItem]{Index: i, Item: items[i], Err: o.err})
		default:
			out.Results = append(out.Results, o.result)
		}
	}
	return out
}
