package policy

import (
	"context"
	"sync"
)

// ExecutionStrategy runs a batch of items work items, calling do with
// each index, either one at a time or with bounded concurrency.
type ExecutionStrategy interface {
	Execute(ctx context.Context, items int, do func(ctx context.Context, i int) error) error
}

// SerialExecutor runs items one after another, stopping at the first
// error. This is the strategy that preserves stream ordering.
type SerialExecutor struct{}

func (SerialExecutor) Execute(ctx context.Context, items int, do func(ctx context.Context, i int) error) error {
	for i := 0; i < items; i++ {
		if err := do(ctx, i); err != nil {
			return err
		}
	}

	return nil
}

// ParallelExecutor runs up to MaxConcurrency items concurrently. Errors
// from individual items are collected; the first one is returned.
type ParallelExecutor struct {
	MaxConcurrency int
}

func (p ParallelExecutor) Execute(ctx context.Context, items int, do func(ctx context.Context, i int) error) error {
	max := p.MaxConcurrency
	if max <= 0 {
		max = 1
	}

	sem := make(chan struct{}, max)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		firstErr error
	)

	for i := 0; i < items; i++ {
		sem <- struct{}{}
		wg.Add(1)

		go func(i int) {
			defer func() {
				<-sem
				wg.Done()
			}()

			if err := do(ctx, i); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
		}(i)
	}

	wg.Wait()

	return firstErr
}
