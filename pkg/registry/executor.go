package registry

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// DefaultMaxConcurrentBlockingCalls bounds how many Driver calls the
// registry allows in flight at once, across every query it is tracking.
const DefaultMaxConcurrentBlockingCalls = 16

// BlockingExecutor runs blocking Driver calls off a bounded pool so that
// a burst of submitted queries can't open unbounded concurrent Snowflake
// connections or status-check calls.
type BlockingExecutor struct {
	sem *semaphore.Weighted
}

// NewBlockingExecutor creates an executor that allows at most maxConcurrent
// blocking calls in flight. maxConcurrent <= 0 falls back to the default.
func NewBlockingExecutor(maxConcurrent int64) *BlockingExecutor {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentBlockingCalls
	}
	return &BlockingExecutor{sem: semaphore.NewWeighted(maxConcurrent)}
}

// Run acquires a slot, runs fn, and releases the slot. It returns ctx's
// error without running fn if ctx is canceled before a slot is free.
func (e *BlockingExecutor) Run(ctx context.Context, fn func() error) error {
	if err := e.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer e.sem.Release(1)
	return fn()
}
