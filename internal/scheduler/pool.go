// Package scheduler provides fire-and-forget asynchronous execution for
// provider units of work. The orchestration core only depends on the
// Scheduler interface; the in-process pool is the default backend.
package scheduler

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// UnitOfWork is one independent provider task.
type UnitOfWork func(ctx context.Context)

// Scheduler schedules units of work for asynchronous execution. Callers
// must not depend on ordering or on a completion signal from Enqueue;
// completion is observed through the tracker.
type Scheduler interface {
	Enqueue(work UnitOfWork)
}

// Pool is a bounded in-process Scheduler. At most maxConcurrent units
// run at once; Enqueue never blocks the caller.
type Pool struct {
	ctx context.Context
	sem *semaphore.Weighted
	wg  sync.WaitGroup
}

// NewPool creates a Pool bound to ctx. Canceling ctx drains the pool:
// queued work that has not started is dropped.
func NewPool(ctx context.Context, maxConcurrent int64) *Pool {
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	return &Pool{
		ctx: ctx,
		sem: semaphore.NewWeighted(maxConcurrent),
	}
}

// Enqueue schedules work on its own goroutine, gated by the concurrency
// bound. Panics in a unit are contained so one provider cannot take down
// its siblings.
func (p *Pool) Enqueue(work UnitOfWork) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if err := p.sem.Acquire(p.ctx, 1); err != nil {
			zap.L().Debug("scheduler: pool draining, unit dropped", zap.Error(err))
			return
		}
		defer p.sem.Release(1)
		defer func() {
			if r := recover(); r != nil {
				zap.L().Error("scheduler: unit of work panicked", zap.Any("panic", r))
			}
		}()
		work(p.ctx)
	}()
}

// Wait blocks until all enqueued units have finished or been dropped.
func (p *Pool) Wait() {
	p.wg.Wait()
}
