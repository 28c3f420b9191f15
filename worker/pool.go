package worker

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Pool runs N DeliveryWorker loop instances concurrently, matching the
// teacher's queue/scheduler.Scheduler concurrency shape (SPEC_FULL.md §3
// 4.D).
type Pool struct {
	workers []*DeliveryWorker
}

func NewPool(workers ...*DeliveryWorker) *Pool {
	return &Pool{workers: workers}
}

// Run blocks until ctx is canceled or any worker's loop returns a non-nil,
// non-context error.
func (p *Pool) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, w := range p.workers {
		w := w
		g.Go(func() error {
			return w.Run(gctx)
		})
	}
	return g.Wait()
}
