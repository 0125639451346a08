// Package dispatcher manages worker fan-out over the run queue.
package dispatcher

import (
	"context"
	"fmt"
	"sync"

	"github.com/leadscout/leadscout/internal/discovery"
)

const (
	minWorkers = 2
	maxWorkers = 10
)

// Dispatcher fans out queued requests to a bounded pool of workers.
type Dispatcher struct {
	queue   discovery.Queue
	workers []*Worker
}

// New creates a Dispatcher with n workers built from the shared deps. The
// pool size is clamped to [2, 10].
func New(queue discovery.Queue, n int, deps WorkerDeps) *Dispatcher {
	if n < minWorkers {
		n = minWorkers
	}
	if n > maxWorkers {
		n = maxWorkers
	}
	workers := make([]*Worker, 0, n)
	for i := 0; i < n; i++ {
		workers = append(workers, NewWorker(queue, deps))
	}
	return &Dispatcher{
		queue:   queue,
		workers: workers,
	}
}

// Run starts all workers and blocks until the context finishes.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, w := range d.workers {
		wg.Add(1)
		go func(wk *Worker) {
			defer wg.Done()
			wk.Run(ctx)
		}(w)
	}
	<-ctx.Done()
	wg.Wait()
}

// Enqueue proxies to the underlying queue.
func (d *Dispatcher) Enqueue(ctx context.Context, item discovery.QueueItem) error {
	if err := d.queue.Enqueue(ctx, item); err != nil {
		return fmt.Errorf("queue enqueue: %w", err)
	}
	return nil
}

// WorkerCount reports the pool size after clamping.
func (d *Dispatcher) WorkerCount() int {
	return len(d.workers)
}
