package tasks

import (
	"context"
	"sync"

	"github.com/aimd54/addon-ratings/internal/metrics"
	"github.com/aimd54/addon-ratings/pkg/logger"
)

// WorkerQueue runs tasks on a fixed pool of goroutines fed by a bounded channel.
// When the channel is full the task runs on the caller's goroutine instead.
type WorkerQueue struct {
	registry *Registry
	tasks    chan Task
	workers  int
	wg       sync.WaitGroup
	log      *logger.Logger
	once     sync.Once
}

// NewWorkerQueue creates a worker pool. Call Start before enqueueing.
func NewWorkerQueue(registry *Registry, workers, buffer int, log *logger.Logger) *WorkerQueue {
	if workers < 1 {
		workers = 1
	}
	if buffer < 0 {
		buffer = 0
	}
	return &WorkerQueue{
		registry: registry,
		tasks:    make(chan Task, buffer),
		workers:  workers,
		log:      log,
	}
}

// Start launches the workers. They exit once Stop closes the channel.
func (q *WorkerQueue) Start(ctx context.Context) {
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			for task := range q.tasks {
				metrics.SetTaskQueueDepth(len(q.tasks))
				_ = q.registry.Dispatch(context.WithoutCancel(ctx), task)
			}
		}()
	}
	q.log.Info().Int("workers", q.workers).Int("buffer", cap(q.tasks)).Msg("Task workers started")
}

// Enqueue hands the task to a worker.
func (q *WorkerQueue) Enqueue(ctx context.Context, task Task) error {
	select {
	case q.tasks <- task:
		metrics.SetTaskQueueDepth(len(q.tasks))
	default:
		q.log.Warn().Str("task", task.Name).Msg("Task queue full, running inline")
		_ = q.registry.Dispatch(ctx, task)
	}
	return nil
}

// Stop drains the queue and waits for the workers.
func (q *WorkerQueue) Stop() {
	q.once.Do(func() {
		close(q.tasks)
		q.wg.Wait()
		q.log.Info().Msg("Task workers stopped")
	})
}
