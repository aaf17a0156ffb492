// Package dispatch runs fire-and-forget side effects on a bounded worker
// pool, decoupled from the request path. Overflow is dropped with a logged
// warning rather than blocking the caller.
package dispatch

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Task is a unit of background work. Run receives the queue's lifecycle
// context; a task error is logged, never propagated.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

// Queue is a bounded task queue with a fixed worker pool.
type Queue struct {
	mu     sync.Mutex
	closed bool

	tasks  chan Task
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc

	logger *zap.Logger
}

// New creates a queue and starts its workers.
func New(logger *zap.Logger, workers, capacity int) *Queue {
	if workers <= 0 {
		workers = 1
	}
	if capacity <= 0 {
		capacity = 64
	}

	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		tasks:  make(chan Task, capacity),
		ctx:    ctx,
		cancel: cancel,
		logger: logger.Named("dispatch"),
	}

	for i := 0; i < workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}
	return q
}

func (q *Queue) worker() {
	defer q.wg.Done()
	for task := range q.tasks {
		start := time.Now()
		if err := task.Run(q.ctx); err != nil {
			q.logger.Warn("background task failed",
				zap.String("task", task.Name),
				zap.Duration("elapsed", time.Since(start)),
				zap.Error(err))
			continue
		}
		q.logger.Debug("background task completed",
			zap.String("task", task.Name),
			zap.Duration("elapsed", time.Since(start)))
	}
}

// Enqueue hands a task to the pool without blocking. Returns false if the
// queue is full or closed; the drop is logged so it stays observable.
func (q *Queue) Enqueue(task Task) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		q.logger.Warn("queue closed, dropping task", zap.String("task", task.Name))
		return false
	}

	select {
	case q.tasks <- task:
		return true
	default:
		q.logger.Warn("queue full, dropping task", zap.String("task", task.Name))
		return false
	}
}

// Close stops accepting tasks, lets queued tasks finish, then cancels the
// lifecycle context and waits for workers to exit.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.tasks)
	q.mu.Unlock()

	q.wg.Wait()
	q.cancel()
}
