// Package workers runs pipeline jobs on a fixed number of workers. Admission
// beyond the worker count queues in FIFO order and is never rejected.
package workers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// ErrPoolClosed is returned by Submit after Shutdown started
var ErrPoolClosed = errors.New("worker pool is shutting down")

// PoolConfig configures worker pool behavior
type PoolConfig struct {
	Workers int // Concurrent tasks
}

// DefaultPoolConfig returns sensible defaults
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{Workers: 2}
}

// Task represents a unit of work to be processed
type Task struct {
	ID          string
	ProcessFunc func(ctx context.Context) error
}

// Pool runs tasks on a fixed set of workers
type Pool struct {
	config PoolConfig
	logger *zap.Logger

	mu      sync.Mutex
	cond    *sync.Cond
	queue   []*Task
	started bool
	closed  bool

	// Coordination
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Statistics
	tasksSubmitted int64
	tasksCompleted int64
	tasksFailed    int64
	activeWorkers  int64
}

// NewPool creates a new worker pool with the given configuration
func NewPool(config PoolConfig, logger *zap.Logger) *Pool {
	if config.Workers <= 0 {
		config.Workers = DefaultPoolConfig().Workers
	}
	ctx, cancel := context.WithCancel(context.Background())

	p := &Pool{
		config: config,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Start launches the workers
func (p *Pool) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPoolClosed
	}
	if p.started {
		return nil
	}
	p.started = true

	for i := 0; i < p.config.Workers; i++ {
		p.wg.Add(1)
		go p.runWorker(i)
	}

	p.logger.Info("Worker pool started", zap.Int("workers", p.config.Workers))
	return nil
}

// runWorker runs the main worker loop. Workers drain the queue before exiting.
func (p *Pool) runWorker(id int) {
	defer p.wg.Done()

	logger := p.logger.With(zap.String("worker", fmt.Sprintf("job-%d", id)))
	logger.Debug("Worker started")
	defer logger.Debug("Worker stopped")

	for {
		task, ok := p.next()
		if !ok {
			return
		}

		atomic.AddInt64(&p.activeWorkers, 1)
		err := p.processTask(logger, task)
		atomic.AddInt64(&p.activeWorkers, -1)

		atomic.AddInt64(&p.tasksCompleted, 1)
		if err != nil {
			atomic.AddInt64(&p.tasksFailed, 1)
		}
	}
}

// next blocks until a task is queued. It reports false once the pool is closed and empty.
func (p *Pool) next() (*Task, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for len(p.queue) == 0 && !p.closed {
		p.cond.Wait()
	}
	if len(p.queue) == 0 {
		return nil, false
	}

	task := p.queue[0]
	p.queue[0] = nil
	p.queue = p.queue[1:]
	return task, true
}

// processTask executes a single task, recovering panics. Tasks observe
// shutdown through their context and are expected to return promptly.
func (p *Pool) processTask(logger *zap.Logger, task *Task) (err error) {
	startTime := time.Now()
	logger.Debug("Processing task", zap.String("task_id", task.ID))

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}

		duration := time.Since(startTime)
		if err != nil {
			logger.Error("Task failed",
				zap.String("task_id", task.ID),
				zap.Error(err),
				zap.Duration("duration", duration))
			return
		}
		logger.Debug("Task completed",
			zap.String("task_id", task.ID),
			zap.Duration("duration", duration))
	}()

	return task.ProcessFunc(p.ctx)
}

// Submit appends a task to the queue. It never blocks.
func (p *Pool) Submit(task *Task) error {
	if task == nil || task.ProcessFunc == nil {
		return fmt.Errorf("task has no process function")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPoolClosed
	}
	p.queue = append(p.queue, task)
	atomic.AddInt64(&p.tasksSubmitted, 1)
	p.cond.Signal()
	return nil
}

// Shutdown stops admission and cancels the context handed to tasks. Workers
// still run what is queued, so every submitted task gets to observe the
// cancellation. A pool that was never started drops its queue instead.
// It waits for the workers until ctx is done.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	started := p.started
	dropped := 0
	if !started {
		// no worker will ever drain the queue
		dropped = len(p.queue)
		p.queue = nil
	}
	p.cond.Broadcast()
	p.mu.Unlock()

	p.logger.Info("Shutting down worker pool")
	p.cancel()

	if !started {
		if dropped > 0 {
			p.logger.Warn("Pool was never started, dropping queued tasks", zap.Int("tasks", dropped))
		}
		return nil
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("All workers stopped gracefully")
		return nil
	case <-ctx.Done():
		p.logger.Warn("Shutdown timeout reached, workers still running")
		return ctx.Err()
	}
}

// Statistics returns current worker pool statistics
func (p *Pool) Statistics() PoolStats {
	p.mu.Lock()
	queued := len(p.queue)
	p.mu.Unlock()

	return PoolStats{
		Workers:        p.config.Workers,
		TasksSubmitted: atomic.LoadInt64(&p.tasksSubmitted),
		TasksCompleted: atomic.LoadInt64(&p.tasksCompleted),
		TasksFailed:    atomic.LoadInt64(&p.tasksFailed),
		ActiveWorkers:  atomic.LoadInt64(&p.activeWorkers),
		Queued:         queued,
	}
}

// PoolStats contains worker pool statistics
type PoolStats struct {
	Workers        int   `json:"workers"`
	TasksSubmitted int64 `json:"tasks_submitted"`
	TasksCompleted int64 `json:"tasks_completed"`
	TasksFailed    int64 `json:"tasks_failed"`
	ActiveWorkers  int64 `json:"active_workers"`
	Queued         int   `json:"queued"`
}
