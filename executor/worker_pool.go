package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"arenaengine/metrics"

	logrus "github.com/sirupsen/logrus"
)

var (
	ErrQueueFull  = errors.New("job queue full")
	ErrPoolClosed = errors.New("worker pool is shut down")
)

// WorkerPool bounds how many executions run at once. Jobs beyond the queue
// capacity are rejected instead of waiting.
type WorkerPool struct {
	jobs         chan Job
	engine       Executor
	logger       *logrus.Logger
	maxWorkers   int
	maxJobCount  int
	wg           sync.WaitGroup
	shutdownChan chan struct{}

	mu     sync.RWMutex
	closed bool
}

// NewWorkerPool initializes a new worker pool in front of engine
func NewWorkerPool(engine Executor, maxWorkers, maxJobCount int, logger *logrus.Logger) *WorkerPool {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	if maxJobCount < 1 {
		maxJobCount = 1
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	pool := &WorkerPool{
		jobs:         make(chan Job, maxJobCount),
		engine:       engine,
		logger:       logger,
		maxWorkers:   maxWorkers,
		maxJobCount:  maxJobCount,
		shutdownChan: make(chan struct{}),
	}

	for i := 0; i < maxWorkers; i++ {
		pool.wg.Add(1)
		go pool.worker(i + 1)
	}

	return pool
}

// worker processes jobs from the queue
func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()
	p.logger.Debugf("Worker %d started", id)

	for {
		select {
		case job := <-p.jobs:
			metrics.QueueDepth.Set(float64(len(p.jobs)))
			p.executeJob(id, job)
		case <-p.shutdownChan:
			p.logger.Debugf("Worker %d received shutdown signal", id)
			return
		}
	}
}

// executeJob handles the execution of a single job
func (p *WorkerPool) executeJob(workerID int, job Job) {
	metrics.ActiveWorkers.Inc()
	defer metrics.ActiveWorkers.Dec()

	if err := job.ctx.Err(); err != nil {
		job.Result <- Result{Err: err}
		return
	}

	defer func() {
		if r := recover(); r != nil {
			p.logger.WithFields(logrus.Fields{
				"worker":   workerID,
				"language": job.Request.Language,
				"panic":    r,
			}).Error("Execution panicked")
			job.Result <- Result{Err: fmt.Errorf("execution panicked: %v", r)}
		}
	}()

	res, err := p.engine.Execute(job.ctx, job.Request)
	p.logger.WithFields(logrus.Fields{
		"worker":    workerID,
		"workspace": res.WorkspaceID,
		"language":  job.Request.Language,
		"verdict":   res.Verdict,
		"duration":  res.Duration,
	}).Debug("Job completed")
	job.Result <- Result{Execution: res, Err: err}
}

// Execute queues req and blocks until a worker has run it. It returns
// ErrQueueFull without waiting when the queue is at capacity.
func (p *WorkerPool) Execute(ctx context.Context, req ExecutionRequest) (ExecutionResult, error) {
	result := make(chan Result, 1)
	job := Job{ctx: ctx, Request: req, Result: result}

	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return ExecutionResult{}, ErrPoolClosed
	}
	select {
	case p.jobs <- job:
		metrics.QueueDepth.Set(float64(len(p.jobs)))
		p.mu.RUnlock()
	default:
		p.mu.RUnlock()
		metrics.QueueRejections.Inc()
		return ExecutionResult{}, fmt.Errorf("%w, max capacity: %d", ErrQueueFull, p.maxJobCount)
	}

	r := <-result
	return r.Execution, r.Err
}

// Shutdown stops the workers after their current job. Jobs still queued
// are answered with ErrPoolClosed.
func (p *WorkerPool) Shutdown() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.shutdownChan)
	p.mu.Unlock()

	p.logger.Info("Shutting down worker pool...")
	p.wg.Wait()

	for {
		select {
		case job := <-p.jobs:
			job.Result <- Result{Err: ErrPoolClosed}
		default:
			metrics.QueueDepth.Set(0)
			p.logger.Info("Worker pool shutdown complete")
			return
		}
	}
}
