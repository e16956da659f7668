package worker

import (
	"context"
	"sync"
)

// Job represents a unit of work to be executed
type Job interface {
	Execute(ctx context.Context) Result
}

// Result represents the result of a job execution
type Result interface {
	GetError() error
}

// CancelledResult stands in for a job that never ran
type CancelledResult struct {
	Err error
}

// GetError returns the cancellation cause
func (r *CancelledResult) GetError() error {
	return r.Err
}

type indexedJob struct {
	idx int
	job Job
}

// Pool runs jobs on a fixed number of workers. Wait returns results in
// submission order.
type Pool struct {
	workers    int
	jobQueue   chan indexedJob
	results    []Result
	mu         sync.Mutex
	wg         sync.WaitGroup
	ctx        context.Context
	cancelFunc context.CancelFunc
	closeOnce  sync.Once
}

// NewPool creates a new worker pool with the specified number of workers
func NewPool(workers int) *Pool {
	return NewPoolWithContext(context.Background(), workers)
}

// NewPoolWithContext creates a pool whose jobs stop when ctx is cancelled
func NewPoolWithContext(ctx context.Context, workers int) *Pool {
	if workers <= 0 {
		workers = 1
	}

	ctx, cancel := context.WithCancel(ctx)

	return &Pool{
		workers:    workers,
		jobQueue:   make(chan indexedJob, workers*2),
		ctx:        ctx,
		cancelFunc: cancel,
	}
}

// Start starts the worker pool
func (p *Pool) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case ij, ok := <-p.jobQueue:
			if !ok {
				return
			}
			if p.ctx.Err() != nil {
				return
			}
			result := ij.job.Execute(p.ctx)

			p.mu.Lock()
			p.results[ij.idx] = result
			p.mu.Unlock()
		}
	}
}

// Submit queues a job. It returns without queuing once the pool is shut down.
func (p *Pool) Submit(job Job) {
	if p.ctx.Err() != nil {
		return
	}

	p.mu.Lock()
	idx := len(p.results)
	p.results = append(p.results, nil)
	p.mu.Unlock()

	select {
	case <-p.ctx.Done():
	case p.jobQueue <- indexedJob{idx: idx, job: job}:
	}
}

// Wait closes the queue, waits for workers and returns one result per
// submitted job. Jobs skipped by cancellation get a CancelledResult.
func (p *Pool) Wait() []Result {
	p.closeQueue()
	p.wg.Wait()
	defer p.cancelFunc()

	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]Result, len(p.results))
	for i, r := range p.results {
		if r == nil {
			r = &CancelledResult{Err: context.Cause(p.ctx)}
		}
		out[i] = r
	}
	return out
}

// Shutdown stops the pool. Queued jobs that have not started are skipped.
func (p *Pool) Shutdown() {
	p.cancelFunc()
	p.wg.Wait()
}

func (p *Pool) closeQueue() {
	p.closeOnce.Do(func() {
		close(p.jobQueue)
	})
}
