package net

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

var (
	// ErrPoolSize is returned by NewPool for a pool without workers.
	ErrPoolSize = errors.New("net: worker pool size must be positive")
	// ErrPoolFull is returned by TrySubmit when the job queue is full.
	ErrPoolFull = errors.New("net: worker pool queue full")
	// ErrPoolClosed is returned for submissions after Close.
	ErrPoolClosed = errors.New("net: worker pool closed")
)

// Job is one unit of work, usually serving one connection.
type Job func()

// Pool runs jobs on a fixed number of worker goroutines fed by a bounded
// queue. A worker serving a stream stays busy for the life of the stream.
// Admission is counted in slots, one per worker plus one per queue entry,
// so a job is refused only when every worker is busy and the queue is full.
type Pool struct {
	jobs  chan Job
	slots chan struct{}
	size  int
	wg   sync.WaitGroup

	mu     sync.RWMutex // guards closed against sends on a closed queue
	closed bool

	busy atomic.Int64
	log  *zap.Logger
}

// NewPool starts size workers. queue is the number of jobs that may wait
// for a free worker.
func NewPool(size, queue int, log *zap.Logger) (*Pool, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrPoolSize, size)
	}
	if queue < 0 {
		queue = 0
	}
	p := &Pool{
		jobs:  make(chan Job, size+queue),
		slots: make(chan struct{}, size+queue),
		size:  size,
		log:   log,
	}
	p.wg.Add(size)
	for i := 0; i < size; i++ {
		go p.worker(i)
	}
	return p, nil
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	for job := range p.jobs {
		p.busy.Add(1)
		p.run(id, job)
		p.busy.Add(-1)
		<-p.slots
	}
	p.log.Debug("worker stopped", zap.Int("worker", id))
}

// run executes job with panic recovery so one bad connection cannot take
// a worker down.
func (p *Pool) run(id int, job Job) {
	defer func() {
		if rec := recover(); rec != nil {
			p.log.Error("job panic recovered", zap.Int("worker", id), zap.Any("panic", rec))
		}
	}()
	job()
}

// Submit queues job, blocking while the queue is full.
func (p *Pool) Submit(ctx context.Context, job Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}
	select {
	case p.slots <- struct{}{}:
		p.jobs <- job
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TrySubmit queues job without blocking. It fails with ErrPoolFull only
// when no worker is idle and the queue is full.
func (p *Pool) TrySubmit(job Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}
	select {
	case p.slots <- struct{}{}:
		p.jobs <- job
		return nil
	default:
		return ErrPoolFull
	}
}

// Close stops accepting jobs, lets the workers finish everything already
// queued and waits for them to exit.
func (p *Pool) Close() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.jobs)
	}
	p.mu.Unlock()
	p.wg.Wait()
}

// Size returns the number of workers.
func (p *Pool) Size() int { return p.size }

// Busy returns the number of workers currently running a job.
func (p *Pool) Busy() int { return int(p.busy.Load()) }

// Queued returns the number of jobs waiting for a worker.
func (p *Pool) Queued() int { return len(p.jobs) }
