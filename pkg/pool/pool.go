// Package pool runs blocking calls on a fixed set of worker goroutines
// with a bounded submission queue. Metric collection shells out and reads
// procfs; the pool keeps that work off the request goroutines and puts a
// hard ceiling on how much of it runs at once.
package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
)

var (
	// ErrSaturated means the submission queue is full. Callers should
	// surface this as overload rather than block.
	ErrSaturated = errors.New("pool saturated")

	// ErrClosed means the pool has been shut down.
	ErrClosed = errors.New("pool closed")
)

const (
	maxWorkers  = 16
	queueFactor = 4
)

// Result carries the outcome of one submitted call.
type Result struct {
	Value any
	Err   error
}

// Task is a blocking call to run on a pool worker.
type Task func() (any, error)

type job struct {
	task Task
	out  chan Result
}

// Pool executes tasks on a fixed number of worker goroutines.
type Pool struct {
	jobs chan job
	wg   sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// New creates and starts a pool with workers goroutines. Zero or negative
// workers selects min(2*GOMAXPROCS, 16). The queue holds four times the
// worker count.
func New(workers int) *Pool {
	if workers <= 0 {
		workers = 2 * runtime.GOMAXPROCS(0)
		if workers > maxWorkers {
			workers = maxWorkers
		}
	}

	p := &Pool{
		jobs: make(chan job, queueFactor*workers),
	}
	for range workers {
		p.wg.Add(1)
		go p.worker()
	}

	slog.Debug("offload pool started", "workers", workers, "queue", cap(p.jobs))
	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for j := range p.jobs {
		j.out <- run(j.task)
	}
}

// run executes one task, converting a panic into an error so a misbehaving
// collector cannot take the worker down.
func run(task Task) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = Result{Err: fmt.Errorf("task panic: %v", r)}
			slog.Error("offload pool: task panicked", "panic", r)
		}
	}()

	v, err := task()
	return Result{Value: v, Err: err}
}

// Submit enqueues task and returns a channel that delivers its single
// Result. It never blocks: a full queue fails with ErrSaturated.
func (p *Pool) Submit(task Task) (<-chan Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrClosed
	}

	out := make(chan Result, 1)
	select {
	case p.jobs <- job{task: task, out: out}:
		return out, nil
	default:
		return nil, ErrSaturated
	}
}

// Do submits task and waits for its result or for ctx. On cancellation the
// task may still run to completion on its worker; its result is discarded.
func (p *Pool) Do(ctx context.Context, task Task) (any, error) {
	out, err := p.Submit(task)
	if err != nil {
		return nil, err
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-out:
		return res.Value, res.Err
	}
}

// Close stops accepting tasks and waits for queued work to drain.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()

	p.wg.Wait()
}
