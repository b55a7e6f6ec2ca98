// Package workerpool provides a bounded pool for CPU-bound work.
// Scoring a request's candidates is synchronous and CPU-bound; the pool
// caps how much of it runs at once so a single large request cannot
// starve the others. No external dependencies - uses only standard library.
package workerpool

import (
	"context"
	"errors"
	"runtime"
	"sync"
)

// ErrPoolClosed is returned when work is submitted to a closed pool.
var ErrPoolClosed = errors.New("workerpool: pool is closed")

// Task is a unit of work executed on the pool.
type Task func(ctx context.Context) error

// Pool bounds the number of concurrently executing tasks.
// The zero value is not usable; use New.
type Pool struct {
	sem    chan struct{}
	mu     sync.Mutex
	closed bool
}

// New creates a Pool allowing up to size concurrent tasks.
// A size of 0 or less defaults to runtime.NumCPU().
func New(size int) *Pool {
	if size <= 0 {
		size = runtime.NumCPU()
	}
	return &Pool{
		sem: make(chan struct{}, size),
	}
}

// Size returns the maximum number of concurrent tasks.
func (p *Pool) Size() int {
	return cap(p.sem)
}

// Execute runs the task on the pool, blocking until a slot is available
// or the context is cancelled. The task runs in the calling goroutine,
// so the caller observes the result directly.
func (p *Pool) Execute(ctx context.Context, task Task) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPoolClosed
	}
	p.mu.Unlock()

	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-p.sem }()

	return task(ctx)
}

// RunAll executes all tasks across the pool and waits for completion.
// The first error encountered is returned; remaining tasks still run to
// completion so partially written shared state is never abandoned mid-task.
func (p *Pool) RunAll(ctx context.Context, tasks []Task) error {
	if len(tasks) == 0 {
		return nil
	}

	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)

	for _, task := range tasks {
		task := task
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := p.Execute(ctx, task); err != nil {
				errOnce.Do(func() { firstErr = err })
			}
		}()
	}

	wg.Wait()
	return firstErr
}

// Close marks the pool as closed. Tasks already running are unaffected;
// new submissions fail with ErrPoolClosed.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
}
