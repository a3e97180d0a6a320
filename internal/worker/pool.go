package worker

import (
	"context"
	"sync"
)

// Task is one unit of work producing a result of type T.
type Task[T any] func(ctx context.Context) T

// Pool runs tasks over a fixed number of goroutines and collects
// results in completion order.
type Pool[T any] struct {
	workers int
	tasks   chan Task[T]
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu      sync.Mutex
	results []T
}

// NewPool creates a pool with the given parallelism. Tasks receive a
// context derived from ctx; cancelling it abandons queued work.
func NewPool[T any](ctx context.Context, workers int) *Pool[T] {
	if workers <= 0 {
		workers = 1
	}

	ctx, cancel := context.WithCancel(ctx)

	return &Pool[T]{
		workers: workers,
		tasks:   make(chan Task[T], workers*2), // Buffered so small fan-outs never block
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start launches the workers.
func (p *Pool[T]) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

func (p *Pool[T]) worker() {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case task, ok := <-p.tasks:
			if !ok {
				return
			}
			result := task(p.ctx)
			p.mu.Lock()
			p.results = append(p.results, result)
			p.mu.Unlock()
		}
	}
}

// Submit queues one task, blocking for a free slot when every worker
// is busy and the queue is full. Submissions after cancellation are
// dropped.
func (p *Pool[T]) Submit(task Task[T]) {
	select {
	case <-p.ctx.Done():
		return
	case p.tasks <- task:
	}
}

// Wait closes the queue, lets the workers drain it, and returns every
// result. No Submit may follow.
func (p *Pool[T]) Wait() []T {
	close(p.tasks)
	p.wg.Wait()

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.results
}

// Shutdown abandons queued tasks and waits for in-flight ones.
func (p *Pool[T]) Shutdown() {
	p.cancel()
	p.wg.Wait()
}
