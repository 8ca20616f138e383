// Package worker runs jobs serially per chat while allowing a bounded
// number of chats to be processed in parallel.
package worker

import (
	"context"
	"sync"
)

type Options[J any] struct {
	// MaxConcurrency bounds how many jobs run at once across all chats.
	MaxConcurrency int
	// QueueLen is the per-chat job buffer.
	QueueLen int
	Handle   func(context.Context, J)
}

// Pool owns one goroutine per chat. Jobs for the same chat execute in
// enqueue order; jobs for different chats may interleave up to the
// concurrency bound.
type Pool[J any] struct {
	ctx    context.Context
	sem    chan struct{}
	queue  int
	handle func(context.Context, J)

	mu      sync.Mutex
	workers map[int64]chan J
	wg      sync.WaitGroup
}

func NewPool[J any](ctx context.Context, opts Options[J]) *Pool[J] {
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = 3
	}
	if opts.QueueLen <= 0 {
		opts.QueueLen = 16
	}
	return &Pool[J]{
		ctx:     ctx,
		sem:     make(chan struct{}, opts.MaxConcurrency),
		queue:   opts.QueueLen,
		handle:  opts.Handle,
		workers: make(map[int64]chan J),
	}
}

// Dispatch enqueues a job for the chat, starting its worker on first
// use. Returns the context error once the pool is shut down.
func (p *Pool[J]) Dispatch(ctx context.Context, chatID int64, job J) error {
	if ctx == nil {
		ctx = p.ctx
	}

	p.mu.Lock()
	jobs, ok := p.workers[chatID]
	if !ok {
		jobs = make(chan J, p.queue)
		p.workers[chatID] = jobs
		p.wg.Add(1)
		go p.run(jobs)
	}
	p.mu.Unlock()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-p.ctx.Done():
		return p.ctx.Err()
	case jobs <- job:
		return nil
	}
}

func (p *Pool[J]) run(jobs <-chan J) {
	defer p.wg.Done()
	for {
		select {
		case <-p.ctx.Done():
			return
		case job := <-jobs:
			select {
			case p.sem <- struct{}{}:
			case <-p.ctx.Done():
				return
			}
			func() {
				defer func() { <-p.sem }()
				p.handle(p.ctx, job)
			}()
		}
	}
}

// Wait blocks until every worker goroutine has observed the pool
// context cancellation and exited.
func (p *Pool[J]) Wait() {
	p.wg.Wait()
}
