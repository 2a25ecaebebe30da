// Package task provides the worker pool and future abstraction behind
// the asynchronous operation contract: every adapter call runs off the
// goroutine that issues it, and the result comes back through a
// Handle the caller may wait on or abandon.
package task

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrPoolClosed is returned for work submitted after Close.
var ErrPoolClosed = errors.New("task: pool closed")

// defaultQueueDepth is the submission buffer. Submissions beyond it
// block the submitter until a worker drains the queue.
const defaultQueueDepth = 64

// Pool executes submitted functions on a fixed set of workers.
type Pool struct {
	jobs   chan func()
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewPool starts a pool with the given worker count.
func NewPool(workers int, logger *slog.Logger) *Pool {
	if logger == nil {
		logger = slog.Default()
	}

	if workers < 1 {
		workers = 1
	}

	p := &Pool{
		jobs:   make(chan func(), defaultQueueDepth),
		logger: logger,
	}

	p.wg.Add(workers)

	for range workers {
		go func() {
			defer p.wg.Done()

			for job := range p.jobs {
				job()
			}
		}()
	}

	return p
}

// Close stops accepting work and waits for in-flight jobs to finish.
// In-flight network operations are not canceled — abandoned results
// are simply dropped.
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

// submit enqueues a job. Returns false when the pool is closed.
func (p *Pool) submit(job func()) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return false
	}

	p.jobs <- job

	return true
}

// Handle is the future for one submitted operation. A caller that
// loses interest simply stops waiting; the operation still completes
// and its result is dropped.
type Handle[T any] struct {
	id   string
	done chan struct{}

	result T
	err    error
}

// ID is the task's correlation id, present in pool log lines.
func (h *Handle[T]) ID() string {
	return h.id
}

// Done is closed when the result is available.
func (h *Handle[T]) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the result is available or ctx is canceled.
// Cancellation abandons the wait, not the operation.
func (h *Handle[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-h.done:
		return h.result, h.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Submit schedules fn on the pool and returns its Handle. fn receives
// the submitter's context; cancellation semantics are whatever fn's
// underlying operation provides.
func Submit[T any](p *Pool, ctx context.Context, name string, fn func(context.Context) (T, error)) *Handle[T] {
	h := &Handle[T]{
		id:   uuid.NewString(),
		done: make(chan struct{}),
	}

	start := time.Now()

	ok := p.submit(func() {
		defer close(h.done)

		p.logger.Debug("task started",
			slog.String("task", name),
			slog.String("task_id", h.id),
			slog.Duration("queued", time.Since(start)),
		)

		h.result, h.err = fn(ctx)

		if h.err != nil {
			p.logger.Debug("task failed",
				slog.String("task", name),
				slog.String("task_id", h.id),
				slog.String("error", h.err.Error()),
			)

			return
		}

		p.logger.Debug("task complete",
			slog.String("task", name),
			slog.String("task_id", h.id),
			slog.Duration("elapsed", time.Since(start)),
		)
	})
	if !ok {
		h.err = ErrPoolClosed
		close(h.done)
	}

	return h
}
