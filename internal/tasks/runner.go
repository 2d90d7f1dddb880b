// Package tasks runs fire-and-forget side effects (notification fan-out and
// similar) on a bounded set of goroutines, logging failures in one place.
package tasks

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/anonto42/folio/backend/internal/metrics"
	"golang.org/x/sync/semaphore"
)

// ErrClosed is returned by Go after Close.
var ErrClosed = errors.New("tasks: runner closed")

// ErrBusy is returned by TryGo when every slot is taken.
var ErrBusy = errors.New("tasks: runner saturated")

// Func is a unit of background work. The context is detached from the request
// that scheduled it and bounded by the runner's task timeout.
type Func func(ctx context.Context) error

// Runner executes Funcs with at most a fixed number in flight.
type Runner struct {
	sem     *semaphore.Weighted
	wg      sync.WaitGroup
	logger  *slog.Logger
	metrics metrics.Recorder
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	base   context.Context
	cancel context.CancelFunc
}

// Option configures a Runner.
type Option func(*Runner)

// WithTimeout bounds each task's context. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(r *Runner) { r.timeout = d }
}

// WithMetrics reports task outcomes.
func WithMetrics(m metrics.Recorder) Option {
	return func(r *Runner) { r.metrics = m }
}

// New creates a Runner allowing concurrency tasks at once.
func New(concurrency int, logger *slog.Logger, opts ...Option) *Runner {
	if concurrency < 1 {
		concurrency = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	base, cancel := context.WithCancel(context.Background())
	r := &Runner{
		sem:     semaphore.NewWeighted(int64(concurrency)),
		logger:  logger,
		metrics: metrics.Nop{},
		timeout: 30 * time.Second,
		base:    base,
		cancel:  cancel,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Go schedules fn. It blocks only while the runner is saturated and returns
// once the task has a slot; the task's own error is logged, not returned.
func (r *Runner) Go(ctx context.Context, name string, fn Func) error {
	return r.schedule(name, fn, func() error { return r.sem.Acquire(ctx, 1) })
}

// TryGo schedules fn only if a slot is free right now and returns ErrBusy
// otherwise. Callers that may run inside a task use it.
func (r *Runner) TryGo(name string, fn Func) error {
	return r.schedule(name, fn, func() error {
		if !r.sem.TryAcquire(1) {
			return ErrBusy
		}
		return nil
	})
}

func (r *Runner) schedule(name string, fn Func, acquire func() error) error {
	r.mu.RLock()
	if r.closed {
		r.mu.RUnlock()
		return ErrClosed
	}
	r.wg.Add(1)
	r.mu.RUnlock()

	if err := acquire(); err != nil {
		r.wg.Done()
		return err
	}

	go func() {
		defer r.wg.Done()
		defer r.sem.Release(1)
		r.run(name, fn)
	}()
	return nil
}

func (r *Runner) run(name string, fn Func) {
	ctx := r.base
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("background task panicked", "task", name, "panic", p)
			r.metrics.RecordTask(name, "panic")
		}
	}()

	if err := fn(ctx); err != nil {
		r.logger.Warn("background task failed", "task", name, "error", err)
		r.metrics.RecordTask(name, "failed")
		return
	}
	r.metrics.RecordTask(name, "ok")
}

// Wait blocks until every scheduled task has finished.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// Close stops accepting tasks and waits for running ones until ctx expires,
// after which their contexts are cancelled.
func (r *Runner) Close(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		r.cancel()
		return nil
	case <-ctx.Done():
		r.cancel()
		<-done
		return ctx.Err()
	}
}
