package worker

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	ErrPoolExhausted    = errors.New("worker pool exhausted")
	ErrPoolClosed       = errors.New("worker pool closed")
	ErrCancelled        = errors.New("operation cancelled")
	ErrOperationTimeout = errors.New("operation timed out")
	ErrPanicked         = errors.New("operation panicked")
)

// OperationFailed wraps whatever an offloaded operation returned, unchanged.
type OperationFailed struct {
	Cause error
}

func (e *OperationFailed) Error() string { return "operation failed: " + e.Cause.Error() }
func (e *OperationFailed) Unwrap() error { return e.Cause }

// Future is the result handle of one submitted operation.
type Future[T any] struct {
	done     chan struct{}
	val      T
	err      error
	deadline time.Time
}

func (f *Future[T]) complete(v T, err error) {
	f.val, f.err = v, err
	close(f.done)
}

// Done is closed once the operation has finished, failed or been dropped.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

// Await blocks until the operation finishes, ctx is done, or the pool's
// operation timeout passes. Giving up does not stop the operation.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	var zero T
	select {
	case <-f.done:
		return f.val, f.err
	default:
	}

	var timeout <-chan time.Time
	if !f.deadline.IsZero() {
		t := time.NewTimer(time.Until(f.deadline))
		defer t.Stop()
		timeout = t.C
	}
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		return zero, fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
	case <-timeout:
		return zero, ErrOperationTimeout
	}
}

// Submit queues op and returns immediately. It fails with ErrPoolExhausted
// when the queue is full and ErrPoolClosed after Shutdown.
func Submit[T any](p *Pool, op func() (T, error)) (*Future[T], error) {
	now := time.Now()
	f := &Future[T]{done: make(chan struct{})}
	if p.cfg.OperationTimeout > 0 {
		f.deadline = now.Add(p.cfg.OperationTimeout)
	}
	t := task{
		submittedAt: now,
		run: func() error {
			v, err := call(op)
			f.complete(v, err)
			return err
		},
		abort: func(err error) {
			var zero T
			f.complete(zero, err)
		},
	}
	if err := p.enqueue(t); err != nil {
		return nil, err
	}
	return f, nil
}

// Run submits op and waits for its result.
func Run[T any](ctx context.Context, p *Pool, op func() (T, error)) (T, error) {
	f, err := Submit(p, op)
	if err != nil {
		var zero T
		return zero, err
	}
	return f.Await(ctx)
}

// Exec is Run for operations without a result.
func Exec(ctx context.Context, p *Pool, op func() error) error {
	_, err := Run(ctx, p, func() (struct{}, error) {
		return struct{}{}, op()
	})
	return err
}

func call[T any](op func() (T, error)) (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero T
			v, err = zero, &OperationFailed{Cause: fmt.Errorf("%w: %v", ErrPanicked, r)}
		}
	}()
	v, err = op()
	if err != nil {
		var zero T
		return zero, &OperationFailed{Cause: err}
	}
	return v, nil
}
