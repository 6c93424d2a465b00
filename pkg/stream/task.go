package stream

import (
	"context"
	"errors"
)

// Task is a future paired with an abort signal. Cancellation is cooperative:
// the task function is expected to observe its context at suspension points.
type Task[T any] struct {
	done   chan struct{}
	cancel context.CancelFunc
	result T
	err    error
}

// Go runs fn in a new goroutine and returns a handle to await or cancel it.
// The context passed to fn is derived from ctx and cancelled by Task.Cancel.
func Go[T any](ctx context.Context, fn func(ctx context.Context) (T, error)) *Task[T] {
	tctx, cancel := context.WithCancel(ctx)
	t := &Task[T]{
		done:   make(chan struct{}),
		cancel: cancel,
	}
	go func() {
		defer close(t.done)
		defer cancel()
		t.result, t.err = fn(tctx)
	}()
	return t
}

// Done returns a channel closed when the task finishes.
func (t *Task[T]) Done() <-chan struct{} {
	return t.done
}

// Cancel requests cooperative cancellation. It does not wait.
func (t *Task[T]) Cancel() {
	t.cancel()
}

// Wait blocks until the task finishes or ctx is cancelled.
func (t *Task[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-t.done:
		return t.result, t.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// GracefulCancel cancels the task and waits for it to finish, swallowing the
// resulting cancellation error. Any other task error is returned.
func (t *Task[T]) GracefulCancel(ctx context.Context) error {
	t.cancel()
	_, err := t.Wait(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
