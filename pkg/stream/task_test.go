package stream

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/matryer/is"
)

func TestTask_WaitReturnsResult(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	task := Go(ctx, func(ctx context.Context) (int, error) {
		return 7, nil
	})

	v, err := task.Wait(ctx)
	is.NoErr(err)
	is.Equal(v, 7)
}

func TestTask_GracefulCancelSwallowsCancellation(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	task := Go(ctx, func(ctx context.Context) (struct{}, error) {
		<-ctx.Done()
		return struct{}{}, ctx.Err()
	})

	is.NoErr(task.GracefulCancel(ctx))
}

func TestTask_GracefulCancelSurfacesRealErrors(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	boom := errors.New("boom")
	task := Go(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, boom
	})
	<-task.Done()

	is.Equal(task.GracefulCancel(ctx), boom)
}

func TestTask_CancelIsCooperative(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	started := make(chan struct{})
	task := Go(ctx, func(ctx context.Context) (struct{}, error) {
		close(started)
		select {
		case <-ctx.Done():
			return struct{}{}, ctx.Err()
		case <-time.After(5 * time.Second):
			return struct{}{}, errors.New("never cancelled")
		}
	})

	<-started
	task.Cancel()

	_, err := task.Wait(ctx)
	is.True(errors.Is(err, context.Canceled))
}
