package stream

import (
	"context"
	"testing"
	"time"

	"github.com/matryer/is"
)

func TestMailbox_OrderPreserved(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	m := NewMailbox[string](4)
	is.NoErr(m.Put(ctx, "a"))
	is.NoErr(m.Put(ctx, "b"))
	is.NoErr(m.Put(ctx, "c"))

	for _, want := range []string{"a", "b", "c"} {
		got, err := m.Get(ctx)
		is.NoErr(err)
		is.Equal(got, want) // FIFO order
	}
}

func TestMailbox_SameReferenceRoundTrip(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	type payload struct{ n int }
	m := NewMailbox[*payload](1)
	p := &payload{n: 42}
	is.NoErr(m.Put(ctx, p))

	got, err := m.Get(ctx)
	is.NoErr(err)
	is.True(got == p) // must be the same reference, not a copy
}

func TestMailbox_PutBlocksWhenFull(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	m := NewMailbox[int](1)
	is.NoErr(m.Put(ctx, 1))

	blocked := make(chan error, 1)
	go func() {
		blocked <- m.Put(ctx, 2)
	}()

	select {
	case <-blocked:
		t.Fatal("Put should block while mailbox is full")
	case <-time.After(20 * time.Millisecond):
	}

	got, err := m.Get(ctx)
	is.NoErr(err)
	is.Equal(got, 1)

	select {
	case err := <-blocked:
		is.NoErr(err) // Put unblocks after Get frees a slot
	case <-time.After(time.Second):
		t.Fatal("Put did not unblock")
	}
}

func TestMailbox_GetRespectsContext(t *testing.T) {
	is := is.New(t)

	m := NewMailbox[int](1)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := m.Get(ctx)
	is.Equal(err, context.DeadlineExceeded)
}

func TestMailbox_CloseDeliversBufferedItems(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	m := NewMailbox[int](4)
	is.NoErr(m.Put(ctx, 1))
	is.NoErr(m.Put(ctx, 2))
	m.Close()
	m.Close() // idempotent

	is.Equal(m.Put(ctx, 3), ErrClosed)

	got, err := m.Get(ctx)
	is.NoErr(err)
	is.Equal(got, 1)
	got, err = m.Get(ctx)
	is.NoErr(err)
	is.Equal(got, 2)

	_, err = m.Get(ctx)
	is.Equal(err, ErrDone) // drained then done
}

func TestMailbox_CloseUnblocksWaiters(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	m := NewMailbox[int](1)
	errs := make(chan error, 1)
	go func() {
		_, err := m.Get(ctx)
		errs <- err
	}()

	time.Sleep(10 * time.Millisecond)
	m.Close()

	select {
	case err := <-errs:
		is.Equal(err, ErrDone)
	case <-time.After(time.Second):
		t.Fatal("Get did not unblock on Close")
	}
}
