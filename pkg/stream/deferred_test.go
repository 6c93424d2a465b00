package stream

import (
	"context"
	"testing"
	"time"

	"github.com/matryer/is"
)

func TestDeferred_ReadBlocksUntilSourceAttached(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	src := NewMailbox[string](4)
	is.NoErr(src.Put(ctx, "hello"))

	d := NewDeferred[string]()
	got := make(chan string, 1)
	go func() {
		v, err := d.Read(ctx)
		if err == nil {
			got <- v
		}
	}()

	select {
	case <-got:
		t.Fatal("Read should block before a source is attached")
	case <-time.After(20 * time.Millisecond):
	}

	is.NoErr(d.SetSource(src))

	select {
	case v := <-got:
		is.Equal(v, "hello")
	case <-time.After(time.Second):
		t.Fatal("Read did not complete after SetSource")
	}
}

func TestDeferred_SetSourceTwiceFails(t *testing.T) {
	is := is.New(t)

	d := NewDeferred[int]()
	is.NoErr(d.SetSource(NewMailbox[int](1)))
	is.Equal(d.SetSource(NewMailbox[int](1)), ErrSourceAlreadySet)

	d.DetachSource()
	// Still set-once even after detach.
	is.Equal(d.SetSource(NewMailbox[int](1)), ErrSourceAlreadySet)
}

func TestDeferred_EmptySourceReturnsDone(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	src := NewMailbox[int](1)
	src.Close()

	d := NewDeferred[int]()
	is.NoErr(d.SetSource(src))

	_, err := d.Read(ctx)
	is.Equal(err, ErrDone)
}

func TestDeferred_DetachReleasesBlockedReader(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	src := NewMailbox[int](1)
	d := NewDeferred[int]()
	is.NoErr(d.SetSource(src))

	errs := make(chan error, 1)
	go func() {
		_, err := d.Read(ctx)
		errs <- err
	}()

	time.Sleep(10 * time.Millisecond)
	d.DetachSource()

	select {
	case err := <-errs:
		is.Equal(err, ErrDone)
	case <-time.After(time.Second):
		t.Fatal("blocked Read did not complete after detach")
	}

	// The source is untouched: a later Put is still readable elsewhere.
	is.NoErr(src.Put(ctx, 7))
	is.Equal(src.Len(), 1)
}

// Transfer: read part of a source through one deferred, detach, then attach
// the same source to a second deferred and read the remainder.
func TestDeferred_SourceTransferResumes(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	src := NewMailbox[string](8)
	go func() {
		for _, s := range []string{"a", "b", "c", "d"} {
			src.Put(ctx, s)
			time.Sleep(20 * time.Millisecond)
		}
		src.Close()
	}()

	d1 := NewDeferred[string]()
	is.NoErr(d1.SetSource(src))

	for _, want := range []string{"a", "b"} {
		v, err := d1.Read(ctx)
		is.NoErr(err)
		is.Equal(v, want)
	}
	d1.DetachSource()

	_, err := d1.Read(ctx)
	is.Equal(err, ErrDone) // d1 is finished

	d2 := NewDeferred[string]()
	is.NoErr(d2.SetSource(src))

	var rest []string
	for {
		v, err := d2.Read(ctx)
		if err == ErrDone {
			break
		}
		is.NoErr(err)
		rest = append(rest, v)
	}
	is.Equal(rest, []string{"c", "d"}) // remainder in order
}
