package connpool

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/matryer/is"
)

type fakeConn struct{ id int }

type counters struct {
	mu        sync.Mutex
	connected int
	closed    int
}

func newTestPool(c *counters, opts Options[*fakeConn]) *Pool[*fakeConn] {
	opts.Connect = func(ctx context.Context) (*fakeConn, error) {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.connected++
		return &fakeConn{id: c.connected}, nil
	}
	opts.Close = func(conn *fakeConn) error {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.closed++
		return nil
	}
	return New(opts)
}

func (c *counters) counts() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected, c.closed
}

func TestPool_ReusesIdleConnection(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	var c counters
	p := newTestPool(&c, Options[*fakeConn]{})

	conn, err := p.Get(ctx)
	is.NoErr(err)
	p.Put(conn)

	again, err := p.Get(ctx)
	is.NoErr(err)
	is.True(again == conn) // same handle comes back

	connected, _ := c.counts()
	is.Equal(connected, 1)
}

func TestPool_GetSkipsInvalidatedEntryForLaterValidOne(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	var c counters
	p := newTestPool(&c, Options[*fakeConn]{})

	// Park one handle, invalidate it, then park a fresh valid one behind it.
	stale, err := p.Get(ctx)
	is.NoErr(err)
	p.Put(stale)
	p.Invalidate()

	fresh, err := p.Get(ctx)
	is.NoErr(err)
	p.Put(fresh)

	got, err := p.Get(ctx)
	is.NoErr(err)
	is.True(got == fresh) // scanned past the invalidated entry

	connected, _ := c.counts()
	is.Equal(connected, 2) // no needless rebuild

	p.Put(got)
	p.Close()
	_, closed := c.counts()
	is.Equal(closed, 2) // the invalidated handle still closes exactly once
}

func TestPool_MaxSessionDurationEvicts(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	var c counters
	p := newTestPool(&c, Options[*fakeConn]{MaxSessionDuration: 10 * time.Millisecond})

	conn, err := p.Get(ctx)
	is.NoErr(err)
	p.Put(conn)

	time.Sleep(20 * time.Millisecond)

	fresh, err := p.Get(ctx)
	is.NoErr(err)
	is.True(fresh != conn) // expired handle was not reused

	connected, closed := c.counts()
	is.Equal(connected, 2)
	is.Equal(closed, 1)
}

func TestPool_MarkRefreshedOnGetExtendsSession(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	var c counters
	p := newTestPool(&c, Options[*fakeConn]{
		MaxSessionDuration: 50 * time.Millisecond,
		MarkRefreshedOnGet: true,
	})

	conn, err := p.Get(ctx)
	is.NoErr(err)
	p.Put(conn)

	// Each Get resets the timer, so the handle outlives its nominal duration.
	for i := 0; i < 3; i++ {
		time.Sleep(30 * time.Millisecond)
		got, err := p.Get(ctx)
		is.NoErr(err)
		is.True(got == conn)
		p.Put(got)
	}

	connected, _ := c.counts()
	is.Equal(connected, 1)
}

func TestPool_WithConnectionErrorClosesExactlyOnce(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	var c counters
	p := newTestPool(&c, Options[*fakeConn]{})

	boom := errors.New("boom")
	err := p.WithConnection(ctx, func(ctx context.Context, conn *fakeConn) error {
		return boom
	})
	is.Equal(err, boom)

	_, closed := c.counts()
	is.Equal(closed, 1) // failed handle closed exactly once

	p.Close()
	_, closed = c.counts()
	is.Equal(closed, 1) // not closed again by Close
}

func TestPool_WithConnectionSuccessReturnsHandle(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	var c counters
	p := newTestPool(&c, Options[*fakeConn]{})

	is.NoErr(p.WithConnection(ctx, func(ctx context.Context, conn *fakeConn) error {
		return nil
	}))

	idle, inUse := p.Stats()
	is.Equal(idle, 1)
	is.Equal(inUse, 0)
}

func TestPool_InvalidateThenCloseClosesEachOnce(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	var c counters
	p := newTestPool(&c, Options[*fakeConn]{})

	a, err := p.Get(ctx)
	is.NoErr(err)
	b, err := p.Get(ctx)
	is.NoErr(err)
	p.Put(a)
	p.Put(b)

	p.Invalidate()

	// Invalidated handles are never handed out again.
	fresh, err := p.Get(ctx)
	is.NoErr(err)
	is.True(fresh != a && fresh != b)
	p.Put(fresh)

	p.Close()
	p.Close() // idempotent

	connected, closed := c.counts()
	is.Equal(connected, 3)
	is.Equal(closed, 3) // each outstanding handle closed exactly once
}

func TestPool_PutAfterCloseClosesHandle(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	var c counters
	p := newTestPool(&c, Options[*fakeConn]{})

	conn, err := p.Get(ctx)
	is.NoErr(err)
	p.Close()

	_, closed := c.counts()
	is.Equal(closed, 0) // still in use, not closed yet

	p.Put(conn)
	_, closed = c.counts()
	is.Equal(closed, 1)

	_, err = p.Get(ctx)
	is.Equal(err, ErrClosed)
}

func TestPool_PrewarmBuildsAhead(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	var c counters
	p := newTestPool(&c, Options[*fakeConn]{})

	p.Prewarm(ctx)

	deadline := time.Now().Add(time.Second)
	for {
		if idle, _ := p.Stats(); idle == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("prewarm did not populate the pool")
		}
		time.Sleep(5 * time.Millisecond)
	}

	conn, err := p.Get(ctx)
	is.NoErr(err)
	connected, _ := c.counts()
	is.Equal(connected, 1) // Get reused the prewarmed handle
	p.Put(conn)

	p.Prewarm(ctx) // non-empty pool: no-op
	time.Sleep(20 * time.Millisecond)
	connected, _ = c.counts()
	is.Equal(connected, 1)
}
