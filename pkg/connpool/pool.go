// Package connpool provides a small pool of provider connections (realtime
// STT/TTS sessions, websocket handles) with optional maximum session duration
// and prewarming. Handles are opaque to the pool: it only builds them via the
// connect callback and disposes of them via the close callback.
package connpool

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrClosed is returned by Get after the pool has been closed.
var ErrClosed = errors.New("connpool: closed")

// Options configures a Pool.
type Options[T comparable] struct {
	// Connect builds a new handle. Required.
	Connect func(ctx context.Context) (T, error)

	// Close disposes of a handle. Required.
	Close func(conn T) error

	// MaxSessionDuration evicts a handle once it has been connected for this
	// long. Zero means handles never expire.
	MaxSessionDuration time.Duration

	// MarkRefreshedOnGet resets the session timer every time a handle is
	// handed out, so the duration bounds idle age rather than total age.
	MarkRefreshedOnGet bool
}

type entry[T comparable] struct {
	conn        T
	connectedAt time.Time
	lastUsedAt  time.Time
	invalid     bool
}

// Pool hands out connections, reusing idle ones when possible. At most one
// handle is built at a time; every handle handed out by Get is owned by
// exactly one caller until returned with Put or discarded with Remove.
type Pool[T comparable] struct {
	opts Options[T]

	buildMu sync.Mutex // serializes Connect calls

	mu     sync.Mutex
	idle   []*entry[T]
	inUse  map[T]*entry[T]
	closed bool
}

// New creates a pool from opts. Panics if Connect or Close is nil: both are
// programming errors, not runtime conditions.
func New[T comparable](opts Options[T]) *Pool[T] {
	if opts.Connect == nil {
		panic("connpool: Connect is required")
	}
	if opts.Close == nil {
		panic("connpool: Close is required")
	}
	return &Pool[T]{
		opts:  opts,
		inUse: make(map[T]*entry[T]),
	}
}

// Get returns a handle, reusing an idle one when available. Expired or
// invalidated idle entries are skipped (expired ones are closed in place).
func (p *Pool[T]) Get(ctx context.Context) (T, error) {
	var zero T
	now := time.Now()

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return zero, ErrClosed
	}
	var (
		found   *entry[T]
		kept    []*entry[T]
		expired []*entry[T]
	)
	for i, e := range p.idle {
		if e.invalid {
			// Never re-handed out; closed when the pool closes.
			kept = append(kept, e)
			continue
		}
		if p.expired(e, now) {
			expired = append(expired, e)
			continue
		}
		found = e
		kept = append(kept, p.idle[i+1:]...)
		break
	}
	p.idle = kept
	if found != nil {
		if p.opts.MarkRefreshedOnGet {
			found.connectedAt = now
		}
		found.lastUsedAt = now
		p.inUse[found.conn] = found
	}
	p.mu.Unlock()

	for _, e := range expired {
		p.opts.Close(e.conn)
	}
	if found != nil {
		return found.conn, nil
	}
	return p.build(ctx)
}

func (p *Pool[T]) build(ctx context.Context) (T, error) {
	var zero T

	p.buildMu.Lock()
	defer p.buildMu.Unlock()

	conn, err := p.opts.Connect(ctx)
	if err != nil {
		return zero, err
	}

	now := time.Now()
	e := &entry[T]{conn: conn, connectedAt: now, lastUsedAt: now}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.opts.Close(conn)
		return zero, ErrClosed
	}
	p.inUse[conn] = e
	p.mu.Unlock()
	return conn, nil
}

func (p *Pool[T]) expired(e *entry[T], now time.Time) bool {
	return p.opts.MaxSessionDuration > 0 && now.Sub(e.connectedAt) >= p.opts.MaxSessionDuration
}

// Put returns a handle to the idle set. Handles the pool does not know about
// are ignored. If the pool has closed in the meantime the handle is closed.
func (p *Pool[T]) Put(conn T) {
	p.mu.Lock()
	e, ok := p.inUse[conn]
	if !ok {
		p.mu.Unlock()
		return
	}
	delete(p.inUse, conn)
	if p.closed {
		p.mu.Unlock()
		p.opts.Close(conn)
		return
	}
	e.lastUsedAt = time.Now()
	p.idle = append(p.idle, e)
	p.mu.Unlock()
}

// Remove closes the handle and drops it from the pool.
func (p *Pool[T]) Remove(conn T) {
	p.mu.Lock()
	_, ok := p.inUse[conn]
	if ok {
		delete(p.inUse, conn)
	} else {
		for i, e := range p.idle {
			if e.conn == conn {
				p.idle = append(p.idle[:i], p.idle[i+1:]...)
				ok = true
				break
			}
		}
	}
	p.mu.Unlock()
	if ok {
		p.opts.Close(conn)
	}
}

// WithConnection acquires a handle, runs fn, and returns the handle with Put
// on success or closes it with Remove when fn fails or ctx is cancelled.
func (p *Pool[T]) WithConnection(ctx context.Context, fn func(ctx context.Context, conn T) error) error {
	conn, err := p.Get(ctx)
	if err != nil {
		return err
	}
	if err := fn(ctx, conn); err != nil {
		p.Remove(conn)
		return err
	}
	if err := ctx.Err(); err != nil {
		p.Remove(conn)
		return err
	}
	p.Put(conn)
	return nil
}

// Prewarm builds one handle in the background if the pool is empty, so the
// first Get does not pay connection latency.
func (p *Pool[T]) Prewarm(ctx context.Context) {
	p.mu.Lock()
	empty := len(p.idle) == 0 && len(p.inUse) == 0 && !p.closed
	p.mu.Unlock()
	if !empty {
		return
	}
	go func() {
		conn, err := p.build(ctx)
		if err != nil {
			return
		}
		p.Put(conn)
	}()
}

// Invalidate marks every current handle so it will never be handed out again
// and will be closed when the pool closes. In-use handles return to the idle
// set on Put and stay parked there until Close.
func (p *Pool[T]) Invalidate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range p.idle {
		e.invalid = true
	}
	for _, e := range p.inUse {
		e.invalid = true
	}
}

// Close closes every idle handle exactly once and marks the pool closed.
// Handles still in use are closed when returned. Idempotent.
func (p *Pool[T]) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	idle := p.idle
	p.idle = nil
	p.mu.Unlock()

	for _, e := range idle {
		p.opts.Close(e.conn)
	}
}

// Stats reports the number of idle and in-use handles, for logging.
func (p *Pool[T]) Stats() (idle, inUse int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idle), len(p.inUse)
}
