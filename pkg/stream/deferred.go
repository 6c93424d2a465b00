package stream

import (
	"context"
	"sync"
)

// Deferred is a readable stream whose upstream source is attached after
// readers already exist. Read blocks until SetSource is called, then proxies
// the source. DetachSource releases the source without terminating it: reads
// on this Deferred afterwards complete with ErrDone, and the original source
// can be attached to a fresh Deferred which resumes where this one left off.
type Deferred[T any] struct {
	mu       sync.Mutex
	src      Reader[T]
	wasSet   bool
	detached chan struct{} // closed on DetachSource
	changed  chan struct{} // closed+replaced when src is attached
}

// NewDeferred creates a Deferred with no source attached.
func NewDeferred[T any]() *Deferred[T] {
	return &Deferred[T]{
		detached: make(chan struct{}),
		changed:  make(chan struct{}),
	}
}

// SetSource attaches src as the upstream. It may be called at most once per
// Deferred; later calls return ErrSourceAlreadySet even after DetachSource.
func (d *Deferred[T]) SetSource(src Reader[T]) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.wasSet {
		return ErrSourceAlreadySet
	}
	d.wasSet = true
	d.src = src
	close(d.changed)
	d.changed = make(chan struct{})
	return nil
}

// DetachSource releases the upstream reader. Blocked and subsequent reads
// complete with ErrDone; in-flight items stay with the source. Detaching an
// unattached Deferred just terminates its readers. Idempotent.
func (d *Deferred[T]) DetachSource() {
	d.mu.Lock()
	defer d.mu.Unlock()
	select {
	case <-d.detached:
		return
	default:
	}
	close(d.detached)
	d.src = nil
}

// Source returns the currently attached source, or nil.
func (d *Deferred[T]) Source() Reader[T] {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.src
}

// Read blocks until a source is attached, then delegates to it. A read that
// is blocked inside the source when DetachSource is called returns ErrDone
// without consuming an item.
func (d *Deferred[T]) Read(ctx context.Context) (T, error) {
	var zero T
	for {
		d.mu.Lock()
		select {
		case <-d.detached:
			d.mu.Unlock()
			return zero, ErrDone
		default:
		}
		src := d.src
		wait := d.changed
		d.mu.Unlock()

		if src == nil {
			select {
			case <-wait:
				continue
			case <-d.detached:
				return zero, ErrDone
			case <-ctx.Done():
				return zero, ctx.Err()
			}
		}

		// Race the source read against detach so a detach releases blocked
		// readers without consuming the next item.
		rctx, cancel := context.WithCancel(ctx)
		stop := make(chan struct{})
		go func() {
			select {
			case <-d.detached:
				cancel()
			case <-stop:
			}
		}()
		item, err := src.Read(rctx)
		close(stop)
		cancel()

		if err != nil {
			select {
			case <-d.detached:
				return zero, ErrDone
			default:
			}
		}
		return item, err
	}
}
