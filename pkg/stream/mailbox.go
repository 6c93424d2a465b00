package stream

import (
	"context"
	"sync"
)

// Mailbox is a FIFO queue with optional capacity. Producers block on Put when
// the mailbox is full; consumers block on Get when it is empty. Close is
// broadcast to all waiters, but items enqueued before Close are still
// delivered in order.
type Mailbox[T any] struct {
	mu      sync.Mutex
	items   []T
	cap     int // <= 0 means unbounded
	closed  bool
	changed chan struct{}
}

// NewMailbox creates a mailbox with the given capacity. A capacity of zero or
// less means unbounded.
func NewMailbox[T any](capacity int) *Mailbox[T] {
	return &Mailbox[T]{
		cap:     capacity,
		changed: make(chan struct{}),
	}
}

// signal wakes every goroutine parked on the current change channel.
// Callers must hold mu.
func (m *Mailbox[T]) signal() {
	close(m.changed)
	m.changed = make(chan struct{})
}

// Put appends item to the queue, blocking while the mailbox is full.
// Returns ErrClosed if the mailbox has been closed.
func (m *Mailbox[T]) Put(ctx context.Context, item T) error {
	for {
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return ErrClosed
		}
		if m.cap <= 0 || len(m.items) < m.cap {
			m.items = append(m.items, item)
			m.signal()
			m.mu.Unlock()
			return nil
		}
		wait := m.changed
		m.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Get removes and returns the head of the queue, blocking while the mailbox
// is empty. After Close, Get keeps returning buffered items until the queue
// drains, then returns ErrDone.
func (m *Mailbox[T]) Get(ctx context.Context) (T, error) {
	var zero T
	for {
		m.mu.Lock()
		if len(m.items) > 0 {
			item := m.items[0]
			m.items = m.items[1:]
			m.signal()
			m.mu.Unlock()
			return item, nil
		}
		if m.closed {
			m.mu.Unlock()
			return zero, ErrDone
		}
		wait := m.changed
		m.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}

// Read makes Mailbox satisfy Reader.
func (m *Mailbox[T]) Read(ctx context.Context) (T, error) {
	return m.Get(ctx)
}

// Len returns the number of items currently buffered.
func (m *Mailbox[T]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// Close marks the mailbox closed and wakes all waiters. Close is idempotent.
// Buffered items remain readable via Get.
func (m *Mailbox[T]) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	m.signal()
}

// Closed reports whether Close has been called.
func (m *Mailbox[T]) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
