package stream

import (
	"context"
	"sync"
)

// Merge funnels N input streams into one output stream. Inputs can be added
// and removed while consumers read. An input that errors is removed without
// erroring the merged output.
type Merge[T any] struct {
	out    *Mailbox[T]
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	nextID int
	inputs map[int]context.CancelFunc
	closed bool
	wg     sync.WaitGroup
}

// NewMerge creates a merge whose output buffers up to capacity items
// (capacity <= 0 means unbounded).
func NewMerge[T any](capacity int) *Merge[T] {
	ctx, cancel := context.WithCancel(context.Background())
	return &Merge[T]{
		out:    NewMailbox[T](capacity),
		ctx:    ctx,
		cancel: cancel,
		inputs: make(map[int]context.CancelFunc),
	}
}

// AddInput starts pumping src into the merged output and returns an id that
// can be passed to RemoveInput. Returns ErrClosed after Close.
func (m *Merge[T]) AddInput(src Reader[T]) (int, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return 0, ErrClosed
	}
	id := m.nextID
	m.nextID++
	pumpCtx, pumpCancel := context.WithCancel(m.ctx)
	m.inputs[id] = pumpCancel
	m.wg.Add(1)
	m.mu.Unlock()

	go m.pump(pumpCtx, id, src)
	return id, nil
}

func (m *Merge[T]) pump(ctx context.Context, id int, src Reader[T]) {
	defer m.wg.Done()
	defer m.dropInput(id)
	for {
		item, err := src.Read(ctx)
		if err != nil {
			// ErrDone, a source error, or cancellation: this input is
			// finished either way. The merged output stays open.
			return
		}
		if err := m.out.Put(ctx, item); err != nil {
			return
		}
	}
}

func (m *Merge[T]) dropInput(id int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cancel, ok := m.inputs[id]; ok {
		cancel()
		delete(m.inputs, id)
	}
}

// RemoveInput releases the reader for the given input id. Removing an unknown
// id is a no-op.
func (m *Merge[T]) RemoveInput(id int) {
	m.dropInput(id)
}

// InputCount returns the number of inputs currently attached and not yet
// ended. It converges to zero once all inputs end or are removed.
func (m *Merge[T]) InputCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.inputs)
}

// Read returns the next merged item. After Close, buffered items are drained
// and then ErrDone is returned.
func (m *Merge[T]) Read(ctx context.Context) (T, error) {
	return m.out.Get(ctx)
}

// Close stops all pumps and ends the output stream. Idempotent.
func (m *Merge[T]) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.mu.Unlock()

	m.cancel()
	m.wg.Wait()
	m.out.Close()
}
