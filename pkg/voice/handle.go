package voice

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Speech priorities. Ties are broken by enqueue order.
const (
	PriorityLow    = 0
	PriorityNormal = 5
	PriorityHigh   = 10
)

// Speech sources.
const (
	SourceSay           = "say"
	SourceGenerateReply = "generate_reply"
	SourceToolResponse  = "tool_response"
)

// HandleState is a speech handle's position in its lifecycle.
type HandleState int32

const (
	HandleCreated HandleState = iota
	HandleAuthorized
	HandlePlaying
	HandleInterrupted
	HandleDone
)

func (s HandleState) String() string {
	switch s {
	case HandleCreated:
		return "created"
	case HandleAuthorized:
		return "authorized"
	case HandlePlaying:
		return "playing"
	case HandleInterrupted:
		return "interrupted"
	case HandleDone:
		return "done"
	default:
		return "unknown"
	}
}

// SpeechHandle represents one planned assistant utterance: schedulable,
// awaitable, and (when permitted) interruptible.
type SpeechHandle struct {
	id                 string
	priority           int
	source             string
	userInitiated      bool
	allowInterruptions bool

	run func(ctx context.Context, h *SpeechHandle)

	mu          sync.Mutex
	state       HandleState
	position    time.Duration
	authorized  chan struct{}
	interrupted chan struct{}
	done        chan struct{}
}

func newSpeechHandle(source string, priority int, allowInterruptions bool) *SpeechHandle {
	return &SpeechHandle{
		id:                 "speech_" + uuid.NewString(),
		priority:           priority,
		source:             source,
		allowInterruptions: allowInterruptions,
		authorized:         make(chan struct{}),
		interrupted:        make(chan struct{}),
		done:               make(chan struct{}),
	}
}

func (h *SpeechHandle) ID() string     { return h.id }
func (h *SpeechHandle) Source() string { return h.source }

// State returns the handle's current lifecycle state.
func (h *SpeechHandle) State() HandleState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// AllowInterruptions reports whether Interrupt can take effect.
func (h *SpeechHandle) AllowInterruptions() bool { return h.allowInterruptions }

// Interrupted reports whether the utterance was cut short.
func (h *SpeechHandle) Interrupted() bool {
	select {
	case <-h.interrupted:
		return true
	default:
		return false
	}
}

// PlaybackPosition is how much audio actually played.
func (h *SpeechHandle) PlaybackPosition() time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.position
}

// Interrupt requests the utterance stop. Returns false when the handle
// forbids interruptions or is already terminal.
func (h *SpeechHandle) Interrupt() bool {
	if !h.allowInterruptions {
		return false
	}
	h.mu.Lock()
	if h.state == HandleDone {
		h.mu.Unlock()
		return false
	}
	if h.state != HandleInterrupted {
		h.state = HandleInterrupted
		close(h.interrupted)
	}
	h.mu.Unlock()
	return true
}

// WaitForPlayout blocks until the utterance is done (played or interrupted).
func (h *SpeechHandle) WaitForPlayout(ctx context.Context) error {
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed once the handle reaches its terminal state.
func (h *SpeechHandle) Done() <-chan struct{} { return h.done }

func (h *SpeechHandle) authorize() {
	h.mu.Lock()
	if h.state == HandleCreated {
		h.state = HandleAuthorized
		close(h.authorized)
	}
	h.mu.Unlock()
}

func (h *SpeechHandle) markPlaying() {
	h.mu.Lock()
	if h.state == HandleAuthorized {
		h.state = HandlePlaying
	}
	h.mu.Unlock()
}

// markDone is idempotent; interrupted handles stay reported as interrupted.
func (h *SpeechHandle) markDone(position time.Duration) {
	h.mu.Lock()
	if h.state != HandleDone {
		h.state = HandleDone
		h.position = position
		close(h.done)
	}
	h.mu.Unlock()
}

// speechQueue orders pending handles by (priority desc, sequence asc).
type speechQueue struct {
	mu    sync.Mutex
	heap  speechHeap
	seq   uint64
	avail chan struct{}
}

type speechItem struct {
	handle *SpeechHandle
	seq    uint64
}

type speechHeap []speechItem

func (q speechHeap) Len() int { return len(q) }
func (q speechHeap) Less(i, j int) bool {
	if q[i].handle.priority != q[j].handle.priority {
		return q[i].handle.priority > q[j].handle.priority
	}
	return q[i].seq < q[j].seq
}
func (q speechHeap) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *speechHeap) Push(x any)   { *q = append(*q, x.(speechItem)) }
func (q *speechHeap) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}

func newSpeechQueue() *speechQueue {
	return &speechQueue{avail: make(chan struct{}, 1)}
}

func (q *speechQueue) push(h *SpeechHandle) {
	q.mu.Lock()
	q.seq++
	heap.Push(&q.heap, speechItem{handle: h, seq: q.seq})
	q.mu.Unlock()
	select {
	case q.avail <- struct{}{}:
	default:
	}
}

// pop returns the highest-priority pending handle, blocking until one
// arrives or ctx ends.
func (q *speechQueue) pop(ctx context.Context) (*SpeechHandle, error) {
	for {
		q.mu.Lock()
		if q.heap.Len() > 0 {
			item := heap.Pop(&q.heap).(speechItem)
			q.mu.Unlock()
			return item.handle, nil
		}
		q.mu.Unlock()
		select {
		case <-q.avail:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}
