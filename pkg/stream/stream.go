// Package stream provides the concurrency primitives the agent runtime is
// built from: bounded mailboxes, deferred streams whose upstream is attached
// after readers exist, multi-input merges, and cancellable tasks.
//
// All blocking operations take a context.Context and unblock promptly on
// cancellation. End of stream is reported as ErrDone rather than a closed
// channel so callers can distinguish "no more items" from "misuse of a closed
// primitive" (ErrClosed).
package stream

import (
	"context"
	"errors"
)

var (
	// ErrDone signals the normal end of a stream: the upstream closed and all
	// buffered items were delivered.
	ErrDone = errors.New("stream: done")

	// ErrClosed is returned when writing to or mutating an already-closed
	// primitive.
	ErrClosed = errors.New("stream: closed")

	// ErrSourceAlreadySet is returned by Deferred.SetSource when a source was
	// attached before, even if it has since been detached.
	ErrSourceAlreadySet = errors.New("stream: source already set")
)

// Reader is the read side of a stream of items. Read blocks until an item is
// available, the stream ends (ErrDone), or ctx is cancelled. Implementations
// must not consume an item when returning a ctx error.
type Reader[T any] interface {
	Read(ctx context.Context) (T, error)
}
