package ipc

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

// maxFrameSize rejects frames that cannot be legitimate control traffic.
const maxFrameSize = 4 << 20

// Writer emits length-prefixed envelopes. Safe for concurrent use.
type Writer struct {
	mu sync.Mutex
	w  io.Writer
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Write frames and sends one envelope.
func (w *Writer) Write(env *Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("ipc: marshal %s: %w", env.Type, err)
	}
	if len(payload) > maxFrameSize {
		return fmt.Errorf("ipc: frame too large: %d bytes", len(payload))
	}

	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(payload)))

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.w.Write(header[:]); err != nil {
		return err
	}
	_, err = w.w.Write(payload)
	return err
}

// Reader decodes length-prefixed envelopes from a byte stream. Partial
// delivery is fine: each Read blocks until a whole frame has arrived.
type Reader struct {
	r *bufio.Reader
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReader(r)}
}

// Read returns the next envelope. io.EOF signals a cleanly closed channel;
// a partial trailing frame surfaces as io.ErrUnexpectedEOF.
func (r *Reader) Read() (*Envelope, error) {
	var header [4]byte
	if _, err := io.ReadFull(r.r, header[:]); err != nil {
		if err == io.ErrUnexpectedEOF {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}

	size := binary.BigEndian.Uint32(header[:])
	if size == 0 {
		return nil, fmt.Errorf("ipc: zero-length frame")
	}
	if size > maxFrameSize {
		return nil, fmt.Errorf("ipc: frame too large: %d bytes", size)
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(r.r, payload); err != nil {
		if err == io.EOF {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}

	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("ipc: decode frame: %w", err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("ipc: frame missing type")
	}
	return &env, nil
}
