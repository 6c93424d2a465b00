// Package tokenize splits streamed model output into sentences so TTS can
// start synthesizing before the completion finishes, and into words for
// transcript/audio alignment.
package tokenize

import (
	"context"
	"strings"
	"sync"

	"github.com/voxalabs/agents-go/pkg/stream"
)

// defaultMinSentenceLen avoids splitting on abbreviations like "Dr." by
// requiring a minimum chunk before a boundary counts.
const defaultMinSentenceLen = 8

// SentenceTokenizer builds sentence streams.
type SentenceTokenizer struct {
	minSentenceLen int
}

// Option configures a SentenceTokenizer.
type Option func(*SentenceTokenizer)

// WithMinSentenceLen sets the minimum emitted sentence length in bytes.
func WithMinSentenceLen(n int) Option {
	return func(t *SentenceTokenizer) { t.minSentenceLen = n }
}

func NewSentenceTokenizer(opts ...Option) *SentenceTokenizer {
	t := &SentenceTokenizer{minSentenceLen: defaultMinSentenceLen}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Tokenize splits a complete text into sentences.
func (t *SentenceTokenizer) Tokenize(text string) []string {
	s := t.NewStream()
	s.PushText(text)
	s.EndInput()

	var out []string
	ctx := context.Background()
	for {
		sent, err := s.Read(ctx)
		if err != nil {
			return out
		}
		out = append(out, sent)
	}
}

func (t *SentenceTokenizer) NewStream() *SentenceStream {
	return &SentenceStream{
		minLen: t.minSentenceLen,
		out:    stream.NewMailbox[string](64),
	}
}

// SentenceStream accumulates pushed text and emits one sentence at a time.
type SentenceStream struct {
	minLen int
	out    *stream.Mailbox[string]

	mu     sync.Mutex
	buf    strings.Builder
	closed bool
}

// PushText appends text and emits any complete sentences it finishes.
func (s *SentenceStream) PushText(text string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return stream.ErrClosed
	}
	s.buf.WriteString(text)
	sents := s.splitLocked()
	s.mu.Unlock()
	return s.emit(sents)
}

// Flush emits whatever is buffered as a final (possibly unterminated)
// sentence, e.g. when the upstream completion ends mid-sentence.
func (s *SentenceStream) Flush() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return stream.ErrClosed
	}
	sents := s.takeRestLocked()
	s.mu.Unlock()
	return s.emit(sents)
}

// EndInput flushes and closes the output.
func (s *SentenceStream) EndInput() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	sents := s.takeRestLocked()
	s.mu.Unlock()
	s.emit(sents)
	s.out.Close()
	return nil
}

// Read returns the next sentence. Returns stream.ErrDone after EndInput once
// buffered sentences are drained.
func (s *SentenceStream) Read(ctx context.Context) (string, error) {
	return s.out.Get(ctx)
}

func (s *SentenceStream) Close() error {
	s.mu.Lock()
	s.closed = true
	s.buf.Reset()
	s.mu.Unlock()
	s.out.Close()
	return nil
}

// splitLocked cuts completed sentences out of the buffer. The caller emits
// them after releasing the lock: a slow or departed consumer must never park
// the producer with the stream's mutex held, or Close could not run.
func (s *SentenceStream) splitLocked() []string {
	var sents []string
	text := s.buf.String()
	for {
		idx := sentenceBoundary(text, s.minLen)
		if idx < 0 {
			break
		}
		sent := strings.TrimSpace(text[:idx+1])
		text = text[idx+1:]
		if sent != "" {
			sents = append(sents, sent)
		}
	}
	s.buf.Reset()
	s.buf.WriteString(text)
	return sents
}

// takeRestLocked empties the buffer as one trailing sentence.
func (s *SentenceStream) takeRestLocked() []string {
	rest := strings.TrimSpace(s.buf.String())
	s.buf.Reset()
	if rest == "" {
		return nil
	}
	return []string{rest}
}

func (s *SentenceStream) emit(sents []string) error {
	for _, sent := range sents {
		if err := s.out.Put(context.Background(), sent); err != nil {
			return err
		}
	}
	return nil
}

// sentenceBoundary returns the index of the first '.', '!', '?' or '\n' that
// ends a sentence: terminal punctuation must be followed by whitespace and
// sit at or past minLen, so "Dr. Smith" early in a chunk does not split.
func sentenceBoundary(s string, minLen int) int {
	for i := 0; i < len(s)-1; i++ {
		switch s[i] {
		case '\n':
			if i > 0 {
				return i
			}
		case '.', '!', '?':
			if i+1 < minLen {
				continue
			}
			switch s[i+1] {
			case ' ', '\n', '\r', '\t':
				return i
			}
		}
	}
	return -1
}

// SplitWords breaks text into whitespace-delimited words, used by the
// transcript synchronizer to pace text against audio.
func SplitWords(text string) []string {
	return strings.Fields(text)
}
