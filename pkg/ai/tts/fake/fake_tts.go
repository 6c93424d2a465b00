// Package fake provides a deterministic TTS for tests: every character of
// input becomes a fixed duration of silent audio, so playout length is a pure
// function of the text.
package fake

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/voxalabs/agents-go/pkg/ai/tts"
	"github.com/voxalabs/agents-go/pkg/rtc"
	"github.com/voxalabs/agents-go/pkg/stream"
)

const (
	defaultSampleRate      = 24000
	defaultDurationPerChar = 10 * time.Millisecond
	frameDuration          = 10 * time.Millisecond
)

// TTS synthesizes silence proportional to the input length.
type TTS struct {
	sampleRate      int
	durationPerChar time.Duration
}

// Option configures the fake.
type Option func(*TTS)

// WithDurationPerChar sets how much audio one character produces.
func WithDurationPerChar(d time.Duration) Option {
	return func(t *TTS) { t.durationPerChar = d }
}

// WithSampleRate sets the output rate.
func WithSampleRate(rate int) Option {
	return func(t *TTS) { t.sampleRate = rate }
}

func New(opts ...Option) *TTS {
	t := &TTS{sampleRate: defaultSampleRate, durationPerChar: defaultDurationPerChar}
	for _, o := range opts {
		o(t)
	}
	return t
}

func (t *TTS) Label() string      { return "fake.TTS" }
func (t *TTS) SampleRate() int    { return t.sampleRate }
func (t *TTS) NumChannels() int   { return 1 }
func (t *TTS) Capabilities() tts.Capabilities {
	return tts.Capabilities{Streaming: true}
}

func (t *TTS) Synthesize(ctx context.Context, text string) (tts.ChunkedStream, error) {
	s := t.newStream()
	if err := s.PushText(text); err != nil {
		return nil, err
	}
	if err := s.EndInput(); err != nil {
		return nil, err
	}
	return s, nil
}

func (t *TTS) NewStream(ctx context.Context) (tts.Stream, error) {
	return t.newStream(), nil
}

func (t *TTS) newStream() *Stream {
	return &Stream{
		tts:       t,
		requestID: uuid.NewString(),
		segmentID: uuid.NewString(),
		out:       stream.NewMailbox[*tts.SynthesizedAudio](128),
	}
}

// Stream emits one silent frame per frameDuration of synthesized audio.
type Stream struct {
	tts       *TTS
	requestID string
	out       *stream.Mailbox[*tts.SynthesizedAudio]

	mu        sync.Mutex
	segmentID string
	pending   time.Duration // audio owed for the current segment
	closed    bool
}

func (s *Stream) PushText(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return stream.ErrClosed
	}
	s.pending += time.Duration(len(text)) * s.tts.durationPerChar
	s.drainLocked(false)
	return nil
}

func (s *Stream) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return stream.ErrClosed
	}
	s.drainLocked(true)
	s.segmentID = uuid.NewString()
	return nil
}

func (s *Stream) EndInput() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.drainLocked(true)
	s.mu.Unlock()
	s.out.Close()
	return nil
}

// drainLocked converts pending duration into frames. When final, the segment
// ends with exactly one Final chunk: the last frame when the remainder lines
// up, otherwise a frameless marker.
func (s *Stream) drainLocked(final bool) {
	emitted := false
	for s.pending >= frameDuration {
		s.pending -= frameDuration
		emitted = true
		s.put(&tts.SynthesizedAudio{
			RequestID: s.requestID,
			SegmentID: s.segmentID,
			Frame:     rtc.EmptyAudioFrame(s.tts.sampleRate, 1, frameDuration),
			Final:     final && s.pending == 0,
		})
	}
	if !final {
		return
	}
	if s.pending > 0 {
		d := s.pending
		s.pending = 0
		s.put(&tts.SynthesizedAudio{
			RequestID: s.requestID,
			SegmentID: s.segmentID,
			Frame:     rtc.EmptyAudioFrame(s.tts.sampleRate, 1, d),
			Final:     true,
		})
	} else if !emitted {
		s.put(&tts.SynthesizedAudio{
			RequestID: s.requestID,
			SegmentID: s.segmentID,
			Final:     true,
		})
	}
}

func (s *Stream) put(a *tts.SynthesizedAudio) {
	s.out.Put(context.Background(), a)
}

func (s *Stream) Read(ctx context.Context) (*tts.SynthesizedAudio, error) {
	return s.out.Get(ctx)
}

func (s *Stream) Close() error {
	s.mu.Lock()
	s.closed = true
	s.pending = 0
	s.mu.Unlock()
	s.out.Close()
	return nil
}
