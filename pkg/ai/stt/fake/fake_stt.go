// Package fake provides a scripted STT provider for tests: it "recognizes" a
// fixed transcript, emitting interim prefixes while audio is pushed and the
// final transcript on flush. Tests can also inject events directly.
package fake

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/voxalabs/agents-go/pkg/ai/stt"
	"github.com/voxalabs/agents-go/pkg/rtc"
	"github.com/voxalabs/agents-go/pkg/stream"
)

const (
	// interimFrameInterval controls how often interim results are emitted.
	interimFrameInterval = 10

	// DefaultTranscript is used when no transcript is provided.
	DefaultTranscript = "this is a fake transcript"
)

// STT recognizes a fixed transcript regardless of the audio pushed at it.
type STT struct {
	transcript string
	language   string
}

func New(transcript string) *STT {
	if transcript == "" {
		transcript = DefaultTranscript
	}
	return &STT{transcript: transcript, language: "en-US"}
}

func (s *STT) Label() string { return "fake.STT" }

func (s *STT) Capabilities() stt.Capabilities {
	return stt.Capabilities{Streaming: true, InterimResults: true}
}

func (s *STT) Recognize(ctx context.Context, frames []*rtc.AudioFrame, language string) (*stt.SpeechEvent, error) {
	if language == "" {
		language = s.language
	}
	return &stt.SpeechEvent{
		Type:      stt.EventFinalTranscript,
		RequestID: uuid.NewString(),
		Alternatives: []stt.SpeechData{
			{Text: s.transcript, Language: language, Confidence: 1.0},
		},
	}, nil
}

func (s *STT) NewStream(ctx context.Context, cfg stt.StreamConfig) (stt.Stream, error) {
	language := cfg.Language
	if language == "" {
		language = s.language
	}
	return &Stream{
		transcript: s.transcript,
		language:   language,
		requestID:  uuid.NewString(),
		events:     stream.NewMailbox[*stt.SpeechEvent](32),
	}, nil
}

// Stream is a scripted recognition session.
type Stream struct {
	transcript string
	language   string
	requestID  string
	events     *stream.Mailbox[*stt.SpeechEvent]

	mu         sync.Mutex
	frameCount int
	started    bool
	closed     bool
}

func (s *Stream) PushFrame(frame *rtc.AudioFrame) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return stream.ErrClosed
	}
	s.frameCount++
	first := !s.started
	s.started = true
	count := s.frameCount
	s.mu.Unlock()

	if first {
		s.emit(&stt.SpeechEvent{Type: stt.EventStartOfSpeech, RequestID: s.requestID})
	}
	if count%interimFrameInterval == 0 {
		n := min(len(s.transcript), count/2)
		s.emit(&stt.SpeechEvent{
			Type:      stt.EventInterimTranscript,
			RequestID: s.requestID,
			Alternatives: []stt.SpeechData{
				{Text: s.transcript[:n], Language: s.language, Confidence: 0.5},
			},
		})
	}
	return nil
}

// Emit injects an event, letting tests script arbitrary sequences.
func (s *Stream) Emit(ev *stt.SpeechEvent) {
	s.emit(ev)
}

// FrameCount reports how many frames have been pushed at the stream.
func (s *Stream) FrameCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frameCount
}

func (s *Stream) emit(ev *stt.SpeechEvent) {
	s.events.Put(context.Background(), ev)
}

func (s *Stream) Read(ctx context.Context) (*stt.SpeechEvent, error) {
	return s.events.Get(ctx)
}

func (s *Stream) CloseSend() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	started := s.started
	s.mu.Unlock()

	if started {
		s.emit(&stt.SpeechEvent{
			Type:      stt.EventFinalTranscript,
			RequestID: s.requestID,
			Alternatives: []stt.SpeechData{
				{Text: s.transcript, Language: s.language, Confidence: 1.0},
			},
		})
		s.emit(&stt.SpeechEvent{Type: stt.EventEndOfSpeech, RequestID: s.requestID})
	}
	s.events.Close()
	return nil
}

func (s *Stream) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.events.Close()
	return nil
}
