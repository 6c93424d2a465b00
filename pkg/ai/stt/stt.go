// Package stt defines the speech-to-text capability: batch recognition of a
// buffered clip and streaming recognition of live audio frames, with interim
// and final transcripts delivered in temporal order.
package stt

import (
	"context"
	"time"

	"github.com/voxalabs/agents-go/pkg/ai"
	"github.com/voxalabs/agents-go/pkg/rtc"
)

var (
	ErrRecoverable = ai.ErrRecoverable
	ErrFatal       = ai.ErrFatal
)

// EventType classifies a recognition event.
type EventType int

const (
	EventStartOfSpeech EventType = iota
	EventInterimTranscript
	EventFinalTranscript
	EventEndOfSpeech
)

func (t EventType) String() string {
	switch t {
	case EventStartOfSpeech:
		return "start_of_speech"
	case EventInterimTranscript:
		return "interim_transcript"
	case EventFinalTranscript:
		return "final_transcript"
	case EventEndOfSpeech:
		return "end_of_speech"
	}
	return "unknown"
}

// SpeechData is one recognition alternative.
type SpeechData struct {
	Text       string
	Language   string
	StartTime  time.Duration
	EndTime    time.Duration
	Confidence float64
}

// SpeechEvent is one recognition event. Transcript events carry at least one
// alternative, best first; boundary events carry none.
type SpeechEvent struct {
	Type         EventType
	RequestID    string
	Alternatives []SpeechData
}

// Text returns the best alternative's text, or "".
func (e *SpeechEvent) Text() string {
	if len(e.Alternatives) == 0 {
		return ""
	}
	return e.Alternatives[0].Text
}

// StreamConfig configures a streaming recognition session.
type StreamConfig struct {
	SampleRate  int
	NumChannels int
	Language    string
}

// Capabilities describes what an STT provider supports.
type Capabilities struct {
	Streaming      bool
	InterimResults bool
}

// STT is the speech-to-text capability.
type STT interface {
	// Recognize transcribes a buffered audio clip in one shot.
	Recognize(ctx context.Context, frames []*rtc.AudioFrame, language string) (*SpeechEvent, error)

	// NewStream opens a streaming recognition session.
	NewStream(ctx context.Context, cfg StreamConfig) (Stream, error)

	Capabilities() Capabilities
	Label() string
}

// Stream is an active recognition session. Events for a given audio stream
// arrive in temporal order; a final transcript is never delivered before the
// start-of-speech of its segment.
type Stream interface {
	// PushFrame submits audio for recognition.
	PushFrame(frame *rtc.AudioFrame) error

	// Read returns the next event, blocking until one is available. Returns
	// stream.ErrDone once the stream has flushed after CloseSend or Close.
	Read(ctx context.Context) (*SpeechEvent, error)

	// CloseSend signals that no more audio will be pushed; pending audio is
	// still recognized and delivered.
	CloseSend() error

	// Close tears the session down without waiting for pending results.
	Close() error
}
