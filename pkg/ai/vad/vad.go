// Package vad defines the voice-activity-detection capability. A VAD stream
// consumes audio frames and emits speech boundary events with the measured
// speech and silence durations the recognition layer uses for endpointing.
package vad

import (
	"context"
	"time"

	"github.com/voxalabs/agents-go/pkg/ai"
	"github.com/voxalabs/agents-go/pkg/rtc"
	"github.com/voxalabs/agents-go/pkg/stream"
)

var (
	ErrRecoverable = ai.ErrRecoverable
	ErrFatal       = ai.ErrFatal
)

// EventType classifies a VAD event.
type EventType int

const (
	EventStartOfSpeech EventType = iota
	EventInferenceDone
	EventEndOfSpeech
)

func (t EventType) String() string {
	switch t {
	case EventStartOfSpeech:
		return "start_of_speech"
	case EventInferenceDone:
		return "inference_done"
	case EventEndOfSpeech:
		return "end_of_speech"
	}
	return "unknown"
}

// Event is one detection result.
//
// END_OF_SPEECH is emitted only after SilenceDuration of trailing silence, so
// the actual end of the utterance is Timestamp minus SilenceDuration.
type Event struct {
	Type            EventType
	Timestamp       time.Duration
	SpeechDuration  time.Duration
	SilenceDuration time.Duration
	Probability     float64 // last inference, 0..1
}

// Capabilities describes a VAD provider.
type Capabilities struct {
	UpdateInterval time.Duration // cadence of INFERENCE_DONE events
}

// VAD is the voice-activity-detection capability.
type VAD interface {
	NewStream(ctx context.Context) (Stream, error)
	Capabilities() Capabilities
	Label() string
}

// Stream is an active detection session.
type Stream interface {
	// PushFrame submits audio for detection.
	PushFrame(frame *rtc.AudioFrame) error

	// UpdateInputStream replaces the stream's audio source: frames are pumped
	// from src until it ends or is replaced again. Useful when the input
	// device changes mid-session.
	UpdateInputStream(src stream.Reader[*rtc.AudioFrame])

	// Read returns the next event. Returns stream.ErrDone after Close.
	Read(ctx context.Context) (*Event, error)

	Close() error
}
