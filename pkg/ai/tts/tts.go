// Package tts defines the text-to-speech capability: one-shot synthesis of a
// string and incremental synthesis of streamed text, both delivering audio
// frames tagged with request and segment ids.
package tts

import (
	"context"

	"github.com/voxalabs/agents-go/pkg/ai"
	"github.com/voxalabs/agents-go/pkg/rtc"
)

var (
	ErrRecoverable = ai.ErrRecoverable
	ErrFatal       = ai.ErrFatal
)

// SynthesizedAudio is one chunk of synthesized speech. Final marks the last
// chunk of a segment; the frame may be nil on a final marker with no audio.
type SynthesizedAudio struct {
	RequestID string
	SegmentID string
	Frame     *rtc.AudioFrame
	Final     bool
}

// Capabilities describes what a TTS provider supports.
type Capabilities struct {
	Streaming bool
}

// TTS is the text-to-speech capability.
type TTS interface {
	// Synthesize converts one complete string to audio.
	Synthesize(ctx context.Context, text string) (ChunkedStream, error)

	// NewStream opens an incremental session fed text as the model produces
	// it. Segments are delimited by Flush.
	NewStream(ctx context.Context) (Stream, error)

	SampleRate() int
	NumChannels() int
	Capabilities() Capabilities
	Label() string
}

// ChunkedStream delivers the audio of a one-shot synthesis.
// Read returns stream.ErrDone after the final chunk.
type ChunkedStream interface {
	Read(ctx context.Context) (*SynthesizedAudio, error)
	Close() error
}

// Stream is an incremental synthesis session.
type Stream interface {
	// PushText appends text to the current segment.
	PushText(text string) error

	// Flush closes the current segment; its remaining audio is emitted with
	// Final set on the last chunk.
	Flush() error

	// EndInput signals that no more text will be pushed. Pending segments
	// are still synthesized and delivered.
	EndInput() error

	// Read returns the next audio chunk. Returns stream.ErrDone once all
	// segments have been delivered after EndInput, or after Close.
	Read(ctx context.Context) (*SynthesizedAudio, error)

	Close() error
}
