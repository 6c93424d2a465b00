package voice

import (
	"context"
	"sync"
	"time"

	"github.com/voxalabs/agents-go/pkg/rtc"
)

// PlaybackFinished is the sink's acknowledgment for one utterance.
type PlaybackFinished struct {
	Position    time.Duration
	Interrupted bool
}

// AudioOutput receives the agent's synthesized audio. Flush blocks until the
// pushed audio has played (or the buffer was cleared) and reports the
// position reached.
type AudioOutput interface {
	CaptureFrame(ctx context.Context, frame *rtc.AudioFrame) error
	Flush(ctx context.Context) (PlaybackFinished, error)
	// ClearBuffer drops unplayed audio; an in-flight Flush resolves with
	// Interrupted=true.
	ClearBuffer()
}

// TextOutput receives the agent's transcript, time-aligned with the audio.
type TextOutput interface {
	CaptureText(ctx context.Context, text string) error
	Flush(ctx context.Context) error
}

// trackOutput adapts a published room track to AudioOutput.
type trackOutput struct {
	track *rtc.AudioTrack

	mu          sync.Mutex
	captured    time.Duration
	interrupted bool
}

// NewTrackOutput wraps a room audio track as the session's audio sink.
func NewTrackOutput(track *rtc.AudioTrack) AudioOutput {
	return &trackOutput{track: track}
}

func (o *trackOutput) CaptureFrame(ctx context.Context, frame *rtc.AudioFrame) error {
	if err := o.track.WriteFrame(ctx, frame); err != nil {
		return err
	}
	o.mu.Lock()
	o.captured += frame.Duration()
	o.mu.Unlock()
	return nil
}

func (o *trackOutput) Flush(ctx context.Context) (PlaybackFinished, error) {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		o.mu.Lock()
		interrupted := o.interrupted
		o.mu.Unlock()
		if interrupted || o.track.QueuedDuration() == 0 {
			return o.finish(interrupted), nil
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return o.finish(true), ctx.Err()
		}
	}
}

func (o *trackOutput) finish(interrupted bool) PlaybackFinished {
	o.mu.Lock()
	defer o.mu.Unlock()
	pos := o.captured
	if interrupted {
		pos -= o.track.QueuedDuration()
		if pos < 0 {
			pos = 0
		}
	}
	o.captured = 0
	o.interrupted = false
	return PlaybackFinished{Position: pos, Interrupted: interrupted}
}

func (o *trackOutput) ClearBuffer() {
	o.mu.Lock()
	o.interrupted = true
	o.mu.Unlock()
	o.track.ClearBuffer()
}
