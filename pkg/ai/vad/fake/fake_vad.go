// Package fake provides an energy-threshold VAD for tests and the dev loop.
// Frames whose mean absolute amplitude exceeds the threshold count as speech;
// boundaries are detected with a configurable silence hangover.
package fake

import (
	"context"
	"sync"
	"time"

	"github.com/voxalabs/agents-go/pkg/ai/vad"
	"github.com/voxalabs/agents-go/pkg/rtc"
	"github.com/voxalabs/agents-go/pkg/stream"
)

const inferenceWindow = 100 * time.Millisecond

// Options tunes the detector.
type Options struct {
	// AmplitudeThreshold above which a frame counts as speech. Default 500.
	AmplitudeThreshold int

	// MinSilence of trailing quiet before END_OF_SPEECH. Default 200ms.
	MinSilence time.Duration
}

// VAD is an energy-threshold detector.
type VAD struct {
	opts Options
}

func New(opts Options) *VAD {
	if opts.AmplitudeThreshold <= 0 {
		opts.AmplitudeThreshold = 500
	}
	if opts.MinSilence <= 0 {
		opts.MinSilence = 200 * time.Millisecond
	}
	return &VAD{opts: opts}
}

func (v *VAD) Label() string { return "fake.VAD" }

func (v *VAD) Capabilities() vad.Capabilities {
	return vad.Capabilities{UpdateInterval: inferenceWindow}
}

func (v *VAD) NewStream(ctx context.Context) (vad.Stream, error) {
	return &Stream{
		opts:   v.opts,
		events: stream.NewMailbox[*vad.Event](32),
	}, nil
}

// Stream tracks speech state over the pushed audio's own timeline: durations
// are derived from frame lengths, not wall clock, so tests are deterministic.
type Stream struct {
	opts   Options
	events *stream.Mailbox[*vad.Event]

	mu          sync.Mutex
	clock       time.Duration // total audio consumed
	speaking    bool
	speechStart time.Duration
	silentSince time.Duration
	sinceInfer  time.Duration
	lastProb    float64
	closed      bool

	pumpMu     sync.Mutex
	cancelPump context.CancelFunc
}

func (s *Stream) PushFrame(frame *rtc.AudioFrame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return stream.ErrClosed
	}

	s.clock += frame.Duration()
	s.sinceInfer += frame.Duration()
	loud := s.meanAbs(frame) > s.opts.AmplitudeThreshold
	if loud {
		s.lastProb = 1.0
	} else {
		s.lastProb = 0.0
	}

	switch {
	case loud && !s.speaking:
		s.speaking = true
		s.speechStart = s.clock - frame.Duration()
		s.emit(&vad.Event{
			Type:        vad.EventStartOfSpeech,
			Timestamp:   s.speechStart,
			Probability: 1.0,
		})
	case loud && s.speaking:
		s.silentSince = 0
	case !loud && s.speaking:
		if s.silentSince == 0 {
			s.silentSince = s.clock - frame.Duration()
		}
		silence := s.clock - s.silentSince
		if silence >= s.opts.MinSilence {
			s.speaking = false
			s.emit(&vad.Event{
				Type:            vad.EventEndOfSpeech,
				Timestamp:       s.clock,
				SpeechDuration:  s.silentSince - s.speechStart,
				SilenceDuration: silence,
			})
			s.silentSince = 0
		}
	}

	if s.sinceInfer >= inferenceWindow {
		s.sinceInfer = 0
		s.emit(&vad.Event{
			Type:        vad.EventInferenceDone,
			Timestamp:   s.clock,
			Probability: s.lastProb,
		})
	}
	return nil
}

func (s *Stream) meanAbs(frame *rtc.AudioFrame) int {
	samples := frame.Samples()
	if len(samples) == 0 {
		return 0
	}
	var sum int
	for _, v := range samples {
		if v < 0 {
			v = -v
		}
		sum += int(v)
	}
	return sum / len(samples)
}

func (s *Stream) emit(ev *vad.Event) {
	s.events.Put(context.Background(), ev)
}

// Emit injects an event, letting tests script boundary sequences directly.
func (s *Stream) Emit(ev *vad.Event) {
	s.events.Put(context.Background(), ev)
}

func (s *Stream) UpdateInputStream(src stream.Reader[*rtc.AudioFrame]) {
	s.pumpMu.Lock()
	if s.cancelPump != nil {
		s.cancelPump()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancelPump = cancel
	s.pumpMu.Unlock()

	go func() {
		for {
			frame, err := src.Read(ctx)
			if err != nil {
				return
			}
			if err := s.PushFrame(frame); err != nil {
				return
			}
		}
	}()
}

func (s *Stream) Read(ctx context.Context) (*vad.Event, error) {
	return s.events.Get(ctx)
}

func (s *Stream) Close() error {
	s.pumpMu.Lock()
	if s.cancelPump != nil {
		s.cancelPump()
	}
	s.pumpMu.Unlock()

	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.events.Close()
	return nil
}
