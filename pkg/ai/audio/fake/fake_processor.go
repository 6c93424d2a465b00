// Package fake provides an audio processor for tests: a pass-through that
// optionally applies a gain so processing is observable in the output.
package fake

import (
	"sync"
	"time"

	"github.com/voxalabs/agents-go/pkg/ai/audio"
	"github.com/voxalabs/agents-go/pkg/rtc"
)

// Processor implements audio.Processor without any real DSP.
type Processor struct {
	config audio.ProcessorConfig

	// Gain scales capture samples; 1.0 (or 0) leaves them untouched.
	Gain float64

	mu       sync.Mutex
	captured int
	reversed int
	closed   bool
}

func New() *Processor {
	return &Processor{config: audio.DefaultProcessorConfig(), Gain: 1.0}
}

func NewWithConfig(config audio.ProcessorConfig) *Processor {
	return &Processor{config: config, Gain: 1.0}
}

func (p *Processor) ProcessReverse(frame *rtc.AudioFrame) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return audio.ErrFatal
	}
	p.reversed++
	return nil
}

func (p *Processor) ProcessCapture(frame *rtc.AudioFrame) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return audio.ErrFatal
	}
	p.captured++
	if p.Gain != 0 && p.Gain != 1.0 {
		samples := frame.Samples()
		for i, s := range samples {
			scaled := float64(s) * p.Gain
			switch {
			case scaled > 32767:
				samples[i] = 32767
			case scaled < -32768:
				samples[i] = -32768
			default:
				samples[i] = int16(scaled)
			}
		}
		scaled := rtc.FrameFromSamples(samples, frame.SampleRate, frame.NumChannels)
		copy(frame.Data, scaled.Data)
	}
	return nil
}

func (p *Processor) SetStreamDelay(d time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return audio.ErrFatal
	}
	return nil
}

func (p *Processor) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// CapturedFrames reports how many frames went through ProcessCapture.
func (p *Processor) CapturedFrames() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.captured
}

// ReverseFrames reports how many frames went through ProcessReverse.
func (p *Processor) ReverseFrames() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reversed
}
