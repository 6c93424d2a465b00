// Package audio defines the capture-path audio processor: echo cancellation
// and cleanup applied to microphone frames before recognition sees them.
package audio

import (
	"time"

	"github.com/voxalabs/agents-go/pkg/ai"
	"github.com/voxalabs/agents-go/pkg/rtc"
)

var (
	ErrRecoverable = ai.ErrRecoverable
	ErrFatal       = ai.ErrFatal
)

// ProcessorConfig toggles the individual processing stages.
type ProcessorConfig struct {
	EchoCancellation bool
	NoiseSuppression bool
	HighPassFilter   bool
	AutoGainControl  bool
}

// DefaultProcessorConfig enables every stage.
func DefaultProcessorConfig() ProcessorConfig {
	return ProcessorConfig{
		EchoCancellation: true,
		NoiseSuppression: true,
		HighPassFilter:   true,
		AutoGainControl:  true,
	}
}

// DisabledProcessorConfig turns every stage off; useful in tests or when the
// capture path is already clean.
func DisabledProcessorConfig() ProcessorConfig {
	return ProcessorConfig{}
}

func (c ProcessorConfig) WithEchoCancellation(enabled bool) ProcessorConfig {
	c.EchoCancellation = enabled
	return c
}

func (c ProcessorConfig) WithNoiseSuppression(enabled bool) ProcessorConfig {
	c.NoiseSuppression = enabled
	return c
}

func (c ProcessorConfig) WithHighPassFilter(enabled bool) ProcessorConfig {
	c.HighPassFilter = enabled
	return c
}

func (c ProcessorConfig) WithAutoGainControl(enabled bool) ProcessorConfig {
	c.AutoGainControl = enabled
	return c
}

// Processor cleans up microphone audio in-place. Implementations wrap an
// acoustic echo canceller, so the far-end (speaker) signal must be fed to
// ProcessReverse for ProcessCapture to subtract it.
type Processor interface {
	// ProcessReverse observes a far-end frame. 10ms frames only.
	ProcessReverse(frame *rtc.AudioFrame) error

	// ProcessCapture cleans a near-end frame in place.
	ProcessCapture(frame *rtc.AudioFrame) error

	// SetStreamDelay reports the measured delay between the reverse and
	// capture paths, needed while echo cancellation is on.
	SetStreamDelay(d time.Duration) error

	Close() error
}
