package voice

import (
	"sync"
	"time"

	"github.com/voxalabs/agents-go/pkg/audio/wav"
	"github.com/voxalabs/agents-go/pkg/rtc"
)

// backgroundChunk is the granularity background audio is served at.
const backgroundChunk = 10 * time.Millisecond

// BackgroundAudio loops an ambient audio bed behind the agent's voice: office
// noise, hold music, a "thinking" sound. It is a frame source plus a mixer;
// the caller pulls frames, or mixes them into foreground frames, and feeds
// the result to its output.
type BackgroundAudio struct {
	mu       sync.Mutex
	chunks   []*rtc.AudioFrame
	position int
	volume   float64
	enabled  bool
}

// LoadBackgroundAudio reads a WAV file and prepares it for looping at the
// given volume (clamped to [0,1]).
func LoadBackgroundAudio(path string, volume float64) (*BackgroundAudio, error) {
	frame, err := wav.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return newBackgroundAudio(frame, volume), nil
}

func newBackgroundAudio(frame *rtc.AudioFrame, volume float64) *BackgroundAudio {
	b := &BackgroundAudio{
		chunks:  wav.Split(frame, backgroundChunk),
		enabled: true,
	}
	b.SetVolume(volume)
	return b
}

// SetVolume adjusts the bed's level. Takes effect on the next frame.
func (b *BackgroundAudio) SetVolume(volume float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.volume = min(1, max(0, volume))
}

// SetEnabled pauses or resumes the bed without losing the loop position.
func (b *BackgroundAudio) SetEnabled(enabled bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.enabled = enabled
}

// Enabled reports whether the bed is currently audible.
func (b *BackgroundAudio) Enabled() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.enabled
}

// NextFrame returns the next scaled frame of the loop, or nil while the bed
// is disabled or empty. The returned frame is a copy.
func (b *BackgroundAudio) NextFrame() *rtc.AudioFrame {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.enabled || len(b.chunks) == 0 {
		return nil
	}
	chunk := b.chunks[b.position]
	b.position = (b.position + 1) % len(b.chunks)
	return scaleFrame(chunk, b.volume)
}

// MixFrame blends the next loop frame under a foreground frame, resampling
// the bed to the foreground's rate. With the bed disabled, the foreground
// passes through unchanged.
func (b *BackgroundAudio) MixFrame(foreground *rtc.AudioFrame) *rtc.AudioFrame {
	background := b.NextFrame()
	if background == nil {
		return foreground
	}
	if background.SampleRate != foreground.SampleRate {
		background = rtc.Resample(background, foreground.SampleRate)
	}
	return mixFrames(foreground, background)
}

func scaleFrame(frame *rtc.AudioFrame, volume float64) *rtc.AudioFrame {
	samples := frame.Samples()
	if volume != 1.0 {
		for i, s := range samples {
			samples[i] = clampSample(float64(s) * volume)
		}
	}
	return rtc.FrameFromSamples(samples, frame.SampleRate, frame.NumChannels)
}

// mixFrames averages the overlapping samples and keeps the foreground's tail.
func mixFrames(foreground, background *rtc.AudioFrame) *rtc.AudioFrame {
	fg := foreground.Samples()
	bg := background.Samples()

	mixed := make([]int16, len(fg))
	overlap := min(len(fg), len(bg))
	for i := range overlap {
		mixed[i] = clampSample((float64(fg[i]) + float64(bg[i])) / 2)
	}
	copy(mixed[overlap:], fg[overlap:])

	return rtc.FrameFromSamples(mixed, foreground.SampleRate, foreground.NumChannels)
}

func clampSample(v float64) int16 {
	switch {
	case v > 32767:
		return 32767
	case v < -32768:
		return -32768
	default:
		return int16(v)
	}
}
