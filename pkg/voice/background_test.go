package voice

import (
	"testing"

	"github.com/matryer/is"

	"github.com/voxalabs/agents-go/pkg/rtc"
)

func backgroundBed(t *testing.T, samples []int16, volume float64) *BackgroundAudio {
	t.Helper()
	return newBackgroundAudio(rtc.FrameFromSamples(samples, 16000, 1), volume)
}

func TestBackgroundAudio_LoopsAndScales(t *testing.T) {
	is := is.New(t)

	// 20ms of audio at 16kHz = two 10ms chunks of 160 samples each.
	samples := make([]int16, 320)
	for i := range samples {
		samples[i] = 1000
	}
	bed := backgroundBed(t, samples, 0.5)

	first := bed.NextFrame()
	is.True(first != nil)
	is.Equal(first.Samples()[0], int16(500)) // volume applied

	bed.NextFrame()
	third := bed.NextFrame() // wrapped back to the first chunk
	is.Equal(third.Samples()[0], int16(500))
}

func TestBackgroundAudio_DisabledYieldsNil(t *testing.T) {
	is := is.New(t)

	bed := backgroundBed(t, make([]int16, 160), 1.0)
	bed.SetEnabled(false)
	is.True(bed.NextFrame() == nil)

	bed.SetEnabled(true)
	is.True(bed.NextFrame() != nil)
}

func TestBackgroundAudio_MixAveragesAndKeepsTail(t *testing.T) {
	is := is.New(t)

	bedSamples := make([]int16, 160)
	for i := range bedSamples {
		bedSamples[i] = 2000
	}
	bed := backgroundBed(t, bedSamples, 1.0)

	// Foreground longer than one bed chunk; the tail stays untouched.
	fg := make([]int16, 200)
	for i := range fg {
		fg[i] = 1000
	}
	mixed := bed.MixFrame(rtc.FrameFromSamples(fg, 16000, 1))

	out := mixed.Samples()
	is.Equal(out[0], int16(1500))   // averaged with the bed
	is.Equal(out[199], int16(1000)) // past the bed's chunk
}

func TestBackgroundAudio_MixClampsOverflow(t *testing.T) {
	is := is.New(t)

	bedSamples := make([]int16, 160)
	for i := range bedSamples {
		bedSamples[i] = 32767
	}
	bed := backgroundBed(t, bedSamples, 1.0)

	fg := make([]int16, 160)
	for i := range fg {
		fg[i] = 32767
	}
	mixed := bed.MixFrame(rtc.FrameFromSamples(fg, 16000, 1))
	is.Equal(mixed.Samples()[0], int16(32767))
}
