// Package rtc holds the audio primitives shared by providers and the room
// transport: PCM frames, resampling, and the frame sink/source contracts.
package rtc

import (
	"encoding/binary"
	"fmt"
	"time"
)

// AudioFrame is a chunk of 16-bit little-endian PCM audio.
// len(Data) == SamplesPerChannel * NumChannels * 2. Frame duration is
// provider-dependent; capture paths typically produce 10 ms frames.
//
// A zero Timestamp means "live"; otherwise it points to absolute wall-clock.
type AudioFrame struct {
	Data              []byte
	SampleRate        int
	SamplesPerChannel int
	NumChannels       int
	Timestamp         time.Duration // optional
}

// NewAudioFrame wraps data as a frame, deriving SamplesPerChannel from the
// byte length. The length must be a whole number of samples per channel.
func NewAudioFrame(data []byte, sampleRate, numChannels int) (*AudioFrame, error) {
	if sampleRate <= 0 || numChannels <= 0 {
		return nil, fmt.Errorf("rtc: invalid frame format %dHz/%dch", sampleRate, numChannels)
	}
	stride := numChannels * 2
	if len(data) == 0 || len(data)%stride != 0 {
		return nil, fmt.Errorf("rtc: frame data length %d is not a multiple of %d bytes", len(data), stride)
	}
	return &AudioFrame{
		Data:              data,
		SampleRate:        sampleRate,
		SamplesPerChannel: len(data) / stride,
		NumChannels:       numChannels,
	}, nil
}

// EmptyAudioFrame returns a silent frame of the given duration.
func EmptyAudioFrame(sampleRate, numChannels int, d time.Duration) *AudioFrame {
	samples := int(d * time.Duration(sampleRate) / time.Second)
	return &AudioFrame{
		Data:              make([]byte, samples*numChannels*2),
		SampleRate:        sampleRate,
		SamplesPerChannel: samples,
		NumChannels:       numChannels,
	}
}

// Clone creates a deep copy of the frame.
func (f *AudioFrame) Clone() *AudioFrame {
	data := make([]byte, len(f.Data))
	copy(data, f.Data)
	c := *f
	c.Data = data
	return &c
}

// Duration returns the playback duration of this frame.
func (f *AudioFrame) Duration() time.Duration {
	if f.SampleRate == 0 {
		return 0
	}
	return time.Duration(f.SamplesPerChannel) * time.Second / time.Duration(f.SampleRate)
}

// Samples decodes the PCM data into interleaved int16 samples.
func (f *AudioFrame) Samples() []int16 {
	out := make([]int16, len(f.Data)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(f.Data[i*2:]))
	}
	return out
}

// FrameFromSamples encodes interleaved int16 samples into a frame.
func FrameFromSamples(samples []int16, sampleRate, numChannels int) *AudioFrame {
	data := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(s))
	}
	return &AudioFrame{
		Data:              data,
		SampleRate:        sampleRate,
		SamplesPerChannel: len(samples) / numChannels,
		NumChannels:       numChannels,
	}
}
