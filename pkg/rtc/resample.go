package rtc

// Resample converts a frame to the target sample rate using linear
// interpolation, downmixing to mono first when the frame is multi-channel.
// Providers negotiate a common rate per session, so quality beyond linear
// interpolation is left to the capture pipeline.
func Resample(f *AudioFrame, targetRate int) *AudioFrame {
	src := f.Samples()
	if f.NumChannels > 1 {
		src = downmix(src, f.NumChannels)
	}
	if f.SampleRate == targetRate {
		out := FrameFromSamples(src, targetRate, 1)
		out.Timestamp = f.Timestamp
		return out
	}

	n := len(src) * targetRate / f.SampleRate
	if n == 0 {
		n = 1
	}
	dst := make([]int16, n)
	ratio := float64(len(src)-1) / float64(n-1)
	if n == 1 {
		ratio = 0
	}
	for i := range dst {
		pos := float64(i) * ratio
		j := int(pos)
		if j >= len(src)-1 {
			dst[i] = src[len(src)-1]
			continue
		}
		frac := pos - float64(j)
		dst[i] = int16(float64(src[j])*(1-frac) + float64(src[j+1])*frac)
	}

	out := FrameFromSamples(dst, targetRate, 1)
	out.Timestamp = f.Timestamp
	return out
}

func downmix(interleaved []int16, channels int) []int16 {
	mono := make([]int16, len(interleaved)/channels)
	for i := range mono {
		var sum int
		for c := 0; c < channels; c++ {
			sum += int(interleaved[i*channels+c])
		}
		mono[i] = int16(sum / channels)
	}
	return mono
}
