package wav

import (
	"bytes"
	"testing"
	"time"

	"github.com/matryer/is"

	"github.com/voxalabs/agents-go/pkg/rtc"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	is := is.New(t)

	samples := make([]int16, 1600) // 100ms at 16kHz
	for i := range samples {
		samples[i] = int16(i % 512)
	}
	frame := rtc.FrameFromSamples(samples, 16000, 1)

	buf, err := Encode([]*rtc.AudioFrame{frame})
	is.NoErr(err)

	decoded, err := Decode(bytes.NewReader(buf))
	is.NoErr(err)
	is.Equal(decoded.SampleRate, 16000)
	is.Equal(decoded.NumChannels, 1)
	is.Equal(decoded.Data, frame.Data)
}

func TestEncodeRejectsMixedFormats(t *testing.T) {
	is := is.New(t)

	_, err := Encode([]*rtc.AudioFrame{
		rtc.EmptyAudioFrame(16000, 1, 10*time.Millisecond),
		rtc.EmptyAudioFrame(24000, 1, 10*time.Millisecond),
	})
	is.True(err != nil)
}

func TestDecodeRejectsNonWAV(t *testing.T) {
	is := is.New(t)

	_, err := Decode(bytes.NewReader([]byte("definitely not a wav file")))
	is.True(err != nil)
}

func TestDecodeSkipsMetadataChunks(t *testing.T) {
	is := is.New(t)

	frame := rtc.EmptyAudioFrame(16000, 1, 20*time.Millisecond)
	buf, err := Encode([]*rtc.AudioFrame{frame})
	is.NoErr(err)

	// Splice a LIST chunk between fmt and data.
	list := append([]byte("LIST"), 4, 0, 0, 0, 'I', 'N', 'F', 'O')
	spliced := append(append(append([]byte{}, buf[:36]...), list...), buf[36:]...)

	decoded, err := Decode(bytes.NewReader(spliced))
	is.NoErr(err)
	is.Equal(decoded.Data, frame.Data)
}

func TestSplitPreservesAudio(t *testing.T) {
	is := is.New(t)

	frame := rtc.EmptyAudioFrame(16000, 1, 95*time.Millisecond)
	chunks := Split(frame, 20*time.Millisecond)
	is.Equal(len(chunks), 5) // four 20ms chunks and a 15ms tail

	var total time.Duration
	for _, c := range chunks {
		total += c.Duration()
	}
	is.Equal(total, 95*time.Millisecond)
}
