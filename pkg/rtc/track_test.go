package rtc

import (
	"context"
	"testing"
	"time"

	"github.com/matryer/is"
)

// fakeEncoder stamps each 20ms chunk with a sequence number instead of
// actually compressing it.
type fakeEncoder struct {
	calls int
}

func (f *fakeEncoder) Encode(pcm []int16, data []byte) (int, error) {
	f.calls++
	data[0] = byte(f.calls)
	return 1, nil
}

func pcmFrame(rate int, d time.Duration) *AudioFrame {
	samples := make([]int16, int(time.Duration(rate)*d/time.Second))
	return FrameFromSamples(samples, rate, 1)
}

func TestPacketizer_EmitsFixedSizePackets(t *testing.T) {
	is := is.New(t)

	enc := &fakeEncoder{}
	p := newPacketizer(enc)
	ctx := context.Background()

	// 100ms at 48kHz: exactly five 20ms packets.
	is.NoErr(p.push(ctx, pcmFrame(48000, 100*time.Millisecond)))
	is.Equal(enc.calls, 5)
	is.Equal(p.queued(), 100*time.Millisecond)

	sample, err := p.NextSample(ctx)
	is.NoErr(err)
	is.Equal(sample.Duration, opusFrameDuration)
	is.Equal(sample.Data[0], byte(1)) // FIFO order
}

func TestPacketizer_BuffersSubPacketRemainder(t *testing.T) {
	is := is.New(t)

	p := newPacketizer(&fakeEncoder{})
	ctx := context.Background()

	// 30ms: one packet out, 10ms held back.
	is.NoErr(p.push(ctx, pcmFrame(48000, 30*time.Millisecond)))
	is.Equal(p.queued(), 30*time.Millisecond)

	// Another 10ms completes the second packet.
	is.NoErr(p.push(ctx, pcmFrame(48000, 10*time.Millisecond)))
	is.Equal(p.queued(), 40*time.Millisecond)
	p.mu.Lock()
	is.Equal(len(p.pending), 0)
	p.mu.Unlock()
}

func TestPacketizer_ResamplesInput(t *testing.T) {
	is := is.New(t)

	enc := &fakeEncoder{}
	p := newPacketizer(enc)

	// 24kHz input is upsampled to 48kHz: 40ms still yields two packets.
	is.NoErr(p.push(context.Background(), pcmFrame(24000, 40*time.Millisecond)))
	is.Equal(enc.calls, 2)
}

func TestPacketizer_ClearDropsEverything(t *testing.T) {
	is := is.New(t)

	p := newPacketizer(&fakeEncoder{})
	ctx := context.Background()

	is.NoErr(p.push(ctx, pcmFrame(48000, 70*time.Millisecond)))
	cleared := p.clear()
	is.Equal(cleared, 70*time.Millisecond)
	is.Equal(p.queued(), time.Duration(0))
}

func TestPacketizer_CloseEndsWriter(t *testing.T) {
	is := is.New(t)

	p := newPacketizer(&fakeEncoder{})
	is.NoErr(p.Close())
	is.NoErr(p.Close()) // idempotent

	_, err := p.NextSample(context.Background())
	is.True(err != nil)

	err = p.push(context.Background(), pcmFrame(48000, 20*time.Millisecond))
	is.True(err != nil)
}
