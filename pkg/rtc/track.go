package rtc

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/hraban/opus"
	"github.com/livekit/protocol/livekit"
	lksdk "github.com/livekit/server-sdk-go/v2"
	"github.com/pion/webrtc/v4"
	webrtcmedia "github.com/pion/webrtc/v4/pkg/media"
)

// opusFrameDuration is the packet size we encode at; 20ms is the WebRTC
// default and what browsers expect from a voice track.
const opusFrameDuration = 20 * time.Millisecond

const opusFrameSamples = int(rtpSampleRate / 1000 * 20)

// maxQueuedPackets bounds the encoded backlog (~2s of audio).
const maxQueuedPackets = 100

type opusEncoder interface {
	Encode(pcm []int16, data []byte) (int, error)
}

// AudioTrack is a published audio track fed by PCM frames. Frames of any
// rate/channel layout are accepted; they are downmixed and resampled to
// 48 kHz mono before opus encoding.
type AudioTrack struct {
	pk    *packetizer
	local *lksdk.LocalSampleTrack
	pub   *lksdk.LocalTrackPublication
}

// NewAudioTrack creates and publishes the agent's voice track.
func (r *Room) NewAudioTrack(name string) (*AudioTrack, error) {
	enc, err := opus.NewEncoder(rtpSampleRate, 1, opus.AppVoIP)
	if err != nil {
		return nil, fmt.Errorf("rtc: create opus encoder: %w", err)
	}

	t := &AudioTrack{pk: newPacketizer(enc)}

	local, err := lksdk.NewLocalSampleTrack(webrtc.RTPCodecCapability{
		MimeType: webrtc.MimeTypeOpus,
	})
	if err != nil {
		return nil, fmt.Errorf("rtc: create local track: %w", err)
	}
	if err := local.StartWrite(t.pk, func() {}); err != nil {
		return nil, fmt.Errorf("rtc: start track writer: %w", err)
	}

	pub, err := r.lk.LocalParticipant.PublishTrack(local, &lksdk.TrackPublicationOptions{
		Name:   name,
		Source: livekit.TrackSource_MICROPHONE,
	})
	if err != nil {
		return nil, fmt.Errorf("rtc: publish track: %w", err)
	}

	t.local = local
	t.pub = pub

	r.publishedTrackMu.Lock()
	r.publishedTracks = append(r.publishedTracks, t)
	r.publishedTrackMu.Unlock()
	return t, nil
}

// WriteFrame queues one PCM frame for playout.
func (t *AudioTrack) WriteFrame(ctx context.Context, frame *AudioFrame) error {
	return t.pk.push(ctx, frame)
}

// ClearBuffer drops all queued audio, both pending PCM and encoded packets.
// Returns how much audio (by duration) was discarded.
func (t *AudioTrack) ClearBuffer() time.Duration {
	return t.pk.clear()
}

// QueuedDuration reports how much audio is waiting to play.
func (t *AudioTrack) QueuedDuration() time.Duration {
	return t.pk.queued()
}

// Close ends the track; queued audio is discarded.
func (t *AudioTrack) Close() {
	t.pk.Close()
}

// packetizer buffers PCM, encodes fixed 20ms opus packets, and hands them to
// the SDK's sample writer. Implements lksdk.SampleProvider.
type packetizer struct {
	enc opusEncoder

	mu      sync.Mutex
	pending []int16 // 48kHz mono samples not yet filling a packet
	queue   chan packet
	closed  bool
	closeCh chan struct{}
}

type packet struct {
	data []byte
}

func newPacketizer(enc opusEncoder) *packetizer {
	return &packetizer{
		enc:     enc,
		queue:   make(chan packet, maxQueuedPackets),
		closeCh: make(chan struct{}),
	}
}

func (p *packetizer) push(ctx context.Context, frame *AudioFrame) error {
	mono := Resample(frame, rtpSampleRate)

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return fmt.Errorf("rtc: track is closed")
	}
	p.pending = append(p.pending, mono.Samples()...)
	packets, err := p.encodePendingLocked()
	p.mu.Unlock()
	if err != nil {
		return err
	}

	for _, pkt := range packets {
		select {
		case p.queue <- pkt:
		case <-p.closeCh:
			return fmt.Errorf("rtc: track is closed")
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// encodePendingLocked drains full 20ms chunks from pending into packets.
func (p *packetizer) encodePendingLocked() ([]packet, error) {
	var out []packet
	buf := make([]byte, 1500)
	for len(p.pending) >= opusFrameSamples {
		chunk := p.pending[:opusFrameSamples]
		n, err := p.enc.Encode(chunk, buf)
		if err != nil {
			return out, fmt.Errorf("rtc: opus encode: %w", err)
		}
		out = append(out, packet{data: append([]byte(nil), buf[:n]...)})
		p.pending = p.pending[opusFrameSamples:]
	}
	return out, nil
}

func (p *packetizer) clear() time.Duration {
	p.mu.Lock()
	cleared := time.Duration(len(p.pending)) * time.Second / rtpSampleRate
	p.pending = nil
	p.mu.Unlock()

	for {
		select {
		case <-p.queue:
			cleared += opusFrameDuration
		default:
			return cleared
		}
	}
}

func (p *packetizer) queued() time.Duration {
	p.mu.Lock()
	pending := time.Duration(len(p.pending)) * time.Second / rtpSampleRate
	p.mu.Unlock()
	return pending + time.Duration(len(p.queue))*opusFrameDuration
}

// NextSample feeds the SDK writer. Blocks until a packet is available.
func (p *packetizer) NextSample(ctx context.Context) (webrtcmedia.Sample, error) {
	select {
	case pkt := <-p.queue:
		return webrtcmedia.Sample{Data: pkt.data, Duration: opusFrameDuration}, nil
	case <-p.closeCh:
		return webrtcmedia.Sample{}, io.EOF
	case <-ctx.Done():
		return webrtcmedia.Sample{}, ctx.Err()
	}
}

func (p *packetizer) OnBind() error   { return nil }
func (p *packetizer) OnUnbind() error { return nil }

func (p *packetizer) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.pending = nil
	p.mu.Unlock()
	close(p.closeCh)
	return nil
}
