package rtc

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/hraban/opus"
	"github.com/livekit/protocol/livekit"
	lksdk "github.com/livekit/server-sdk-go/v2"
	"github.com/pion/webrtc/v4"

	"github.com/voxalabs/agents-go/pkg/stream"
)

// rtpSampleRate is what browsers encode microphone audio at.
const rtpSampleRate = 48000

// micMailboxCapacity bounds buffered decoded frames per participant; older
// frames are dropped when the session falls behind.
const micMailboxCapacity = 200

// ConnectOptions configures a room connection.
type ConnectOptions struct {
	URL      string
	Token    string
	Identity string
	Logger   *slog.Logger
}

// Room wraps the SDK room with the pieces a voice agent needs: waiting for
// the user, subscribing to their microphone as a frame stream, and
// publishing the agent's own audio track.
type Room struct {
	lk     *lksdk.Room
	logger *slog.Logger

	mu           sync.Mutex
	mics         map[string]*stream.Mailbox[*AudioFrame]
	participants map[string]*lksdk.RemoteParticipant
	waiters      []chan *lksdk.RemoteParticipant

	disconnected     chan struct{}
	disconnectOnce   sync.Once
	localIdentity    string
	publishedTracks  []*AudioTrack
	publishedTrackMu sync.Mutex
}

// Connect joins the room and begins decoding subscribed microphone tracks.
func Connect(ctx context.Context, opts ConnectOptions) (*Room, error) {
	if opts.URL == "" || opts.Token == "" {
		return nil, fmt.Errorf("rtc: url and token are required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	r := &Room{
		logger:        opts.Logger,
		mics:          make(map[string]*stream.Mailbox[*AudioFrame]),
		participants:  make(map[string]*lksdk.RemoteParticipant),
		disconnected:  make(chan struct{}),
		localIdentity: opts.Identity,
	}

	cb := &lksdk.RoomCallback{
		OnParticipantConnected:    r.onParticipantConnected,
		OnParticipantDisconnected: r.onParticipantDisconnected,
		OnDisconnected:            r.onDisconnected,
		ParticipantCallback: lksdk.ParticipantCallback{
			OnTrackSubscribed: r.onTrackSubscribed,
		},
	}

	room, err := lksdk.ConnectToRoomWithToken(opts.URL, opts.Token, cb)
	if err != nil {
		return nil, fmt.Errorf("rtc: connect to room: %w", err)
	}
	r.lk = room

	r.mu.Lock()
	for _, rp := range room.GetRemoteParticipants() {
		r.participants[rp.Identity()] = rp
	}
	r.mu.Unlock()

	r.logger.Info("connected to room",
		slog.String("room", room.Name()),
		slog.Int("remote_participants", len(room.GetRemoteParticipants())))
	return r, nil
}

// Name returns the room's name.
func (r *Room) Name() string { return r.lk.Name() }

// Disconnected is closed when the room connection ends.
func (r *Room) Disconnected() <-chan struct{} { return r.disconnected }

// RemoteParticipants snapshots the currently connected remote participants.
func (r *Room) RemoteParticipants() []*lksdk.RemoteParticipant {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*lksdk.RemoteParticipant, 0, len(r.participants))
	for _, rp := range r.participants {
		out = append(out, rp)
	}
	return out
}

// WaitForParticipant blocks until a remote participant joins (any, or the
// one named by identity). It errors if the room disconnects mid-wait.
func (r *Room) WaitForParticipant(ctx context.Context, identity string) (*lksdk.RemoteParticipant, error) {
	r.mu.Lock()
	if identity == "" {
		for _, rp := range r.participants {
			r.mu.Unlock()
			return rp, nil
		}
	} else if rp, ok := r.participants[identity]; ok {
		r.mu.Unlock()
		return rp, nil
	}
	waiter := make(chan *lksdk.RemoteParticipant, 1)
	r.waiters = append(r.waiters, waiter)
	r.mu.Unlock()

	for {
		select {
		case rp := <-waiter:
			if identity == "" || rp.Identity() == identity {
				return rp, nil
			}
			// Not the one we wanted; keep waiting.
			r.mu.Lock()
			r.waiters = append(r.waiters, waiter)
			r.mu.Unlock()
		case <-r.disconnected:
			return nil, fmt.Errorf("rtc: room disconnected while waiting for participant")
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// ParticipantAudio returns the decoded microphone stream for a participant.
// Frames are 48 kHz mono PCM; the session resamples as needed.
func (r *Room) ParticipantAudio(identity string) stream.Reader[*AudioFrame] {
	return r.micMailbox(identity)
}

func (r *Room) micMailbox(identity string) *stream.Mailbox[*AudioFrame] {
	r.mu.Lock()
	defer r.mu.Unlock()
	mb, ok := r.mics[identity]
	if !ok {
		mb = stream.NewMailbox[*AudioFrame](micMailboxCapacity)
		r.mics[identity] = mb
	}
	return mb
}

// PublishData sends reliable data to the room, used for transcription sync.
func (r *Room) PublishData(data []byte) error {
	return r.lk.LocalParticipant.PublishData(data, lksdk.WithDataPublishReliable(true))
}

// Disconnect leaves the room and ends all audio streams.
func (r *Room) Disconnect() {
	r.publishedTrackMu.Lock()
	tracks := r.publishedTracks
	r.publishedTrackMu.Unlock()
	for _, t := range tracks {
		t.Close()
	}
	r.lk.Disconnect()
	r.onDisconnected()
}

func (r *Room) onDisconnected() {
	r.disconnectOnce.Do(func() {
		close(r.disconnected)
		r.mu.Lock()
		for _, mb := range r.mics {
			mb.Close()
		}
		r.mu.Unlock()
		r.logger.Info("room disconnected")
	})
}

func (r *Room) onParticipantConnected(rp *lksdk.RemoteParticipant) {
	r.logger.Info("participant connected", slog.String("identity", rp.Identity()))
	r.mu.Lock()
	r.participants[rp.Identity()] = rp
	waiters := r.waiters
	r.waiters = nil
	r.mu.Unlock()
	for _, w := range waiters {
		select {
		case w <- rp:
		default:
		}
	}
}

func (r *Room) onParticipantDisconnected(rp *lksdk.RemoteParticipant) {
	r.logger.Info("participant disconnected", slog.String("identity", rp.Identity()))
	r.mu.Lock()
	delete(r.participants, rp.Identity())
	mb := r.mics[rp.Identity()]
	delete(r.mics, rp.Identity())
	r.mu.Unlock()
	if mb != nil {
		mb.Close()
	}
}

func (r *Room) onTrackSubscribed(track *webrtc.TrackRemote, pub *lksdk.RemoteTrackPublication, rp *lksdk.RemoteParticipant) {
	if track.Kind() != webrtc.RTPCodecTypeAudio {
		return
	}
	// Never process our own published audio; that is a feedback loop.
	if rp.Identity() == r.localIdentity {
		return
	}
	if pub.Source() != livekit.TrackSource_MICROPHONE && pub.Source() != livekit.TrackSource_UNKNOWN {
		return
	}
	r.logger.Info("subscribed to microphone",
		slog.String("identity", rp.Identity()),
		slog.String("track", pub.SID()))
	go r.pumpAudio(track, rp)
}

// pumpAudio decodes one opus track into the participant's frame mailbox.
// Frames are dropped, oldest-first in effect, when the mailbox is full.
func (r *Room) pumpAudio(track *webrtc.TrackRemote, rp *lksdk.RemoteParticipant) {
	decoder, err := opus.NewDecoder(rtpSampleRate, 1)
	if err != nil {
		r.logger.Error("failed to create opus decoder", slog.String("error", err.Error()))
		return
	}

	mb := r.micMailbox(rp.Identity())
	pcm := make([]int16, rtpSampleRate/1000*120) // up to a 120ms opus frame

	for {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			if err != io.EOF {
				r.logger.Warn("rtp read failed", slog.String("error", err.Error()))
			}
			return
		}
		if len(pkt.Payload) == 0 {
			continue
		}

		n, err := decoder.Decode(pkt.Payload, pcm)
		if err != nil {
			r.logger.Warn("opus decode failed", slog.String("error", err.Error()))
			continue
		}

		frame := FrameFromSamples(append([]int16(nil), pcm[:n]...), rtpSampleRate, 1)
		if mb.Closed() {
			return
		}
		if mb.Len() >= micMailboxCapacity {
			continue // consumer is behind; shed the frame
		}
		if err := mb.Put(context.Background(), frame); err != nil {
			return
		}
	}
}
