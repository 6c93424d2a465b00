package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/google/uuid"
	goopenai "github.com/sashabaranov/go-openai"

	"github.com/voxalabs/agents-go/pkg/ai/tts"
	"github.com/voxalabs/agents-go/pkg/rtc"
	"github.com/voxalabs/agents-go/pkg/stream"
)

const (
	defaultSpeechModel = string(goopenai.TTSModel1)
	defaultVoice       = string(goopenai.VoiceAlloy)

	// The PCM response format is 24kHz mono signed 16-bit.
	speechSampleRate = 24000

	// speechChunkBytes is one read from the synthesis response: 4800
	// samples, 200ms.
	speechChunkBytes = 9600
)

// TTS synthesizes speech with the OpenAI speech API.
type TTS struct {
	client *goopenai.Client
	model  string
	voice  string
}

func NewTTS(cfg Config) (*TTS, error) {
	client, err := cfg.client()
	if err != nil {
		return nil, err
	}
	t := &TTS{client: client, model: cfg.Model, voice: cfg.Voice}
	if t.model == "" {
		t.model = defaultSpeechModel
	}
	if t.voice == "" {
		t.voice = defaultVoice
	}
	return t, nil
}

func (t *TTS) Label() string    { return "openai.TTS" }
func (t *TTS) SampleRate() int  { return speechSampleRate }
func (t *TTS) NumChannels() int { return 1 }

func (t *TTS) Capabilities() tts.Capabilities {
	// Segments stream; within a segment the API is request/response.
	return tts.Capabilities{Streaming: true}
}

func (t *TTS) Synthesize(ctx context.Context, text string) (tts.ChunkedStream, error) {
	s := t.newStream(ctx)
	if err := s.PushText(text); err != nil {
		return nil, err
	}
	if err := s.EndInput(); err != nil {
		return nil, err
	}
	return s, nil
}

func (t *TTS) NewStream(ctx context.Context) (tts.Stream, error) {
	return t.newStream(ctx), nil
}

func (t *TTS) newStream(ctx context.Context) *speechStream {
	s := &speechStream{
		tts:       t,
		ctx:       ctx,
		requestID: uuid.NewString(),
		segments:  stream.NewMailbox[speechSegment](16),
		out:       stream.NewMailbox[*tts.SynthesizedAudio](128),
	}
	go s.synthLoop()
	return s
}

type speechSegment struct {
	id   string
	text string
}

// speechStream buffers pushed text into segments; a single worker
// synthesizes segments in order so audio never interleaves.
type speechStream struct {
	tts       *TTS
	ctx       context.Context
	requestID string
	segments  *stream.Mailbox[speechSegment]
	out       *stream.Mailbox[*tts.SynthesizedAudio]

	mu      sync.Mutex
	pending strings.Builder
	closed  bool
}

func (s *speechStream) PushText(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return stream.ErrClosed
	}
	s.pending.WriteString(text)
	return nil
}

func (s *speechStream) Flush() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return stream.ErrClosed
	}
	text := s.pending.String()
	s.pending.Reset()
	s.mu.Unlock()

	if strings.TrimSpace(text) == "" {
		return nil
	}
	return s.segments.Put(s.ctx, speechSegment{id: uuid.NewString(), text: text})
}

func (s *speechStream) EndInput() error {
	if err := s.Flush(); err != nil && !errors.Is(err, stream.ErrClosed) {
		return err
	}
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.segments.Close()
	return nil
}

func (s *speechStream) Read(ctx context.Context) (*tts.SynthesizedAudio, error) {
	return s.out.Get(ctx)
}

func (s *speechStream) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.segments.Close()
	s.out.Close()
	return nil
}

func (s *speechStream) synthLoop() {
	defer s.out.Close()
	for {
		seg, err := s.segments.Get(s.ctx)
		if err != nil {
			return
		}
		if err := s.synthesizeSegment(seg); err != nil {
			// Segment order matters more than completeness; log via the
			// error chunk path is not part of the contract, so drop.
			continue
		}
	}
}

func (s *speechStream) synthesizeSegment(seg speechSegment) error {
	resp, err := s.tts.client.CreateSpeech(s.ctx, goopenai.CreateSpeechRequest{
		Model:          goopenai.SpeechModel(s.tts.model),
		Input:          seg.text,
		Voice:          goopenai.SpeechVoice(s.tts.voice),
		ResponseFormat: goopenai.SpeechResponseFormatPcm,
	})
	if err != nil {
		return fmt.Errorf("openai: speech synthesis: %w", err)
	}
	defer resp.Close()

	buf := make([]byte, speechChunkBytes)
	var carry []byte
	for {
		n, rerr := resp.Read(buf)
		if n > 0 {
			data := append(carry, buf[:n]...)
			// Frames must hold whole samples.
			usable := len(data) &^ 1
			carry = append(carry[:0], data[usable:]...)
			if usable > 0 {
				frame, ferr := rtc.NewAudioFrame(append([]byte{}, data[:usable]...), speechSampleRate, 1)
				if ferr == nil {
					s.out.Put(s.ctx, &tts.SynthesizedAudio{
						RequestID: s.requestID,
						SegmentID: seg.id,
						Frame:     frame,
					})
				}
			}
		}
		if rerr != nil {
			if !errors.Is(rerr, io.EOF) {
				return fmt.Errorf("openai: reading synthesis response: %w", rerr)
			}
			break
		}
	}

	// End-of-segment marker, frameless like the provider contract allows.
	s.out.Put(s.ctx, &tts.SynthesizedAudio{RequestID: s.requestID, SegmentID: seg.id, Final: true})
	return nil
}
