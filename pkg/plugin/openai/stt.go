package openai

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	goopenai "github.com/sashabaranov/go-openai"

	"github.com/voxalabs/agents-go/pkg/ai/stt"
	"github.com/voxalabs/agents-go/pkg/audio/wav"
	"github.com/voxalabs/agents-go/pkg/rtc"
	"github.com/voxalabs/agents-go/pkg/stream"
)

const (
	defaultWhisperModel = goopenai.Whisper1

	// segmentWindow is how much audio a stream buffers before sending a
	// batch to Whisper. The API has no true streaming mode, so the stream
	// is a windowed transcriber: one final per window, no interims.
	segmentWindow = 8 * time.Second
)

// STT transcribes audio with the Whisper API.
type STT struct {
	client   *goopenai.Client
	model    string
	language string
}

func NewSTT(cfg Config) (*STT, error) {
	client, err := cfg.client()
	if err != nil {
		return nil, err
	}
	model := cfg.Model
	if model == "" {
		model = defaultWhisperModel
	}
	return &STT{client: client, model: model, language: cfg.Language}, nil
}

func (s *STT) Label() string { return "openai.STT" }

func (s *STT) Capabilities() stt.Capabilities {
	return stt.Capabilities{Streaming: false, InterimResults: false}
}

func (s *STT) Recognize(ctx context.Context, frames []*rtc.AudioFrame, language string) (*stt.SpeechEvent, error) {
	if language == "" {
		language = s.language
	}
	text, lang, err := s.transcribe(ctx, frames, language)
	if err != nil {
		return nil, err
	}
	return &stt.SpeechEvent{
		Type:      stt.EventFinalTranscript,
		RequestID: uuid.NewString(),
		Alternatives: []stt.SpeechData{
			{Text: text, Language: lang, Confidence: 1.0},
		},
	}, nil
}

func (s *STT) NewStream(ctx context.Context, cfg stt.StreamConfig) (stt.Stream, error) {
	language := cfg.Language
	if language == "" {
		language = s.language
	}
	ws := &whisperStream{
		stt:       s,
		ctx:       ctx,
		language:  language,
		requestID: uuid.NewString(),
		events:    stream.NewMailbox[*stt.SpeechEvent](32),
	}
	return ws, nil
}

func (s *STT) transcribe(ctx context.Context, frames []*rtc.AudioFrame, language string) (string, string, error) {
	buf, err := wav.Encode(frames)
	if err != nil {
		return "", "", err
	}
	resp, err := s.client.CreateTranscription(ctx, goopenai.AudioRequest{
		Model:    s.model,
		Language: language,
		Format:   goopenai.AudioResponseFormatJSON,
		Reader:   bytes.NewReader(buf),
		FilePath: "audio.wav",
	})
	if err != nil {
		return "", "", fmt.Errorf("openai: transcription: %w", err)
	}
	lang := resp.Language
	if lang == "" {
		lang = language
	}
	return resp.Text, lang, nil
}

// whisperStream batches pushed audio into windows and transcribes each
// window as one final transcript.
type whisperStream struct {
	stt       *STT
	ctx       context.Context
	language  string
	requestID string
	events    *stream.Mailbox[*stt.SpeechEvent]

	mu       sync.Mutex
	frames   []*rtc.AudioFrame
	buffered time.Duration
	inflight sync.WaitGroup
	closed   bool
}

func (ws *whisperStream) PushFrame(frame *rtc.AudioFrame) error {
	ws.mu.Lock()
	if ws.closed {
		ws.mu.Unlock()
		return stream.ErrClosed
	}
	ws.frames = append(ws.frames, frame)
	ws.buffered += frame.Duration()
	var batch []*rtc.AudioFrame
	if ws.buffered >= segmentWindow {
		batch = ws.frames
		ws.frames = nil
		ws.buffered = 0
		ws.inflight.Add(1)
	}
	ws.mu.Unlock()

	if batch != nil {
		go ws.flushBatch(batch)
	}
	return nil
}

func (ws *whisperStream) flushBatch(batch []*rtc.AudioFrame) {
	defer ws.inflight.Done()
	text, lang, err := ws.stt.transcribe(ws.ctx, batch, ws.language)
	if err != nil || text == "" {
		return
	}
	ws.events.Put(context.Background(), &stt.SpeechEvent{
		Type:      stt.EventFinalTranscript,
		RequestID: ws.requestID,
		Alternatives: []stt.SpeechData{
			{Text: text, Language: lang, Confidence: 1.0},
		},
	})
}

func (ws *whisperStream) Read(ctx context.Context) (*stt.SpeechEvent, error) {
	return ws.events.Get(ctx)
}

func (ws *whisperStream) CloseSend() error {
	ws.mu.Lock()
	if ws.closed {
		ws.mu.Unlock()
		return nil
	}
	ws.closed = true
	batch := ws.frames
	ws.frames = nil
	if len(batch) > 0 {
		ws.inflight.Add(1)
	}
	ws.mu.Unlock()

	go func() {
		if len(batch) > 0 {
			ws.flushBatch(batch)
		}
		ws.inflight.Wait()
		ws.events.Close()
	}()
	return nil
}

func (ws *whisperStream) Close() error {
	ws.mu.Lock()
	ws.closed = true
	ws.frames = nil
	ws.mu.Unlock()
	ws.events.Close()
	return nil
}
