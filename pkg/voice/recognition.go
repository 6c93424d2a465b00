package voice

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/voxalabs/agents-go/pkg/ai/llm"
	"github.com/voxalabs/agents-go/pkg/ai/stt"
	"github.com/voxalabs/agents-go/pkg/ai/vad"
	"github.com/voxalabs/agents-go/pkg/rtc"
	"github.com/voxalabs/agents-go/pkg/stream"
	"github.com/voxalabs/agents-go/pkg/turn"
)

// TurnDetectionMode selects what ends a user turn.
type TurnDetectionMode string

const (
	TurnDetectionVAD    TurnDetectionMode = "vad"
	TurnDetectionSTT    TurnDetectionMode = "stt"
	TurnDetectionManual TurnDetectionMode = "manual"

	// TurnDetectionRealtime delegates turn detection to a realtime speech
	// model. No such model ships yet; sessions fall back to VAD.
	TurnDetectionRealtime TurnDetectionMode = "realtime"
)

// commitFlushWindow is how long a manual commit waits for buffered final
// transcripts when the last final is stale.
const commitFlushWindow = 500 * time.Millisecond

// recognitionHooks are the session callbacks driven by the recognition loop.
// OnEndOfTurn returns true when the turn was consumed; the transcript buffer
// is cleared only then.
type recognitionHooks struct {
	OnStartOfSpeech     func()
	OnEndOfSpeech       func()
	OnVADInferenceDone  func(ev *vad.Event)
	OnInterimTranscript func(text string)
	OnFinalTranscript   func(text string)
	OnEndOfTurn         func(info EndOfTurnInfo) bool
}

type recognitionOptions struct {
	STT          stt.STT
	VAD          vad.VAD
	TurnDetector turn.Detector

	Mode                TurnDetectionMode
	Language            string
	MinEndpointingDelay time.Duration
	MaxEndpointingDelay time.Duration
	SampleRate          int
	NumChannels         int

	// ChatItems snapshots the conversation for the turn detector.
	ChatItems func() []*llm.ChatItem

	Hooks  recognitionHooks
	Logger *slog.Logger
}

// audioRecognition fans the input audio into VAD and STT, maintains the open
// turn's transcript, and schedules end-of-utterance detection. Only the
// latest EOU plan is ever live: each trigger cancels the previous timer task.
type audioRecognition struct {
	opts recognitionOptions

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu             sync.Mutex
	sttStream      stt.Stream
	vadStream      vad.Stream
	transcriptBuf  string
	interimBuf     string
	lastFinalAt    time.Time
	lastSpeakingAt time.Time
	speaking       bool
	committed      bool
	eouTask        *stream.Task[struct{}]
	closed         bool
}

func newAudioRecognition(opts recognitionOptions) *audioRecognition {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	switch opts.Mode {
	case "":
		opts.Mode = TurnDetectionVAD
	case TurnDetectionRealtime:
		opts.Logger.Warn("no realtime model available, falling back to vad turn detection")
		opts.Mode = TurnDetectionVAD
	}
	return &audioRecognition{opts: opts}
}

// start opens the provider streams and begins pumping input frames into both.
func (r *audioRecognition) start(ctx context.Context, input stream.Reader[*rtc.AudioFrame]) error {
	r.ctx, r.cancel = context.WithCancel(ctx)

	ss, err := r.opts.STT.NewStream(r.ctx, stt.StreamConfig{
		SampleRate:  r.opts.SampleRate,
		NumChannels: r.opts.NumChannels,
		Language:    r.opts.Language,
	})
	if err != nil {
		r.cancel()
		return err
	}

	var vs vad.Stream
	if r.opts.VAD != nil {
		vs, err = r.opts.VAD.NewStream(r.ctx)
		if err != nil {
			ss.Close()
			r.cancel()
			return err
		}
	}

	r.mu.Lock()
	r.sttStream = ss
	r.vadStream = vs
	r.mu.Unlock()

	r.wg.Add(1)
	go r.pumpAudio(input)

	r.wg.Add(1)
	go r.sttLoop(ss)

	if vs != nil {
		r.wg.Add(1)
		go r.vadLoop(vs)
	}
	return nil
}

func (r *audioRecognition) close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	ss, vs := r.sttStream, r.vadStream
	task := r.eouTask
	r.mu.Unlock()

	if task != nil {
		task.Cancel()
	}
	r.cancel()
	if ss != nil {
		ss.Close()
	}
	if vs != nil {
		vs.Close()
	}
	r.wg.Wait()
}

// pumpAudio is the single reader of the input: every frame is cloned to both
// provider streams so neither can starve the other.
func (r *audioRecognition) pumpAudio(input stream.Reader[*rtc.AudioFrame]) {
	defer r.wg.Done()
	for {
		frame, err := input.Read(r.ctx)
		if err != nil {
			return
		}
		r.mu.Lock()
		ss, vs := r.sttStream, r.vadStream
		r.mu.Unlock()
		if ss != nil {
			if err := ss.PushFrame(frame); err != nil {
				r.opts.Logger.Debug("stt push failed", "error", err)
			}
		}
		if vs != nil {
			if err := vs.PushFrame(frame); err != nil {
				r.opts.Logger.Debug("vad push failed", "error", err)
			}
		}
	}
}

func (r *audioRecognition) vadLoop(vs vad.Stream) {
	defer r.wg.Done()
	for {
		ev, err := vs.Read(r.ctx)
		if err != nil {
			return
		}
		switch ev.Type {
		case vad.EventStartOfSpeech:
			r.mu.Lock()
			r.speaking = true
			task := r.eouTask
			r.eouTask = nil
			r.mu.Unlock()
			if task != nil {
				task.Cancel()
			}
			if r.opts.Hooks.OnStartOfSpeech != nil {
				r.opts.Hooks.OnStartOfSpeech()
			}
		case vad.EventInferenceDone:
			if r.opts.Hooks.OnVADInferenceDone != nil {
				r.opts.Hooks.OnVADInferenceDone(ev)
			}
		case vad.EventEndOfSpeech:
			r.mu.Lock()
			r.speaking = false
			// The utterance ended SilenceDuration before the event fired.
			r.lastSpeakingAt = time.Now().Add(-ev.SilenceDuration)
			r.mu.Unlock()
			if r.opts.Hooks.OnEndOfSpeech != nil {
				r.opts.Hooks.OnEndOfSpeech()
			}
			if r.opts.Mode == TurnDetectionVAD {
				r.scheduleEndOfTurn()
			}
		}
	}
}

// sttLoop follows one provider stream; ClearUserTurn replaces the stream and
// spawns a fresh loop, so this one just drains until its stream ends.
func (r *audioRecognition) sttLoop(ss stt.Stream) {
	defer r.wg.Done()
	for {
		ev, err := ss.Read(r.ctx)
		if err != nil {
			return
		}
		r.mu.Lock()
		if r.sttStream != ss {
			// Stale stream after ClearUserTurn; drop its leftovers.
			r.mu.Unlock()
			continue
		}
		r.mu.Unlock()
		r.handleSTTEvent(ev)
	}
}

func (r *audioRecognition) handleSTTEvent(ev *stt.SpeechEvent) {
	switch ev.Type {
	case stt.EventStartOfSpeech:
		if r.opts.VAD == nil {
			r.mu.Lock()
			r.speaking = true
			task := r.eouTask
			r.eouTask = nil
			r.mu.Unlock()
			if task != nil {
				task.Cancel()
			}
		}
	case stt.EventEndOfSpeech:
		if r.opts.VAD == nil {
			r.mu.Lock()
			r.speaking = false
			r.lastSpeakingAt = time.Now()
			r.mu.Unlock()
		}
	case stt.EventInterimTranscript:
		r.mu.Lock()
		r.interimBuf = ev.Text()
		r.mu.Unlock()
		if r.opts.Hooks.OnInterimTranscript != nil {
			r.opts.Hooks.OnInterimTranscript(ev.Text())
		}
	case stt.EventFinalTranscript:
		r.mu.Lock()
		r.transcriptBuf = strings.TrimPrefix(r.transcriptBuf+" "+ev.Text(), " ")
		r.interimBuf = ""
		r.lastFinalAt = time.Now()
		speaking := r.speaking
		committed := r.committed
		r.mu.Unlock()
		if r.opts.Hooks.OnFinalTranscript != nil {
			r.opts.Hooks.OnFinalTranscript(ev.Text())
		}
		vadDisabled := r.opts.VAD == nil || r.opts.Mode == TurnDetectionSTT
		if !speaking && (vadDisabled || committed) {
			r.scheduleEndOfTurn()
		}
	}
}

// currentTranscript returns the open turn's accumulated final text.
func (r *audioRecognition) currentTranscript() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.transcriptBuf
}

// scheduleEndOfTurn replaces any pending EOU plan with a fresh one.
func (r *audioRecognition) scheduleEndOfTurn() {
	if r.opts.Mode == TurnDetectionManual {
		r.mu.Lock()
		committed := r.committed
		r.mu.Unlock()
		if !committed {
			return
		}
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	prev := r.eouTask
	task := stream.Go(r.ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, r.runEndOfTurn(ctx)
	})
	r.eouTask = task
	r.mu.Unlock()

	if prev != nil {
		prev.Cancel()
	}
}

func (r *audioRecognition) runEndOfTurn(ctx context.Context) error {
	delay := r.opts.MinEndpointingDelay

	r.mu.Lock()
	transcript := r.transcriptBuf
	lastSpeakingAt := r.lastSpeakingAt
	lastFinalAt := r.lastFinalAt
	r.mu.Unlock()
	if lastSpeakingAt.IsZero() {
		lastSpeakingAt = time.Now()
	}

	if det := r.opts.TurnDetector; det != nil &&
		r.opts.Mode != TurnDetectionManual &&
		det.SupportsLanguage(r.opts.Language) {
		p, err := det.PredictEndOfTurn(ctx, turn.ChatContext{
			Items:    r.detectorItems(transcript),
			Language: r.opts.Language,
		})
		if err != nil {
			r.opts.Logger.Warn("end-of-turn prediction failed", "error", err)
		} else if threshold, terr := det.UnlikelyThreshold(r.opts.Language); terr == nil && p < threshold {
			delay = r.opts.MaxEndpointingDelay
		}
	}

	if wait := time.Until(lastSpeakingAt.Add(delay)); wait > 0 {
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	info := EndOfTurnInfo{
		NewTranscript:       transcript,
		TranscriptionDelay:  max(lastFinalAt.Sub(lastSpeakingAt), 0),
		EndOfUtteranceDelay: delay,
	}
	if r.opts.Hooks.OnEndOfTurn != nil && r.opts.Hooks.OnEndOfTurn(info) {
		r.mu.Lock()
		r.transcriptBuf = strings.TrimPrefix(strings.TrimPrefix(r.transcriptBuf, info.NewTranscript), " ")
		r.committed = false
		r.mu.Unlock()
	}
	return nil
}

func (r *audioRecognition) detectorItems(transcript string) []*llm.ChatItem {
	var items []*llm.ChatItem
	if r.opts.ChatItems != nil {
		items = r.opts.ChatItems()
	}
	out := make([]*llm.ChatItem, 0, len(items)+1)
	out = append(out, items...)
	out = append(out, &llm.ChatItem{Role: llm.RoleUser, Content: transcript})
	return out
}

// CommitUserTurn forces the open turn to end. If the last final transcript is
// stale it waits briefly so buffered finals can flush, then folds any interim
// text into the transcript and runs end-of-utterance.
func (r *audioRecognition) CommitUserTurn() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.committed = true
	lastFinalAt := r.lastFinalAt
	prev := r.eouTask
	task := stream.Go(r.ctx, func(ctx context.Context) (struct{}, error) {
		if time.Since(lastFinalAt) > commitFlushWindow {
			select {
			case <-time.After(commitFlushWindow):
			case <-ctx.Done():
				return struct{}{}, ctx.Err()
			}
		}
		r.mu.Lock()
		if r.interimBuf != "" {
			r.transcriptBuf = strings.TrimPrefix(r.transcriptBuf+" "+r.interimBuf, " ")
			r.interimBuf = ""
		}
		r.mu.Unlock()
		return struct{}{}, r.runEndOfTurn(ctx)
	})
	r.eouTask = task
	r.mu.Unlock()

	if prev != nil {
		prev.Cancel()
	}
}

// ClearUserTurn drops the open turn, including any provider-side accumulation:
// the STT stream is torn down and reopened.
func (r *audioRecognition) ClearUserTurn() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.transcriptBuf = ""
	r.interimBuf = ""
	r.committed = false
	old := r.sttStream
	task := r.eouTask
	r.eouTask = nil
	r.mu.Unlock()

	if task != nil {
		task.Cancel()
	}

	ss, err := r.opts.STT.NewStream(r.ctx, stt.StreamConfig{
		SampleRate:  r.opts.SampleRate,
		NumChannels: r.opts.NumChannels,
		Language:    r.opts.Language,
	})
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.sttStream = ss
	r.mu.Unlock()

	if old != nil {
		old.Close()
	}
	r.wg.Add(1)
	go r.sttLoop(ss)
	return nil
}
