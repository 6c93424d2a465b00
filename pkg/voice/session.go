package voice

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/voxalabs/agents-go/pkg/ai/audio"
	"github.com/voxalabs/agents-go/pkg/ai/llm"
	"github.com/voxalabs/agents-go/pkg/ai/stt"
	"github.com/voxalabs/agents-go/pkg/ai/tts"
	"github.com/voxalabs/agents-go/pkg/ai/vad"
	"github.com/voxalabs/agents-go/pkg/rtc"
	"github.com/voxalabs/agents-go/pkg/stream"
	"github.com/voxalabs/agents-go/pkg/turn"
)

const (
	defaultMinEndpointingDelay = 800 * time.Millisecond
	defaultMaxEndpointingDelay = 5 * time.Second
	defaultMaxToolSteps        = 3
	defaultSampleRate          = 24000

	eventBusCapacity = 128
	micBusCapacity   = 64
)

// SessionOptions configures an AgentSession. Use DefaultSessionOptions as the
// base; the zero value disables interruptions and endpointing.
type SessionOptions struct {
	STT          stt.STT
	LLM          llm.LLM
	TTS          tts.TTS
	VAD          vad.VAD
	TurnDetector turn.Detector

	Language          string
	TurnDetectionMode TurnDetectionMode

	// MinEndpointingDelay is how long after the user stops speaking a reply
	// may start; MaxEndpointingDelay is used instead when the turn detector
	// thinks the user is not done.
	MinEndpointingDelay time.Duration
	MaxEndpointingDelay time.Duration

	// AllowInterruptions lets user speech cut off agent replies.
	AllowInterruptions bool

	// DiscardAudioIfUninterruptible defers committing the user's turn while an
	// uninterruptible reply is playing. Recognition keeps running; the buffered
	// turn commits once playout ends.
	DiscardAudioIfUninterruptible bool

	// MaxToolSteps bounds consecutive tool-call rounds within one reply.
	MaxToolSteps int

	// InputProcessor, when set, cleans each mic frame (echo cancellation,
	// noise suppression) before recognition sees it.
	InputProcessor audio.Processor

	// SampleRate and NumChannels describe the input audio.
	SampleRate  int
	NumChannels int

	Logger *slog.Logger
}

// DefaultSessionOptions returns the options a production session starts from.
func DefaultSessionOptions() SessionOptions {
	return SessionOptions{
		TurnDetectionMode:   TurnDetectionVAD,
		Language:            "en",
		MinEndpointingDelay: defaultMinEndpointingDelay,
		MaxEndpointingDelay: defaultMaxEndpointingDelay,
		AllowInterruptions:  true,
		MaxToolSteps:        defaultMaxToolSteps,
		SampleRate:          defaultSampleRate,
		NumChannels:         1,
	}
}

// AgentSession drives one conversation: recognition of user speech, turn
// detection, reply generation, and serialized speech playout.
type AgentSession struct {
	opts SessionOptions

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	queue       *speechQueue
	events      chan Event
	gate        TurnGate
	recognition *audioRecognition
	audioOut    AudioOutput
	textOut     TextOutput
	mic         *stream.Mailbox[*rtc.AudioFrame]

	mu      sync.Mutex
	agent   *Agent
	chatCtx *llm.ChatContext
	state   AgentState
	current *SpeechHandle
	started bool
	closed  bool
}

// NewAgentSession builds a session; Start activates it.
func NewAgentSession(opts SessionOptions) *AgentSession {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.MaxToolSteps <= 0 {
		opts.MaxToolSteps = defaultMaxToolSteps
	}
	if opts.SampleRate <= 0 {
		opts.SampleRate = defaultSampleRate
	}
	if opts.NumChannels <= 0 {
		opts.NumChannels = 1
	}
	return &AgentSession{
		opts:    opts,
		queue:   newSpeechQueue(),
		events:  make(chan Event, eventBusCapacity),
		gate:    NewTurnGate(),
		chatCtx: llm.NewChatContext(),
		state:   StateInitializing,
	}
}

// Start activates the agent over the given audio input and output sinks.
// textOut may be nil.
func (s *AgentSession) Start(ctx context.Context, agent *Agent, input stream.Reader[*rtc.AudioFrame], audioOut AudioOutput, textOut TextOutput) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return errors.New("voice: session already started")
	}
	s.started = true
	s.agent = agent
	s.mu.Unlock()

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.audioOut = audioOut
	s.textOut = textOut
	s.mic = stream.NewMailbox[*rtc.AudioFrame](micBusCapacity)

	agent.attach(s)
	if agent.Instructions != "" {
		s.mu.Lock()
		item := s.chatCtx.AddMessage(llm.RoleSystem, agent.Instructions)
		s.mu.Unlock()
		s.emit(ConversationItemAddedEvent{Item: item})
	}

	s.recognition = newAudioRecognition(recognitionOptions{
		STT:                 s.sttFor(agent),
		VAD:                 s.vadFor(agent),
		TurnDetector:        s.detectorFor(agent),
		Mode:                s.opts.TurnDetectionMode,
		Language:            s.opts.Language,
		MinEndpointingDelay: s.opts.MinEndpointingDelay,
		MaxEndpointingDelay: s.opts.MaxEndpointingDelay,
		SampleRate:          s.opts.SampleRate,
		NumChannels:         s.opts.NumChannels,
		ChatItems:           s.chatItems,
		Logger:              s.opts.Logger,
		Hooks: recognitionHooks{
			OnInterimTranscript: func(text string) {
				s.emit(UserInputTranscribedEvent{Transcript: text})
			},
			OnFinalTranscript: func(text string) {
				s.emit(UserInputTranscribedEvent{Transcript: text, Final: true})
			},
			OnEndOfTurn: s.onEndOfTurn,
		},
	})
	if err := s.recognition.start(s.ctx, s.mic); err != nil {
		s.cancel()
		return err
	}

	s.wg.Add(1)
	go s.pumpInput(input)

	s.wg.Add(1)
	go s.schedulerLoop()

	s.setState(StateListening)
	if agent.OnEnter != nil {
		agent.OnEnter(s)
	}
	return nil
}

// Events returns the session's event channel. Events are dropped, with a log
// line, when the consumer falls behind.
func (s *AgentSession) Events() <-chan Event { return s.events }

// State returns the session's current mode.
func (s *AgentSession) State() AgentState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// CurrentAgent returns the active agent.
func (s *AgentSession) CurrentAgent() *Agent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.agent
}

// ChatContext returns a copy of the conversation so far.
func (s *AgentSession) ChatContext() *llm.ChatContext {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chatCtx.Copy()
}

// UpdateChatContext replaces the conversation with newCtx, computing the
// minimal item diff so providers with server-side state can follow along.
func (s *AgentSession) UpdateChatContext(newCtx *llm.ChatContext) llm.ContextDiff {
	s.mu.Lock()
	defer s.mu.Unlock()
	diff := llm.DiffContext(s.chatCtx, newCtx)
	s.chatCtx = llm.ApplyDiff(s.chatCtx, diff)
	return diff
}

// SayOptions tunes a scripted utterance.
type SayOptions struct {
	Priority           int
	AllowInterruptions *bool // nil inherits the session default
}

// Say schedules a fixed utterance, bypassing the LLM.
func (s *AgentSession) Say(text string, opts SayOptions) *SpeechHandle {
	priority := opts.Priority
	if priority == 0 {
		priority = PriorityNormal
	}
	h := newSpeechHandle(SourceSay, priority, s.allowInterruptions(opts.AllowInterruptions))
	h.userInitiated = true
	h.run = func(ctx context.Context, h *SpeechHandle) {
		s.runSay(ctx, h, text)
	}
	s.enqueue(h)
	return h
}

// ReplyOptions tunes one generated reply.
type ReplyOptions struct {
	// UserInput is appended to the chat context as a user message first.
	UserInput string
	// Instructions overrides the prompt for this reply only.
	Instructions string
	Priority     int
}

// GenerateReply schedules an LLM-driven reply.
func (s *AgentSession) GenerateReply(opts ReplyOptions) *SpeechHandle {
	if opts.UserInput != "" {
		s.mu.Lock()
		item := s.chatCtx.AddMessage(llm.RoleUser, opts.UserInput)
		s.mu.Unlock()
		s.emit(ConversationItemAddedEvent{Item: item})
	}
	priority := opts.Priority
	if priority == 0 {
		priority = PriorityNormal
	}
	h := newSpeechHandle(SourceGenerateReply, priority, s.allowInterruptions(nil))
	h.run = func(ctx context.Context, h *SpeechHandle) {
		s.runGenerate(ctx, h, opts.Instructions)
	}
	s.enqueue(h)
	return h
}

// Interrupt stops the currently playing speech, if it permits interruptions.
// Reports whether anything was interrupted.
func (s *AgentSession) Interrupt() bool {
	s.mu.Lock()
	h := s.current
	s.mu.Unlock()
	if h == nil {
		return false
	}
	return h.Interrupt()
}

// CommitUserTurn ends the open user turn without waiting for endpointing.
func (s *AgentSession) CommitUserTurn() {
	if s.recognition != nil {
		s.recognition.CommitUserTurn()
	}
}

// ClearUserTurn discards the open user turn.
func (s *AgentSession) ClearUserTurn() error {
	if s.recognition == nil {
		return nil
	}
	return s.recognition.ClearUserTurn()
}

// Close shuts the session down: recognition stops, the queue is drained, and
// the current speech is interrupted.
func (s *AgentSession) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	agent := s.agent
	h := s.current
	s.mu.Unlock()

	if h != nil {
		h.Interrupt()
	}
	if s.recognition != nil {
		s.recognition.close()
	}
	if s.cancel != nil {
		s.cancel()
	}
	if s.mic != nil {
		s.mic.Close()
	}
	s.wg.Wait()
	if agent != nil {
		if agent.OnExit != nil {
			agent.OnExit(s)
		}
		agent.detach()
	}
	close(s.events)
}

func (s *AgentSession) allowInterruptions(override *bool) bool {
	if override != nil {
		return *override
	}
	return s.opts.AllowInterruptions
}

func (s *AgentSession) enqueue(h *SpeechHandle) {
	s.queue.push(h)
}

func (s *AgentSession) emit(ev Event) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	select {
	case s.events <- ev:
	default:
		s.opts.Logger.Warn("event bus full, dropping event", "event", ev.eventName())
	}
}

func (s *AgentSession) setState(next AgentState) {
	s.mu.Lock()
	old := s.state
	if old == next {
		s.mu.Unlock()
		return
	}
	s.state = next
	s.mu.Unlock()
	s.emit(AgentStateChangedEvent{Old: old, New: next})
}

func (s *AgentSession) chatItems() []*llm.ChatItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chatCtx.Copy().Items()
}

// pumpInput moves mic frames onto the session's bus. Frames flow to
// recognition unconditionally; the gate only holds turn commitment, so the
// transcript is intact the moment speech becomes interruptible again.
func (s *AgentSession) pumpInput(input stream.Reader[*rtc.AudioFrame]) {
	defer s.wg.Done()
	for {
		frame, err := input.Read(s.ctx)
		if err != nil {
			return
		}
		if p := s.opts.InputProcessor; p != nil {
			if err := p.ProcessCapture(frame); err != nil {
				s.opts.Logger.Warn("input processor failed, passing frame through",
					"error", err.Error())
			}
		}
		if err := s.mic.Put(s.ctx, frame); err != nil {
			return
		}
	}
}

// schedulerLoop serializes playout: one authorized handle at a time, highest
// priority first, FIFO within a priority.
func (s *AgentSession) schedulerLoop() {
	defer s.wg.Done()
	for {
		h, err := s.queue.pop(s.ctx)
		if err != nil {
			return
		}

		s.mu.Lock()
		s.current = h
		s.mu.Unlock()

		uninterruptible := !h.AllowInterruptions()
		if uninterruptible && s.opts.DiscardAudioIfUninterruptible {
			s.gate.SetTTSPlaying(true)
		}

		h.authorize()

		runCtx, cancelRun := context.WithCancel(s.ctx)
		watchDone := make(chan struct{})
		go func() {
			defer close(watchDone)
			select {
			case <-h.interrupted:
				cancelRun()
				s.audioOut.ClearBuffer()
			case <-h.done:
			case <-runCtx.Done():
			}
		}()

		h.run(runCtx, h)
		h.markDone(h.PlaybackPosition())
		cancelRun()
		<-watchDone

		if uninterruptible && s.opts.DiscardAudioIfUninterruptible {
			s.gate.SetTTSPlaying(false)
			// A turn held back during playout commits now.
			if s.recognition != nil {
				s.recognition.scheduleEndOfTurn()
			}
		}

		s.mu.Lock()
		s.current = nil
		s.mu.Unlock()
		s.setState(StateListening)
	}
}

// onEndOfTurn commits a detected user turn: interrupt the current reply when
// allowed, record the user message, and schedule the agent's answer.
func (s *AgentSession) onEndOfTurn(info EndOfTurnInfo) bool {
	if info.NewTranscript == "" {
		return false
	}
	// An uninterruptible reply is still playing; leave the transcript buffered
	// and let the scheduler re-trigger the commit when playout ends.
	if s.gate.ShouldHoldTurn() {
		return false
	}

	s.mu.Lock()
	closed := s.closed
	h := s.current
	s.mu.Unlock()
	if closed {
		return false
	}

	if h != nil && h.AllowInterruptions() {
		h.Interrupt()
	}

	s.mu.Lock()
	item := s.chatCtx.AddMessage(llm.RoleUser, info.NewTranscript)
	s.mu.Unlock()
	s.emit(ConversationItemAddedEvent{Item: item})

	s.setState(StateThinking)
	gh := newSpeechHandle(SourceGenerateReply, PriorityNormal, s.allowInterruptions(nil))
	gh.userInitiated = true
	gh.run = func(ctx context.Context, gh *SpeechHandle) {
		s.runGenerate(ctx, gh, "")
	}
	s.enqueue(gh)
	return true
}

func (s *AgentSession) sttFor(a *Agent) stt.STT {
	if a != nil && a.STT != nil {
		return a.STT
	}
	return s.opts.STT
}

func (s *AgentSession) llmFor(a *Agent) llm.LLM {
	if a != nil && a.LLM != nil {
		return a.LLM
	}
	return s.opts.LLM
}

func (s *AgentSession) ttsFor(a *Agent) tts.TTS {
	if a != nil && a.TTS != nil {
		return a.TTS
	}
	return s.opts.TTS
}

func (s *AgentSession) vadFor(a *Agent) vad.VAD {
	if a != nil && a.VAD != nil {
		return a.VAD
	}
	return s.opts.VAD
}

func (s *AgentSession) detectorFor(a *Agent) turn.Detector {
	if a != nil && a.TurnDetector != nil {
		return a.TurnDetector
	}
	return s.opts.TurnDetector
}
