package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/voxalabs/agents-go/pkg/ai/llm"
	"github.com/voxalabs/agents-go/pkg/ai/stt"
	"github.com/voxalabs/agents-go/pkg/ai/tts"
	"github.com/voxalabs/agents-go/pkg/ai/vad"
	"github.com/voxalabs/agents-go/pkg/job"
	"github.com/voxalabs/agents-go/pkg/plugin"
	"github.com/voxalabs/agents-go/pkg/rtc"
	"github.com/voxalabs/agents-go/pkg/turn"
	"github.com/voxalabs/agents-go/pkg/voice"
)

const providersKey = "voxa.providers"

// englishUnlikelyThreshold mirrors the english model's languages.json entry,
// so proxied detection applies the same window widening as a local model.
const englishUnlikelyThreshold = 0.15

type providers struct {
	stt stt.STT
	llm llm.LLM
	tts tts.TTS
	vad vad.VAD
}

func buildProviders(cfg *Config) (*providers, error) {
	s, err := plugin.NewSTT(cfg.Providers.STT.Name, cfg.Providers.STT.Options)
	if err != nil {
		return nil, fmt.Errorf("stt provider: %w", err)
	}
	l, err := plugin.NewLLM(cfg.Providers.LLM.Name, cfg.Providers.LLM.Options)
	if err != nil {
		return nil, fmt.Errorf("llm provider: %w", err)
	}
	t, err := plugin.NewTTS(cfg.Providers.TTS.Name, cfg.Providers.TTS.Options)
	if err != nil {
		return nil, fmt.Errorf("tts provider: %w", err)
	}
	v, err := plugin.NewVAD(cfg.Providers.VAD.Name, cfg.Providers.VAD.Options)
	if err != nil {
		return nil, fmt.Errorf("vad provider: %w", err)
	}
	return &providers{stt: s, llm: l, tts: t, vad: v}, nil
}

// assistantDefinition is the job the worker runs for every assignment: join
// the room, wait for the user, and hold a voice session until the job ends.
func assistantDefinition(cfg *Config) job.Definition {
	return job.Definition{
		AgentName: cfg.AgentName,
		Prewarm: func(p *job.Process) error {
			provs, err := buildProviders(cfg)
			if err != nil {
				return err
			}
			p.UserData[providersKey] = provs
			return nil
		},
		Entry: func(jc *job.JobContext) error {
			return runAssistant(cfg, jc)
		},
	}
}

func runAssistant(cfg *Config, jc *job.JobContext) error {
	provs, ok := jc.Proc.UserData[providersKey].(*providers)
	if !ok {
		var err error
		provs, err = buildProviders(cfg)
		if err != nil {
			return err
		}
	}

	room, err := jc.Connect(jc.Ctx)
	if err != nil {
		return err
	}

	participant, err := room.WaitForParticipant(jc.Ctx, jc.Info.Job.Participant)
	if err != nil {
		return err
	}

	track, err := room.NewAudioTrack("agent-voice")
	if err != nil {
		return err
	}

	opts := sessionOptions(cfg, provs, jc)
	sess := voice.NewAgentSession(opts)
	agent := &voice.Agent{
		Name:         cfg.AgentName,
		Instructions: cfg.Session.Instructions,
	}

	input := room.ParticipantAudio(participant.Identity())
	if err := sess.Start(jc.Ctx, agent, input, voice.NewTrackOutput(track), &transcriptOutput{room: room}); err != nil {
		return err
	}
	jc.OnShutdown(func(reason string) { sess.Close() })

	go logSessionEvents(jc.Logger, sess)

	if cfg.Session.Greeting != "" {
		sess.Say(cfg.Session.Greeting, voice.SayOptions{})
	}

	select {
	case <-jc.Done():
	case <-room.Disconnected():
		jc.Logger.Info("room closed, ending job")
	}
	sess.Close()
	return nil
}

func sessionOptions(cfg *Config, provs *providers, jc *job.JobContext) voice.SessionOptions {
	opts := voice.DefaultSessionOptions()
	opts.STT = provs.stt
	opts.LLM = provs.llm
	opts.TTS = provs.tts
	opts.VAD = provs.vad
	opts.Logger = jc.Logger

	if cfg.Session.Language != "" {
		opts.Language = cfg.Session.Language
	}
	if cfg.Session.AllowInterruptions != nil {
		opts.AllowInterruptions = *cfg.Session.AllowInterruptions
	}
	if cfg.Session.MinEndpointingDelayMS > 0 {
		opts.MinEndpointingDelay = time.Duration(cfg.Session.MinEndpointingDelayMS) * time.Millisecond
	}
	if cfg.Session.MaxEndpointingDelayMS > 0 {
		opts.MaxEndpointingDelay = time.Duration(cfg.Session.MaxEndpointingDelayMS) * time.Millisecond
	}
	if cfg.Session.MaxToolSteps > 0 {
		opts.MaxToolSteps = cfg.Session.MaxToolSteps
	}
	switch cfg.Session.TurnDetection {
	case "stt":
		opts.TurnDetectionMode = voice.TurnDetectionSTT
	case "manual":
		opts.TurnDetectionMode = voice.TurnDetectionManual
	case "realtime":
		opts.TurnDetectionMode = voice.TurnDetectionRealtime
	default:
		opts.TurnDetectionMode = voice.TurnDetectionVAD
	}

	// End-of-turn predictions run on the worker's shared model, reached over
	// the job's IPC channel.
	if !cfg.Turn.Disabled && jc.Inference != nil {
		opts.TurnDetector = turn.NewProxyDetector(jc.Inference, map[string]float64{
			"en": englishUnlikelyThreshold,
		})
	}
	return opts
}

// transcriptOutput publishes the agent's spoken text to the room as reliable
// data messages, so clients can render captions in sync with the audio.
type transcriptOutput struct {
	room *rtc.Room
}

type transcriptPayload struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func (o *transcriptOutput) CaptureText(ctx context.Context, text string) error {
	data, err := json.Marshal(transcriptPayload{Type: "agent_transcript", Text: text})
	if err != nil {
		return err
	}
	return o.room.PublishData(data)
}

func (o *transcriptOutput) Flush(ctx context.Context) error { return nil }

func logSessionEvents(logger *slog.Logger, sess *voice.AgentSession) {
	for ev := range sess.Events() {
		switch e := ev.(type) {
		case voice.ErrorEvent:
			logger.Error("session error",
				slog.String("source", e.Source),
				slog.String("error", e.Err.Error()))
		case voice.UserInputTranscribedEvent:
			if e.Final {
				logger.Debug("user transcript", slog.String("text", e.Transcript))
			}
		case voice.AgentStateChangedEvent:
			logger.Debug("agent state",
				slog.String("from", e.Old.String()),
				slog.String("to", e.New.String()))
		case voice.PlaybackFinishedEvent:
			logger.Debug("playback finished",
				slog.Duration("position", e.Position),
				slog.Bool("interrupted", e.Interrupted))
		}
	}
}
