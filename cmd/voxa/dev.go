package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/voxalabs/agents-go/pkg/audio/wav"
	"github.com/voxalabs/agents-go/pkg/rtc"
	"github.com/voxalabs/agents-go/pkg/stream"
	"github.com/voxalabs/agents-go/pkg/voice"
)

const devFrameDuration = 20 * time.Millisecond

var devCmd = &cobra.Command{
	Use:   "dev",
	Short: "Run a single agent session in-process with a console client",
	Long: `dev runs one agent session locally, no dispatch server or room involved.
Typed lines become user turns; commands:
  /say <text>   make the agent speak the text verbatim
  /wav <file>   stream a WAV file into the session as microphone audio
  /interrupt    interrupt the agent mid-reply
  /quit         end the session`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(configPath)
		if err != nil {
			return err
		}
		if cfg.Log.Format == "json" {
			cfg.Log.Format = "text" // console session; keep logs readable
		}
		logger := setupLogger(cfg.Log)

		provs, err := buildProviders(cfg)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		opts := voice.DefaultSessionOptions()
		opts.STT = provs.stt
		opts.LLM = provs.llm
		opts.TTS = provs.tts
		opts.VAD = provs.vad
		opts.Logger = logger
		if cfg.Session.Language != "" {
			opts.Language = cfg.Session.Language
		}

		sess := voice.NewAgentSession(opts)
		agent := &voice.Agent{Name: cfg.AgentName, Instructions: cfg.Session.Instructions}
		mic := stream.NewMailbox[*rtc.AudioFrame](64)

		if err := sess.Start(ctx, agent, mic, &devAudioSink{}, &consoleText{}); err != nil {
			return err
		}
		defer sess.Close()
		go logSessionEvents(logger, sess)

		if cfg.Session.Greeting != "" {
			sess.Say(cfg.Session.Greeting, voice.SayOptions{})
		}

		fmt.Println("dev session ready; type a message, /help for commands")
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			switch {
			case line == "":
				continue
			case line == "/quit":
				return nil
			case line == "/help":
				fmt.Println(cmd.Long)
			case line == "/interrupt":
				if !sess.Interrupt() {
					fmt.Println("(nothing to interrupt)")
				}
			case strings.HasPrefix(line, "/say "):
				sess.Say(strings.TrimPrefix(line, "/say "), voice.SayOptions{})
			case strings.HasPrefix(line, "/wav "):
				path := strings.TrimSpace(strings.TrimPrefix(line, "/wav "))
				if err := streamWAV(ctx, mic, path); err != nil {
					fmt.Printf("(wav error: %v)\n", err)
				}
			default:
				sess.GenerateReply(voice.ReplyOptions{UserInput: line})
			}
			if ctx.Err() != nil {
				return nil
			}
		}
		return scanner.Err()
	},
}

// streamWAV feeds a file into the mic stream at real-time pace, so VAD sees
// the same timeline a live microphone would produce.
func streamWAV(ctx context.Context, mic *stream.Mailbox[*rtc.AudioFrame], path string) error {
	frame, err := wav.ReadFile(path)
	if err != nil {
		return err
	}
	chunks := wav.Split(frame, devFrameDuration)
	fmt.Printf("(streaming %s: %s of audio)\n", path, frame.Duration().Round(time.Millisecond))

	go func() {
		ticker := time.NewTicker(devFrameDuration)
		defer ticker.Stop()
		for _, chunk := range chunks {
			if err := mic.Put(ctx, chunk); err != nil {
				return
			}
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}

// devAudioSink pretends synthesized audio plays instantly; dev sessions are
// about the text loop, not playout timing.
type devAudioSink struct {
	mu          sync.Mutex
	captured    time.Duration
	interrupted bool
}

func (s *devAudioSink) CaptureFrame(ctx context.Context, frame *rtc.AudioFrame) error {
	s.mu.Lock()
	s.captured += frame.Duration()
	s.mu.Unlock()
	return nil
}

func (s *devAudioSink) Flush(ctx context.Context) (voice.PlaybackFinished, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := voice.PlaybackFinished{Position: s.captured, Interrupted: s.interrupted}
	s.captured = 0
	s.interrupted = false
	return out, nil
}

func (s *devAudioSink) ClearBuffer() {
	s.mu.Lock()
	s.interrupted = true
	s.mu.Unlock()
}

// consoleText prints each spoken sentence as the agent says it.
type consoleText struct{}

func (consoleText) CaptureText(ctx context.Context, text string) error {
	fmt.Printf("agent: %s\n", strings.TrimSpace(text))
	return nil
}

func (consoleText) Flush(ctx context.Context) error { return nil }
