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
)

var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Join a room as a console client to test a running agent",
	Long: `connect joins the room as a regular participant, publishes WAV files as
microphone audio, and optionally records the agent's replies. Commands:
  send <file>   stream a WAV file to the agent as speech
  quit          leave the room`,
	RunE: func(cmd *cobra.Command, args []string) error {
		url, _ := cmd.Flags().GetString("url")
		token, _ := cmd.Flags().GetString("token")
		record, _ := cmd.Flags().GetString("record")
		identity, _ := cmd.Flags().GetString("identity")
		if url == "" {
			url = os.Getenv("LIVEKIT_URL")
		}
		if url == "" || token == "" {
			return fmt.Errorf("--url (or LIVEKIT_URL) and --token are required")
		}

		logger := setupLogger(LogConfig{Level: "warn", Format: "text"})

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		room, err := rtc.Connect(ctx, rtc.ConnectOptions{
			URL:      url,
			Token:    token,
			Identity: identity,
			Logger:   logger,
		})
		if err != nil {
			return err
		}
		defer room.Disconnect()

		mic, err := room.NewAudioTrack("console-mic")
		if err != nil {
			return err
		}

		fmt.Println("waiting for the agent to join...")
		agent, err := room.WaitForParticipant(ctx, "")
		if err != nil {
			return err
		}
		fmt.Printf("agent %q is in the room\n", agent.Identity())

		rec := &replyRecorder{}
		if record != "" {
			go rec.capture(ctx, room.ParticipantAudio(agent.Identity()))
			defer func() {
				if err := rec.save(record); err != nil {
					fmt.Printf("(record error: %v)\n", err)
				} else {
					fmt.Printf("agent audio saved to %s\n", record)
				}
			}()
		}

		scanner := bufio.NewScanner(os.Stdin)
		fmt.Println("connected; 'send <file.wav>' to speak, 'quit' to leave")
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			switch {
			case line == "":
				continue
			case line == "quit":
				return nil
			case strings.HasPrefix(line, "send "):
				path := strings.TrimSpace(strings.TrimPrefix(line, "send "))
				if err := publishWAV(ctx, mic, path); err != nil {
					fmt.Printf("(send error: %v)\n", err)
				}
			default:
				fmt.Println("unknown command; 'send <file.wav>' or 'quit'")
			}
			if ctx.Err() != nil {
				return nil
			}
			select {
			case <-room.Disconnected():
				fmt.Println("room closed")
				return nil
			default:
			}
		}
		return scanner.Err()
	},
}

func init() {
	connectCmd.Flags().String("url", "", "LiveKit server URL (defaults to LIVEKIT_URL)")
	connectCmd.Flags().String("token", "", "room access token")
	connectCmd.Flags().String("identity", "console", "participant identity")
	connectCmd.Flags().String("record", "", "write the agent's audio to this WAV file on exit")
}

// publishWAV pushes a file through the published track at real-time pace.
func publishWAV(ctx context.Context, track *rtc.AudioTrack, path string) error {
	frame, err := wav.ReadFile(path)
	if err != nil {
		return err
	}
	chunks := wav.Split(frame, devFrameDuration)
	fmt.Printf("(sending %s: %s of audio)\n", path, frame.Duration().Round(time.Millisecond))

	ticker := time.NewTicker(devFrameDuration)
	defer ticker.Stop()
	for _, chunk := range chunks {
		if err := track.WriteFrame(ctx, chunk); err != nil {
			return err
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// replyRecorder accumulates the agent's decoded audio for saving on exit.
type replyRecorder struct {
	mu     sync.Mutex
	frames []*rtc.AudioFrame
}

func (r *replyRecorder) capture(ctx context.Context, in stream.Reader[*rtc.AudioFrame]) {
	for {
		frame, err := in.Read(ctx)
		if err != nil {
			return
		}
		r.mu.Lock()
		r.frames = append(r.frames, frame)
		r.mu.Unlock()
	}
}

func (r *replyRecorder) save(path string) error {
	r.mu.Lock()
	frames := r.frames
	r.mu.Unlock()
	if len(frames) == 0 {
		return fmt.Errorf("no agent audio received")
	}
	return wav.WriteFile(path, frames)
}
