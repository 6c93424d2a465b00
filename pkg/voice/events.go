// Package voice runs one agent conversation: audio in, recognition, turn
// detection, LLM generation, and synthesized audio out, with barge-in.
package voice

import (
	"time"

	"github.com/voxalabs/agents-go/pkg/ai/llm"
)

// AgentState is the session's user-visible mode.
type AgentState int32

const (
	StateInitializing AgentState = iota
	StateListening
	StateThinking
	StateSpeaking
)

func (s AgentState) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateListening:
		return "listening"
	case StateThinking:
		return "thinking"
	case StateSpeaking:
		return "speaking"
	default:
		return "unknown"
	}
}

// Event is the tagged sum delivered on the session's event channel.
type Event interface {
	eventName() string
}

// UserInputTranscribedEvent reports interim and final user transcripts.
type UserInputTranscribedEvent struct {
	Transcript string
	Final      bool
}

func (UserInputTranscribedEvent) eventName() string { return "user_input_transcribed" }

// AgentStateChangedEvent fires on listening/thinking/speaking transitions.
type AgentStateChangedEvent struct {
	Old AgentState
	New AgentState
}

func (AgentStateChangedEvent) eventName() string { return "agent_state_changed" }

// ConversationItemAddedEvent fires when a chat item is committed.
type ConversationItemAddedEvent struct {
	Item *llm.ChatItem
}

func (ConversationItemAddedEvent) eventName() string { return "conversation_item_added" }

// PlaybackFinishedEvent reports one utterance's playout result.
type PlaybackFinishedEvent struct {
	Position    time.Duration
	Interrupted bool
}

func (PlaybackFinishedEvent) eventName() string { return "playback_finished" }

// ErrorEvent surfaces a provider or pipeline failure. Source names the
// failing stage ("stt", "llm", "tts", "tool").
type ErrorEvent struct {
	Source string
	Err    error
}

func (ErrorEvent) eventName() string { return "error" }

// EndOfTurnInfo is handed to the turn-commit hook.
type EndOfTurnInfo struct {
	NewTranscript       string
	TranscriptionDelay  time.Duration
	EndOfUtteranceDelay time.Duration
}
