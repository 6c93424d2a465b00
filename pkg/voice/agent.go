package voice

import (
	"sync"

	"github.com/voxalabs/agents-go/pkg/ai/llm"
	"github.com/voxalabs/agents-go/pkg/ai/stt"
	"github.com/voxalabs/agents-go/pkg/ai/tts"
	"github.com/voxalabs/agents-go/pkg/ai/vad"
	"github.com/voxalabs/agents-go/pkg/turn"
)

// Agent is one conversational persona: instructions, tools, lifecycle
// hooks, and optional provider overrides. A session activates one agent at
// a time; tool handoffs swap it.
type Agent struct {
	// Name identifies the agent in logs and handoffs.
	Name string
	// Instructions is the system prompt.
	Instructions string
	// Tools the model may call while this agent is active.
	Tools *llm.ToolContext

	// OnEnter runs when the agent becomes active (session start or
	// handoff). OnExit runs when it stops being active.
	OnEnter func(sess *AgentSession)
	OnExit  func(sess *AgentSession)

	// Provider overrides; nil falls back to the session's provider.
	STT          stt.STT
	LLM          llm.LLM
	TTS          tts.TTS
	VAD          vad.VAD
	TurnDetector turn.Detector

	mu      sync.Mutex
	session *AgentSession
}

// attach sets the weak back-pointer to the activating session. The agent
// never outlives its activation.
func (a *Agent) attach(sess *AgentSession) {
	a.mu.Lock()
	a.session = sess
	a.mu.Unlock()
}

func (a *Agent) detach() {
	a.mu.Lock()
	a.session = nil
	a.mu.Unlock()
}

// Session returns the session this agent is active in, or nil.
func (a *Agent) Session() *AgentSession {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.session
}

// tools may return nil; ToolContext methods are nil-safe.
func (a *Agent) tools() *llm.ToolContext {
	return a.Tools
}
