package voice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/voxalabs/agents-go/pkg/ai/llm"
	"github.com/voxalabs/agents-go/pkg/stream"
	"github.com/voxalabs/agents-go/pkg/tokenize"
)

// runSay synthesizes a fixed utterance straight through TTS.
func (s *AgentSession) runSay(ctx context.Context, h *SpeechHandle, text string) {
	agent := s.CurrentAgent()
	chunks, err := s.ttsFor(agent).Synthesize(ctx, text)
	if err != nil {
		s.emit(ErrorEvent{Source: "tts", Err: err})
		h.markDone(0)
		return
	}
	defer chunks.Close()

	h.markPlaying()
	s.setState(StateSpeaking)
	for {
		chunk, err := chunks.Read(ctx)
		if err != nil {
			break
		}
		if chunk.Frame == nil {
			continue
		}
		if err := s.audioOut.CaptureFrame(ctx, chunk.Frame); err != nil {
			break
		}
	}

	finished, _ := s.audioOut.Flush(s.ctx)
	s.emit(PlaybackFinishedEvent{Position: finished.Position, Interrupted: finished.Interrupted})

	s.mu.Lock()
	item := s.chatCtx.AddMessage(llm.RoleAssistant, text)
	s.mu.Unlock()
	s.emit(ConversationItemAddedEvent{Item: item})
	h.markDone(finished.Position)
}

// runGenerate drives the reply loop for one speech handle: LLM completion,
// sentence-by-sentence synthesis, then tool execution, up to MaxToolSteps
// rounds of tools before the loop is cut off.
func (s *AgentSession) runGenerate(ctx context.Context, h *SpeechHandle, instructions string) {
	var finished PlaybackFinished

	for step := 0; ; step++ {
		agent := s.CurrentAgent()
		s.setState(StateThinking)

		chat, err := s.llmFor(agent).Chat(ctx, s.buildRequest(agent, instructions))
		if err != nil {
			s.emit(ErrorEvent{Source: "llm", Err: err})
			break
		}
		text, spoken, calls, serr := s.streamCompletion(ctx, h, chat)
		chat.Close()

		finished, _ = s.audioOut.Flush(s.ctx)
		if finished.Interrupted {
			text = spoken
		}
		s.emit(PlaybackFinishedEvent{Position: finished.Position, Interrupted: finished.Interrupted})

		if text != "" {
			s.mu.Lock()
			item := s.chatCtx.AddMessage(llm.RoleAssistant, text)
			s.mu.Unlock()
			s.emit(ConversationItemAddedEvent{Item: item})
		}
		if serr != nil && !errors.Is(serr, context.Canceled) {
			s.emit(ErrorEvent{Source: "llm", Err: serr})
			break
		}
		if len(calls) == 0 || finished.Interrupted || ctx.Err() != nil {
			break
		}
		if step >= s.opts.MaxToolSteps {
			s.opts.Logger.Warn("tool step limit reached", "limit", s.opts.MaxToolSteps)
			break
		}
		s.executeTools(ctx, agent, calls)
	}

	h.markDone(finished.Position)
}

// streamCompletion splits one model stream into synthesized speech and tool
// calls. It returns the full reply text, the prefix whose audio actually
// reached the output, and the accumulated tool calls.
func (s *AgentSession) streamCompletion(ctx context.Context, h *SpeechHandle, chat llm.ChatStream) (text, spoken string, calls []llm.ToolCallDelta, err error) {
	agent := s.CurrentAgent()
	ttsStream, terr := s.ttsFor(agent).NewStream(ctx)
	if terr != nil {
		s.emit(ErrorEvent{Source: "tts", Err: terr})
		// Without synthesis we still drain the model for text and tools.
	}
	tok := tokenize.NewSentenceTokenizer().NewStream()

	// Sentences in synthesis order; segments complete in the same order.
	var (
		trackMu   sync.Mutex
		sentences []string
		spokenLen int
	)

	var wg sync.WaitGroup

	// Model reader: content to the tokenizer, tool deltas merged by call id.
	var (
		fullText string
		acc      = newToolCallAccumulator()
		chatErr  error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer tok.EndInput()
		for {
			chunk, rerr := chat.Read(ctx)
			if rerr != nil {
				if !errors.Is(rerr, stream.ErrDone) {
					chatErr = rerr
				}
				return
			}
			if chunk.Delta.Content != "" {
				fullText += chunk.Delta.Content
				tok.PushText(chunk.Delta.Content)
			}
			for _, tc := range chunk.Delta.ToolCalls {
				acc.add(tc)
			}
		}
	}()

	// Sentence feeder: one TTS segment per sentence.
	wg.Add(1)
	go func() {
		defer wg.Done()
		if ttsStream != nil {
			defer ttsStream.EndInput()
		}
		for {
			sentence, rerr := tok.Read(ctx)
			if rerr != nil {
				return
			}
			trackMu.Lock()
			sentences = append(sentences, sentence)
			trackMu.Unlock()
			if ttsStream != nil {
				ttsStream.PushText(sentence)
				ttsStream.Flush()
			}
			if s.textOut != nil {
				if werr := s.textOut.CaptureText(ctx, sentence); werr != nil {
					s.opts.Logger.Debug("transcript capture failed", "error", werr)
				}
			}
		}
	}()

	// Audio pump: frames to the sink; a segment's Final chunk marks its
	// sentence as spoken.
	if ttsStream != nil {
		started := false
		segment := 0
		for {
			chunk, rerr := ttsStream.Read(ctx)
			if rerr != nil {
				break
			}
			if !started {
				started = true
				h.markPlaying()
				s.setState(StateSpeaking)
			}
			if chunk.Frame != nil {
				if cerr := s.audioOut.CaptureFrame(ctx, chunk.Frame); cerr != nil {
					break
				}
			}
			if chunk.Final {
				trackMu.Lock()
				if segment < len(sentences) {
					spokenLen += len(sentences[segment])
					segment++
				}
				trackMu.Unlock()
			}
		}
		ttsStream.Close()
	}

	wg.Wait()
	if s.textOut != nil {
		s.textOut.Flush(ctx)
	}

	trackMu.Lock()
	if spokenLen > len(fullText) {
		spokenLen = len(fullText)
	}
	spoken = fullText[:spokenLen]
	trackMu.Unlock()

	return fullText, spoken, acc.calls(), chatErr
}

func (s *AgentSession) buildRequest(agent *Agent, instructions string) llm.ChatRequest {
	s.mu.Lock()
	cc := s.chatCtx.Copy()
	s.mu.Unlock()
	if instructions != "" {
		cc.AddMessage(llm.RoleSystem, instructions)
	}
	return llm.ChatRequest{
		ChatCtx:    cc,
		ToolCtx:    agent.tools(),
		ToolChoice: llm.ToolChoiceAuto,
	}
}

// executeTools runs each completed call and records its output. A Handoff
// result swaps the active agent before the next completion round.
func (s *AgentSession) executeTools(ctx context.Context, agent *Agent, calls []llm.ToolCallDelta) {
	for _, call := range calls {
		s.mu.Lock()
		item := s.chatCtx.AddToolCall(call.ID, call.Name, call.Arguments)
		s.mu.Unlock()
		s.emit(ConversationItemAddedEvent{Item: item})

		output := s.runTool(ctx, agent, call)

		s.mu.Lock()
		item = s.chatCtx.AddToolOutput(call.ID, call.Name, output)
		s.mu.Unlock()
		s.emit(ConversationItemAddedEvent{Item: item})
	}
}

func (s *AgentSession) runTool(ctx context.Context, agent *Agent, call llm.ToolCallDelta) string {
	tool, ok := agent.tools().Get(call.Name)
	if !ok {
		s.opts.Logger.Warn("model called unknown tool", "tool", call.Name)
		return fmt.Sprintf("unknown tool %q", call.Name)
	}

	result, err := tool.Handler(ctx, call.Arguments, llm.ToolInfo{CallID: call.ID})
	var toolErr *llm.ToolError
	switch {
	case errors.As(err, &toolErr):
		// Model-visible failure; the model gets a chance to recover.
		return toolErr.Msg
	case err != nil:
		s.opts.Logger.Error("tool execution failed", "tool", call.Name, "error", err)
		s.emit(ErrorEvent{Source: "tool", Err: err})
		return "tool execution failed"
	}

	switch v := result.(type) {
	case *llm.Handoff:
		return s.performHandoff(v)
	case llm.Handoff:
		return s.performHandoff(&v)
	case string:
		return v
	case nil:
		return ""
	default:
		b, merr := json.Marshal(v)
		if merr != nil {
			s.opts.Logger.Error("tool result not serializable", "tool", call.Name, "error", merr)
			return "tool execution failed"
		}
		return string(b)
	}
}

// performHandoff atomically swaps the active agent and fires the lifecycle
// hooks exactly once each.
func (s *AgentSession) performHandoff(h *llm.Handoff) string {
	next, ok := h.Agent.(*Agent)
	if !ok || next == nil {
		s.opts.Logger.Error("handoff target is not an agent")
		return "tool execution failed"
	}

	s.mu.Lock()
	old := s.agent
	s.agent = next
	s.mu.Unlock()

	if old != nil {
		if old.OnExit != nil {
			old.OnExit(s)
		}
		old.detach()
	}
	next.attach(s)
	if next.Instructions != "" {
		s.mu.Lock()
		item := s.chatCtx.AddMessage(llm.RoleSystem, next.Instructions)
		s.mu.Unlock()
		s.emit(ConversationItemAddedEvent{Item: item})
	}
	if next.OnEnter != nil {
		next.OnEnter(s)
	}
	return h.Returns
}

// toolCallAccumulator merges streamed tool-call deltas by call id, preserving
// first-seen order and concatenating argument fragments.
type toolCallAccumulator struct {
	order []string
	byID  map[string]*llm.ToolCallDelta
}

func newToolCallAccumulator() *toolCallAccumulator {
	return &toolCallAccumulator{byID: make(map[string]*llm.ToolCallDelta)}
}

func (a *toolCallAccumulator) add(tc llm.ToolCallDelta) {
	cur, ok := a.byID[tc.ID]
	if !ok {
		cp := tc
		a.byID[tc.ID] = &cp
		a.order = append(a.order, tc.ID)
		return
	}
	if tc.Name != "" {
		cur.Name = tc.Name
	}
	cur.Arguments += tc.Arguments
}

func (a *toolCallAccumulator) calls() []llm.ToolCallDelta {
	out := make([]llm.ToolCallDelta, 0, len(a.order))
	for _, id := range a.order {
		out = append(out, *a.byID[id])
	}
	return out
}
