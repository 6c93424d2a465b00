// Package fake provides a scripted LLM for tests. Each Chat call consumes the
// next scripted turn, streaming its content word by word and then its tool
// calls; with no script left it echoes the last user message.
package fake

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/voxalabs/agents-go/pkg/ai/llm"
	"github.com/voxalabs/agents-go/pkg/stream"
)

// Turn is one scripted completion.
type Turn struct {
	Content   string
	ToolCalls []llm.ToolCallDelta
}

// LLM replays scripted turns.
type LLM struct {
	chunkDelay time.Duration

	mu       sync.Mutex
	turns    []Turn
	requests []llm.ChatRequest
}

// Option configures the fake.
type Option func(*LLM)

// WithChunkDelay paces the stream, for interruption tests.
func WithChunkDelay(d time.Duration) Option {
	return func(l *LLM) { l.chunkDelay = d }
}

func New(turns []Turn, opts ...Option) *LLM {
	l := &LLM{turns: turns}
	for _, o := range opts {
		o(l)
	}
	return l
}

func (l *LLM) Label() string { return "fake.LLM" }

func (l *LLM) Capabilities() llm.Capabilities {
	return llm.Capabilities{Streaming: true, ToolCalls: true}
}

// Requests returns every ChatRequest seen, in order.
func (l *LLM) Requests() []llm.ChatRequest {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]llm.ChatRequest, len(l.requests))
	copy(out, l.requests)
	return out
}

func (l *LLM) Chat(ctx context.Context, req llm.ChatRequest) (llm.ChatStream, error) {
	l.mu.Lock()
	l.requests = append(l.requests, req)
	var turn Turn
	if len(l.turns) > 0 {
		turn = l.turns[0]
		l.turns = l.turns[1:]
	} else {
		turn = Turn{Content: echo(req.ChatCtx)}
	}
	l.mu.Unlock()

	s := &ChatStream{
		out:    stream.NewMailbox[*llm.ChatChunk](64),
		cancel: func() {},
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	go s.run(runCtx, turn, l.chunkDelay)
	return s, nil
}

func echo(chatCtx *llm.ChatContext) string {
	if chatCtx == nil {
		return "ok"
	}
	items := chatCtx.Items()
	for i := len(items) - 1; i >= 0; i-- {
		if items[i].Role == llm.RoleUser {
			return "you said: " + items[i].Content
		}
	}
	return "ok"
}

// ChatStream streams one scripted turn.
type ChatStream struct {
	out    *stream.Mailbox[*llm.ChatChunk]
	cancel context.CancelFunc
}

func (s *ChatStream) run(ctx context.Context, turn Turn, delay time.Duration) {
	defer s.out.Close()
	id := "chatcmpl_" + uuid.NewString()

	put := func(c *llm.ChatChunk) bool {
		return s.out.Put(ctx, c) == nil
	}

	if !put(&llm.ChatChunk{ID: id, Delta: llm.ChoiceDelta{Role: llm.RoleAssistant}}) {
		return
	}

	words := strings.SplitAfter(turn.Content, " ")
	tokens := 0
	for _, w := range words {
		if w == "" {
			continue
		}
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return
			}
		}
		if !put(&llm.ChatChunk{ID: id, Delta: llm.ChoiceDelta{Content: w}}) {
			return
		}
		tokens++
	}

	if len(turn.ToolCalls) > 0 {
		calls := make([]llm.ToolCallDelta, len(turn.ToolCalls))
		copy(calls, turn.ToolCalls)
		for i := range calls {
			if calls[i].ID == "" {
				calls[i].ID = "call_" + uuid.NewString()
			}
		}
		if !put(&llm.ChatChunk{ID: id, Delta: llm.ChoiceDelta{ToolCalls: calls}}) {
			return
		}
	}

	put(&llm.ChatChunk{ID: id, Usage: &llm.Usage{CompletionTokens: tokens, TotalTokens: tokens}})
}

func (s *ChatStream) Read(ctx context.Context) (*llm.ChatChunk, error) {
	return s.out.Get(ctx)
}

func (s *ChatStream) Close() error {
	s.cancel()
	s.out.Close()
	return nil
}
