package openai

import (
	"context"
	"errors"
	"fmt"
	"io"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/voxalabs/agents-go/pkg/ai/llm"
	"github.com/voxalabs/agents-go/pkg/stream"
)

const defaultChatModel = "gpt-4o-mini"

// LLM is a streaming chat-completion provider.
type LLM struct {
	client *goopenai.Client
	model  string
}

func NewLLM(cfg Config) (*LLM, error) {
	client, err := cfg.client()
	if err != nil {
		return nil, err
	}
	model := cfg.Model
	if model == "" {
		model = defaultChatModel
	}
	return &LLM{client: client, model: model}, nil
}

func (l *LLM) Label() string { return "openai.LLM" }

func (l *LLM) Capabilities() llm.Capabilities {
	return llm.Capabilities{Streaming: true, ToolCalls: true}
}

func (l *LLM) Chat(ctx context.Context, req llm.ChatRequest) (llm.ChatStream, error) {
	oreq := goopenai.ChatCompletionRequest{
		Model:    l.model,
		Messages: toMessages(req.ChatCtx),
		Tools:    toTools(req.ToolCtx),
		StreamOptions: &goopenai.StreamOptions{
			IncludeUsage: true,
		},
	}
	switch req.ToolChoice {
	case llm.ToolChoiceNone:
		oreq.ToolChoice = "none"
	case llm.ToolChoiceRequired:
		oreq.ToolChoice = "required"
	}
	if rf := req.ResponseFormat; rf != nil && rf.Type == "json_object" {
		oreq.ResponseFormat = &goopenai.ChatCompletionResponseFormat{
			Type: goopenai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	s, err := l.client.CreateChatCompletionStream(ctx, oreq)
	if err != nil {
		return nil, fmt.Errorf("openai: chat completion: %w", err)
	}
	return &chatStream{inner: s}, nil
}

func toMessages(cc *llm.ChatContext) []goopenai.ChatCompletionMessage {
	if cc == nil {
		return nil
	}
	items := cc.Items()
	out := make([]goopenai.ChatCompletionMessage, 0, len(items))
	for _, it := range items {
		switch it.Role {
		case llm.RoleSystem:
			out = append(out, goopenai.ChatCompletionMessage{
				Role: goopenai.ChatMessageRoleSystem, Content: it.Content,
			})
		case llm.RoleUser:
			out = append(out, goopenai.ChatCompletionMessage{
				Role: goopenai.ChatMessageRoleUser, Content: it.Content,
			})
		case llm.RoleAssistant:
			out = append(out, goopenai.ChatCompletionMessage{
				Role: goopenai.ChatMessageRoleAssistant, Content: it.Content,
			})
		case llm.RoleToolCall:
			out = append(out, goopenai.ChatCompletionMessage{
				Role: goopenai.ChatMessageRoleAssistant,
				ToolCalls: []goopenai.ToolCall{{
					ID:   it.ToolCallID,
					Type: goopenai.ToolTypeFunction,
					Function: goopenai.FunctionCall{
						Name:      it.ToolName,
						Arguments: it.ToolArgs,
					},
				}},
			})
		case llm.RoleToolOutput:
			out = append(out, goopenai.ChatCompletionMessage{
				Role:       goopenai.ChatMessageRoleTool,
				Content:    it.Content,
				ToolCallID: it.ToolCallID,
			})
		}
	}
	return out
}

func toTools(tc *llm.ToolContext) []goopenai.Tool {
	tools := tc.Tools()
	if len(tools) == 0 {
		return nil
	}
	out := make([]goopenai.Tool, 0, len(tools))
	for _, t := range tools {
		out = append(out, goopenai.Tool{
			Type: goopenai.ToolTypeFunction,
			Function: &goopenai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	return out
}

type chatStream struct {
	inner *goopenai.ChatCompletionStream
}

func (s *chatStream) Read(ctx context.Context) (*llm.ChatChunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	resp, err := s.inner.Recv()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, stream.ErrDone
		}
		return nil, fmt.Errorf("openai: reading completion: %w", err)
	}

	chunk := &llm.ChatChunk{ID: resp.ID}
	if resp.Usage != nil {
		chunk.Usage = &llm.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		}
	}
	if len(resp.Choices) > 0 {
		delta := resp.Choices[0].Delta
		chunk.Delta.Role = llm.ItemRole(delta.Role)
		chunk.Delta.Content = delta.Content
		for _, tc := range delta.ToolCalls {
			chunk.Delta.ToolCalls = append(chunk.Delta.ToolCalls, llm.ToolCallDelta{
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			})
		}
	}
	return chunk, nil
}

func (s *chatStream) Close() error {
	return s.inner.Close()
}
