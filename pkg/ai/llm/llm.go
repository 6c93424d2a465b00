// Package llm defines the language-model capability: streaming chat
// completions over an ordered chat context, with tool calling.
package llm

import (
	"context"

	"github.com/voxalabs/agents-go/pkg/ai"
)

var (
	ErrRecoverable = ai.ErrRecoverable
	ErrFatal       = ai.ErrFatal
)

// ToolChoice constrains whether the model may call tools.
type ToolChoice string

const (
	ToolChoiceAuto     ToolChoice = "auto"
	ToolChoiceNone     ToolChoice = "none"
	ToolChoiceRequired ToolChoice = "required"
)

// ResponseFormat asks the model for a specific output shape.
type ResponseFormat struct {
	Type       string         // "text" or "json_object"
	JSONSchema map[string]any // optional schema for structured output
}

// ChatRequest is one streaming completion request.
type ChatRequest struct {
	ChatCtx        *ChatContext
	ToolCtx        *ToolContext
	ToolChoice     ToolChoice
	ResponseFormat *ResponseFormat
	Extra          map[string]any // provider-specific knobs, passed through
}

// ToolCallDelta is a (possibly partial) tool invocation emitted by the model.
// Arguments accumulate across chunks for the same call ID.
type ToolCallDelta struct {
	ID        string
	Name      string
	Arguments string // JSON fragment
}

// ChoiceDelta is the incremental payload of one chunk.
type ChoiceDelta struct {
	Role      ItemRole
	Content   string
	ToolCalls []ToolCallDelta
}

// Usage reports token accounting, usually on the last chunk.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// ChatChunk is one streamed piece of a completion.
type ChatChunk struct {
	ID    string
	Delta ChoiceDelta
	Usage *Usage
}

// ChatStream yields the chunks of one completion in order.
// Read returns stream.ErrDone after the last chunk.
type ChatStream interface {
	Read(ctx context.Context) (*ChatChunk, error)
	Close() error
}

// Capabilities describes what an LLM provider supports.
type Capabilities struct {
	Streaming bool
	ToolCalls bool
}

// LLM is the language-model capability.
type LLM interface {
	Chat(ctx context.Context, req ChatRequest) (ChatStream, error)
	Capabilities() Capabilities
	Label() string
}
