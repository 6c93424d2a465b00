// Package turn implements end-of-utterance detection: a small model that
// scores how likely the user's current utterance is complete, used to widen
// or narrow the silence window before the agent replies.
package turn

import (
	"context"

	"github.com/voxalabs/agents-go/pkg/ai/llm"
)

// Detector scores end-of-utterance probability from recent conversation.
type Detector interface {
	// UnlikelyThreshold returns the tuned threshold (0-1) below which a
	// prediction means "the user is probably not done". Errors when the
	// language has no tuned threshold.
	UnlikelyThreshold(language string) (float64, error)

	// SupportsLanguage reports whether the detector has a tuned threshold
	// for this language.
	SupportsLanguage(language string) bool

	// PredictEndOfTurn returns the probability (0-1) that the user has
	// finished speaking given the recent chat context.
	PredictEndOfTurn(ctx context.Context, chatCtx ChatContext) (float64, error)
}

// ChatContext is the slice of conversation the detector scores: the most
// recent items plus the in-progress user transcript as the last user item.
type ChatContext struct {
	Items    []*llm.ChatItem
	Language string
}
