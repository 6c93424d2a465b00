package voice

import "sync/atomic"

// TurnGate defers committing the user's turn. The session closes the gate
// while an uninterruptible reply is playing; recognition keeps transcribing,
// and the buffered turn commits once the gate reopens.
type TurnGate interface {
	SetTTSPlaying(playing bool)
	ShouldHoldTurn() bool
}

// NewTurnGate returns a gate that starts open.
func NewTurnGate() TurnGate {
	return &atomicGate{}
}

type atomicGate struct {
	ttsPlaying atomic.Bool
}

func (g *atomicGate) SetTTSPlaying(playing bool) {
	g.ttsPlaying.Store(playing)
}

func (g *atomicGate) ShouldHoldTurn() bool {
	return g.ttsPlaying.Load()
}
