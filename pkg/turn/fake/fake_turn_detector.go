// Package fake provides a fixed-score turn detector for tests.
package fake

import (
	"context"
	"sync"

	"github.com/voxalabs/agents-go/pkg/turn"
)

// Detector returns a configured probability and threshold for any language.
type Detector struct {
	mu          sync.Mutex
	probability float64
	threshold   float64
	err         error
	calls       int
}

// New creates a detector that always reports probability and threshold.
func New(probability, threshold float64) *Detector {
	return &Detector{probability: probability, threshold: threshold}
}

func (d *Detector) UnlikelyThreshold(language string) (float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.threshold, nil
}

func (d *Detector) SupportsLanguage(language string) bool { return true }

func (d *Detector) PredictEndOfTurn(ctx context.Context, chatCtx turn.ChatContext) (float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if d.err != nil {
		return 0, d.err
	}
	return d.probability, nil
}

// SetProbability changes the score mid-test.
func (d *Detector) SetProbability(p float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.probability = p
}

// SetError makes predictions fail.
func (d *Detector) SetError(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.err = err
}

// Calls reports how many predictions were requested.
func (d *Detector) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}
