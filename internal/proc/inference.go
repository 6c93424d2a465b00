package proc

import (
	"context"
	"fmt"
	"sync"
)

// InferenceHandler serves one named model method for job children.
type InferenceHandler func(ctx context.Context, data []byte) ([]byte, error)

// InferenceRunner hosts models that are too expensive to load per job
// process. Children reach it through inferenceRequest envelopes; the worker
// registers a handler per method at startup.
type InferenceRunner struct {
	mu       sync.RWMutex
	handlers map[string]InferenceHandler
}

func NewInferenceRunner() *InferenceRunner {
	return &InferenceRunner{handlers: make(map[string]InferenceHandler)}
}

// Register binds a handler to a method name. Method names are unique.
func (r *InferenceRunner) Register(method string, h InferenceHandler) error {
	if method == "" {
		return fmt.Errorf("proc: inference method name is empty")
	}
	if h == nil {
		return fmt.Errorf("proc: inference handler for %q is nil", method)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.handlers[method]; ok {
		return fmt.Errorf("proc: inference method %q already registered", method)
	}
	r.handlers[method] = h
	return nil
}

// Run dispatches one request to the handler registered for method.
func (r *InferenceRunner) Run(ctx context.Context, method string, data []byte) ([]byte, error) {
	r.mu.RLock()
	h, ok := r.handlers[method]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("proc: unknown inference method %q", method)
	}
	return h(ctx, data)
}

// Methods lists the registered method names.
func (r *InferenceRunner) Methods() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.handlers))
	for m := range r.handlers {
		out = append(out, m)
	}
	return out
}
