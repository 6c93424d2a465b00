package llm

import (
	"context"
	"fmt"
)

// ToolError carries a message meant for the model, not the operator: it is
// serialized as the tool's output so the model can recover. Any other error
// from a tool is treated as an execution failure.
type ToolError struct {
	Msg string
}

func (e *ToolError) Error() string { return e.Msg }

// NewToolError builds a model-visible tool failure.
func NewToolError(format string, args ...any) *ToolError {
	return &ToolError{Msg: fmt.Sprintf(format, args...)}
}

// Handoff transfers the conversation to a replacement agent. Agent is opaque
// here; the session layer knows the concrete type. Returns is recorded as the
// tool's output.
type Handoff struct {
	Agent   any
	Returns string
}

// ToolInfo accompanies a tool invocation.
type ToolInfo struct {
	CallID string
}

// ToolHandler executes one invocation. Raw JSON arguments are passed through
// as produced by the model; ctx is cancelled when the speech that triggered
// the call is interrupted.
type ToolHandler func(ctx context.Context, args string, info ToolInfo) (any, error)

// Tool is one function the model may call.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]any // JSON schema
	Handler     ToolHandler
}

// ToolContext is the tool set offered to the model, keyed by name.
type ToolContext struct {
	tools []*Tool
	byKey map[string]*Tool
}

func NewToolContext(tools ...*Tool) (*ToolContext, error) {
	tc := &ToolContext{byKey: make(map[string]*Tool, len(tools))}
	for _, t := range tools {
		if err := tc.Add(t); err != nil {
			return nil, err
		}
	}
	return tc, nil
}

// Add registers a tool. Names must be unique within a context.
func (tc *ToolContext) Add(t *Tool) error {
	if t.Name == "" {
		return fmt.Errorf("llm: tool with empty name")
	}
	if _, dup := tc.byKey[t.Name]; dup {
		return fmt.Errorf("llm: duplicate tool %q", t.Name)
	}
	tc.tools = append(tc.tools, t)
	tc.byKey[t.Name] = t
	return nil
}

// Get looks a tool up by name.
func (tc *ToolContext) Get(name string) (*Tool, bool) {
	if tc == nil {
		return nil, false
	}
	t, ok := tc.byKey[name]
	return t, ok
}

// Tools returns the tools in registration order.
func (tc *ToolContext) Tools() []*Tool {
	if tc == nil {
		return nil
	}
	return tc.tools
}
