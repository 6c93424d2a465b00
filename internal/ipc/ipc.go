// Package ipc frames the parent<->child job-process channel: tagged JSON
// messages, each preceded by a 4-byte big-endian length, readable by a
// streaming decoder regardless of how the bytes arrive.
package ipc

import (
	"encoding/json"
	"time"
)

// Message types.
const (
	TypeInitializeRequest  = "initializeRequest"
	TypeInitializeResponse = "initializeResponse"
	TypePingRequest        = "pingRequest"
	TypePongResponse       = "pongResponse"
	TypeStartJobRequest    = "startJobRequest"
	TypeShutdownRequest    = "shutdownRequest"
	TypeInferenceRequest   = "inferenceRequest"
	TypeInferenceResponse  = "inferenceResponse"
	TypeExiting            = "exiting"
	TypeDone               = "done"
)

// Envelope is the wire record: a type tag plus exactly one payload field set
// (none for the bare markers).
type Envelope struct {
	Type string `json:"type"`

	InitializeRequest *InitializeRequest `json:"initializeRequest,omitempty"`
	PingRequest       *PingRequest       `json:"pingRequest,omitempty"`
	PongResponse      *PongResponse      `json:"pongResponse,omitempty"`
	StartJobRequest   *StartJobRequest   `json:"startJobRequest,omitempty"`
	ShutdownRequest   *ShutdownRequest   `json:"shutdownRequest,omitempty"`
	InferenceRequest  *InferenceRequest  `json:"inferenceRequest,omitempty"`
	InferenceResponse *InferenceResponse `json:"inferenceResponse,omitempty"`
	Exiting           *Exiting           `json:"exiting,omitempty"`
}

// LoggerOptions configures the child's slog output to match the parent's.
type LoggerOptions struct {
	Level  string `json:"level"`  // "debug", "info", "warn", "error"
	Format string `json:"format"` // "json" or "text"
}

// InitializeRequest tells a fresh child to load the agent and prewarm.
type InitializeRequest struct {
	LoggerOptions     LoggerOptions `json:"loggerOptions"`
	PingInterval      time.Duration `json:"pingInterval"`
	PingTimeout       time.Duration `json:"pingTimeout"`
	HighPingThreshold time.Duration `json:"highPingThreshold"`
}

// PingRequest carries the parent's send time in unix milliseconds.
type PingRequest struct {
	Timestamp int64 `json:"timestamp"`
}

// PongResponse echoes the ping's timestamp next to the child's own.
type PongResponse struct {
	LastTimestamp int64 `json:"lastTimestamp"`
	Timestamp     int64 `json:"timestamp"`
}

// Job identifies the assignment: which room to join as whom.
type Job struct {
	ID          string `json:"id"`
	RoomName    string `json:"roomName"`
	Participant string `json:"participant,omitempty"`
	AgentName   string `json:"agentName"`
}

// AcceptArguments is the identity the agent presents in the room.
type AcceptArguments struct {
	Identity   string            `json:"identity"`
	Name       string            `json:"name,omitempty"`
	Metadata   string            `json:"metadata,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// RunningJobInfo is everything a child needs to run an accepted job.
type RunningJobInfo struct {
	Job             Job             `json:"job"`
	URL             string          `json:"url"`
	Token           string          `json:"token"`
	AcceptArguments AcceptArguments `json:"acceptArguments"`
	WorkerID        string          `json:"workerId"`
}

// StartJobRequest hands an accepted job to a warm child.
type StartJobRequest struct {
	RunningJob RunningJobInfo `json:"runningJob"`
}

// ShutdownRequest asks the child to drain and exit.
type ShutdownRequest struct {
	Reason string `json:"reason,omitempty"`
}

// InferenceRequest proxies a model invocation to the peer that hosts it.
type InferenceRequest struct {
	Method    string          `json:"method"`
	RequestID string          `json:"requestId"`
	Data      json.RawMessage `json:"data"`
}

// InferenceResponse answers an InferenceRequest by id.
type InferenceResponse struct {
	RequestID string          `json:"requestId"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// Exiting is the child's last word before it terminates.
type Exiting struct {
	Reason string `json:"reason,omitempty"`
}
