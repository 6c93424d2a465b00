// Package dispatch maintains the worker's control connection to the dispatch
// server: registration, availability, job assignments, and liveness.
package dispatch

// Message types on the control channel.
const (
	TypeRegister     = "register"     // worker → server
	TypeRegistered   = "registered"   // server → worker
	TypePing         = "ping"         // worker → server
	TypePong         = "pong"         // server → worker
	TypeStatus       = "status"       // worker → server
	TypeAssignment   = "assignment"   // server → worker
	TypeAvailability = "availability" // worker → server
	TypeTermination  = "termination"  // server → worker
)

// Worker types advertised at registration.
const (
	WorkerTypeRoom      = "room"
	WorkerTypePublisher = "publisher"
)

// Message is the control-channel envelope: a type tag plus one payload.
type Message struct {
	Type string `json:"type"`

	Register     *Register     `json:"register,omitempty"`
	Registered   *Registered   `json:"registered,omitempty"`
	Ping         *Ping         `json:"ping,omitempty"`
	Pong         *Pong         `json:"pong,omitempty"`
	Status       *Status       `json:"status,omitempty"`
	Assignment   *Assignment   `json:"assignment,omitempty"`
	Availability *Availability `json:"availability,omitempty"`
	Termination  *Termination  `json:"termination,omitempty"`
}

// Register announces the worker to the dispatch server.
type Register struct {
	AgentName  string `json:"agentName"`
	WorkerType string `json:"workerType"`
	Version    string `json:"version"`
}

// Registered acknowledges registration and assigns the worker id.
type Registered struct {
	WorkerID string `json:"workerId"`
}

// Ping carries the worker's send time in unix milliseconds.
type Ping struct {
	Timestamp int64 `json:"timestamp"`
}

// Pong echoes the ping timestamp next to the server's own.
type Pong struct {
	LastTimestamp int64 `json:"lastTimestamp"`
	Timestamp     int64 `json:"timestamp"`
}

// Status reports the worker's load in [0,1] and running job count.
type Status struct {
	Load     float64 `json:"load"`
	JobCount int     `json:"jobCount"`
}

// AssignedJob is the job metadata carried by an assignment.
type AssignedJob struct {
	ID          string `json:"id"`
	RoomName    string `json:"roomName"`
	Participant string `json:"participant,omitempty"`
	AgentName   string `json:"agentName"`
}

// Assignment hands the worker a job with room credentials.
type Assignment struct {
	Job      AssignedJob       `json:"job"`
	URL      string            `json:"url"`
	Token    string            `json:"token"`
	Identity string            `json:"identity,omitempty"`
	Metadata string            `json:"metadata,omitempty"`
	Attrs    map[string]string `json:"attributes,omitempty"`
}

// Availability tells the server whether an assigned job was picked up.
type Availability struct {
	JobID     string `json:"jobId"`
	Available bool   `json:"available"`
	Reason    string `json:"reason,omitempty"`
}

// Termination asks the worker to stop a running job.
type Termination struct {
	JobID  string `json:"jobId"`
	Reason string `json:"reason,omitempty"`
}
