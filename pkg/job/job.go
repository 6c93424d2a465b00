// Package job defines the types an agent author works with: the job
// assignment handed down by the dispatch server, the per-process state shared
// across jobs, and the JobContext passed to the agent's entry function.
package job

import "time"

// Job identifies one assignment: which room to join on behalf of which agent.
type Job struct {
	ID          string
	RoomName    string
	Participant string
	AgentName   string
}

// AcceptArguments is the identity the agent presents when it joins the room.
type AcceptArguments struct {
	Identity   string
	Name       string
	Metadata   string
	Attributes map[string]string
}

// RunningJobInfo carries everything a job process needs to run an accepted
// job: the assignment itself plus the transport credentials.
type RunningJobInfo struct {
	Job             Job
	URL             string
	Token           string
	AcceptArguments AcceptArguments
	WorkerID        string
}

// Process holds state that outlives individual jobs within one job process.
// The prewarm hook populates UserData (loaded models, warmed clients) and the
// entry function reads it back through JobContext.Proc.
type Process struct {
	UserData map[string]any

	// StartedAt is when the process began warming.
	StartedAt time.Time
}

// NewProcess returns an empty per-process state bag.
func NewProcess() *Process {
	return &Process{
		UserData:  make(map[string]any),
		StartedAt: time.Now(),
	}
}

// PrewarmFunc runs once per job process, before any job is assigned. Heavy
// setup (VAD weights, provider clients) belongs here so assignment latency
// stays small.
type PrewarmFunc func(proc *Process) error

// EntryFunc is the agent's main. It runs in the job process after a job has
// been accepted and returns when the job is over.
type EntryFunc func(jc *JobContext) error

// Definition is what an agent author registers with the worker: a name for
// dispatch matching plus the lifecycle hooks.
type Definition struct {
	AgentName string
	Prewarm   PrewarmFunc
	Entry     EntryFunc
}
