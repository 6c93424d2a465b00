package proc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/voxalabs/agents-go/internal/ipc"
	"github.com/voxalabs/agents-go/pkg/job"
)

// entryDrainTimeout bounds how long the child waits for the entry function
// to return after its context has been cancelled.
const entryDrainTimeout = 10 * time.Second

// RunChild is the job-process mainline: it speaks the IPC protocol on
// in/out, runs the agent definition's prewarm and entry hooks, and returns
// when the job is over or the parent goes away. All logging goes to stderr;
// stdout carries frames only.
func RunChild(ctx context.Context, def job.Definition, in io.Reader, out io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	r := &childRunner{
		def:     def,
		reader:  ipc.NewReader(in),
		writer:  ipc.NewWriter(out),
		proc:    job.NewProcess(),
		logger:  slog.Default(),
		pending: make(map[string]chan *ipc.InferenceResponse),
		cancel:  cancel,
	}
	return r.run(ctx)
}

type childRunner struct {
	def    job.Definition
	reader *ipc.Reader
	writer *ipc.Writer
	proc   *job.Process
	logger *slog.Logger
	cancel context.CancelFunc

	mu      sync.Mutex
	pending map[string]chan *ipc.InferenceResponse

	jc        *job.JobContext
	entryDone chan error

	pingTimeout time.Duration
	lastPing    atomic.Int64 // unix ms
	orphaned    atomic.Bool
}

func (r *childRunner) run(ctx context.Context) error {
	envCh := make(chan *ipc.Envelope)
	readErr := make(chan error, 1)
	go func() {
		for {
			env, err := r.reader.Read()
			if err != nil {
				readErr <- err
				close(envCh)
				return
			}
			select {
			case envCh <- env:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case env, ok := <-envCh:
			if !ok {
				err := <-readErr
				r.shutdownJob("parent closed pipe")
				if errors.Is(err, io.EOF) {
					return nil
				}
				return err
			}
			done, err := r.handle(ctx, env)
			if done || err != nil {
				return err
			}

		case err := <-r.entryDoneCh():
			reason := "task completed"
			if err != nil {
				reason = fmt.Sprintf("task failed: %v", err)
			}
			r.shutdownJob(reason)
			r.sendExiting(reason)
			return err

		case <-ctx.Done():
			reason := "context cancelled"
			if r.orphaned.Load() {
				reason = "ping timeout"
			}
			r.shutdownJob(reason)
			r.sendExiting(reason)
			return ctx.Err()
		}
	}
}

// entryDoneCh returns nil (blocks forever in select) until a job is running.
func (r *childRunner) entryDoneCh() chan error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.entryDone
}

func (r *childRunner) handle(ctx context.Context, env *ipc.Envelope) (done bool, err error) {
	switch env.Type {
	case ipc.TypeInitializeRequest:
		return false, r.handleInitialize(ctx, env.InitializeRequest)

	case ipc.TypePingRequest:
		if env.PingRequest == nil {
			return false, nil
		}
		r.lastPing.Store(time.Now().UnixMilli())
		pong := &ipc.PongResponse{
			LastTimestamp: env.PingRequest.Timestamp,
			Timestamp:     time.Now().UnixMilli(),
		}
		return false, r.writer.Write(&ipc.Envelope{Type: ipc.TypePongResponse, PongResponse: pong})

	case ipc.TypeStartJobRequest:
		if env.StartJobRequest == nil {
			return false, nil
		}
		r.startJob(ctx, env.StartJobRequest.RunningJob)
		return false, nil

	case ipc.TypeShutdownRequest:
		reason := ""
		if env.ShutdownRequest != nil {
			reason = env.ShutdownRequest.Reason
		}
		r.shutdownJob(reason)
		r.awaitEntry()
		r.sendExiting(reason)
		return true, nil

	case ipc.TypeInferenceResponse:
		r.routeInference(env.InferenceResponse)
		return false, nil

	default:
		r.logger.Warn("unexpected message from parent", slog.String("type", env.Type))
		return false, nil
	}
}

func (r *childRunner) handleInitialize(ctx context.Context, req *ipc.InitializeRequest) error {
	if req == nil {
		return fmt.Errorf("proc: empty initialize request")
	}
	r.logger = newChildLogger(req.LoggerOptions)
	slog.SetDefault(r.logger)
	r.pingTimeout = req.PingTimeout

	if r.def.Prewarm != nil {
		if err := r.def.Prewarm(r.proc); err != nil {
			reason := fmt.Sprintf("prewarm failed: %v", err)
			r.sendExiting(reason)
			return fmt.Errorf("proc: %s", reason)
		}
	}

	if r.pingTimeout > 0 {
		r.lastPing.Store(time.Now().UnixMilli())
		go r.watchParent(ctx)
	}
	return r.writer.Write(&ipc.Envelope{Type: ipc.TypeInitializeResponse})
}

// watchParent exits the process loop when the parent stops pinging, so an
// orphaned child does not linger after a worker crash.
func (r *childRunner) watchParent(ctx context.Context) {
	ticker := time.NewTicker(r.pingTimeout / 4)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		last := time.UnixMilli(r.lastPing.Load())
		if time.Since(last) > r.pingTimeout {
			r.logger.Error("no ping from parent, shutting down",
				slog.Duration("ping_timeout", r.pingTimeout))
			r.orphaned.Store(true)
			r.cancel()
			return
		}
	}
}

func (r *childRunner) startJob(ctx context.Context, info ipc.RunningJobInfo) {
	r.mu.Lock()
	if r.jc != nil {
		r.mu.Unlock()
		r.logger.Warn("job already running, ignoring start request",
			slog.String("job_id", info.Job.ID))
		return
	}
	jc := job.NewJobContext(ctx, jobInfoFromIPC(info), r.proc, r.logger)
	jc.Inference = r
	r.jc = jc
	r.entryDone = make(chan error, 1)
	entryDone := r.entryDone
	r.mu.Unlock()

	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				entryDone <- fmt.Errorf("entry panicked: %v", rec)
			}
		}()
		if r.def.Entry == nil {
			entryDone <- fmt.Errorf("no entry function registered")
			return
		}
		entryDone <- r.def.Entry(jc)
	}()
}

func (r *childRunner) shutdownJob(reason string) {
	r.mu.Lock()
	jc := r.jc
	r.mu.Unlock()
	if jc != nil {
		jc.Shutdown(reason)
	}
}

// awaitEntry gives the entry function a bounded window to unwind after its
// context is cancelled.
func (r *childRunner) awaitEntry() {
	ch := r.entryDoneCh()
	if ch == nil {
		return
	}
	select {
	case <-ch:
	case <-time.After(entryDrainTimeout):
		r.logger.Warn("entry function did not return before exit")
	}
}

func (r *childRunner) sendExiting(reason string) {
	if err := r.writer.Write(&ipc.Envelope{Type: ipc.TypeExiting, Exiting: &ipc.Exiting{Reason: reason}}); err != nil {
		return
	}
	_ = r.writer.Write(&ipc.Envelope{Type: ipc.TypeDone})
}

// Inference proxies a model call to the parent process and waits for the
// matching response. Satisfies job.InferenceExecutor.
func (r *childRunner) Inference(ctx context.Context, method string, data []byte) ([]byte, error) {
	id := uuid.NewString()
	ch := make(chan *ipc.InferenceResponse, 1)

	r.mu.Lock()
	r.pending[id] = ch
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		delete(r.pending, id)
		r.mu.Unlock()
	}()

	req := &ipc.InferenceRequest{Method: method, RequestID: id, Data: data}
	if err := r.writer.Write(&ipc.Envelope{Type: ipc.TypeInferenceRequest, InferenceRequest: req}); err != nil {
		return nil, fmt.Errorf("proc: send inference request: %w", err)
	}

	select {
	case resp := <-ch:
		if resp.Error != "" {
			return nil, fmt.Errorf("proc: inference %s: %s", method, resp.Error)
		}
		return resp.Data, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (r *childRunner) routeInference(resp *ipc.InferenceResponse) {
	if resp == nil {
		return
	}
	r.mu.Lock()
	ch, ok := r.pending[resp.RequestID]
	r.mu.Unlock()
	if !ok {
		r.logger.Warn("inference response for unknown request",
			slog.String("request_id", resp.RequestID))
		return
	}
	ch <- resp
}

func jobInfoFromIPC(info ipc.RunningJobInfo) job.RunningJobInfo {
	return job.RunningJobInfo{
		Job: job.Job{
			ID:          info.Job.ID,
			RoomName:    info.Job.RoomName,
			Participant: info.Job.Participant,
			AgentName:   info.Job.AgentName,
		},
		URL:   info.URL,
		Token: info.Token,
		AcceptArguments: job.AcceptArguments{
			Identity:   info.AcceptArguments.Identity,
			Name:       info.AcceptArguments.Name,
			Metadata:   info.AcceptArguments.Metadata,
			Attributes: info.AcceptArguments.Attributes,
		},
		WorkerID: info.WorkerID,
	}
}

func newChildLogger(opts ipc.LoggerOptions) *slog.Logger {
	hopts := &slog.HandlerOptions{}
	switch opts.Level {
	case "debug":
		hopts.Level = slog.LevelDebug
	case "warn":
		hopts.Level = slog.LevelWarn
	case "error":
		hopts.Level = slog.LevelError
	default:
		hopts.Level = slog.LevelInfo
	}

	var handler slog.Handler
	if opts.Format == "text" {
		handler = slog.NewTextHandler(os.Stderr, hopts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, hopts)
	}
	return slog.New(handler)
}
