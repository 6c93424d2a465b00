// Package proc supervises job child processes: spawning them, keeping a warm
// pool ready for assignments, and proxying shared-model inference requests
// back from the children.
package proc

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/voxalabs/agents-go/internal/ipc"
)

// Executor is one job child process as seen by the pool.
type Executor interface {
	// Start spawns the process.
	Start(ctx context.Context) error
	// Initialize runs the child's prewarm and waits for it to report ready.
	Initialize(ctx context.Context) error
	// Launch hands an accepted job to the (warm) child.
	Launch(ctx context.Context, info ipc.RunningJobInfo) error
	// Drain asks the child to shut down gracefully, escalating to SIGTERM
	// and SIGKILL if it does not exit in time.
	Drain(ctx context.Context, reason string) error
	// Kill terminates the process immediately.
	Kill()
	// Join blocks until the process has exited.
	Join() error
}

// Options configures a child process executor.
type Options struct {
	// ExecPath is the binary to spawn. Defaults to os.Executable(), so the
	// worker re-executes itself with the hidden job subcommand.
	ExecPath string
	// Args passed to the child. Defaults to {"_job"}.
	Args []string
	// Env entries appended to the inherited environment.
	Env []string

	InitializeTimeout time.Duration // default 10s
	CloseTimeout      time.Duration // default 60s
	PingInterval      time.Duration // default 2.5s
	PingTimeout       time.Duration // default 90s
	HighPingThreshold time.Duration // default 500ms

	// MemoryWarnMB logs a warning when the child's RSS crosses it.
	// MemoryLimitMB triggers a graceful shutdown. Zero disables either.
	MemoryWarnMB  float64
	MemoryLimitMB float64

	LoggerOptions ipc.LoggerOptions

	// Inference serves inferenceRequest envelopes arriving from the child.
	Inference *InferenceRunner

	Logger *slog.Logger
}

func (o Options) withDefaults() Options {
	if len(o.Args) == 0 {
		o.Args = []string{"_job"}
	}
	if o.InitializeTimeout <= 0 {
		o.InitializeTimeout = 10 * time.Second
	}
	if o.CloseTimeout <= 0 {
		o.CloseTimeout = 60 * time.Second
	}
	if o.PingInterval <= 0 {
		o.PingInterval = 2500 * time.Millisecond
	}
	if o.PingTimeout <= 0 {
		o.PingTimeout = 90 * time.Second
	}
	if o.HighPingThreshold <= 0 {
		o.HighPingThreshold = 500 * time.Millisecond
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

const memorySampleInterval = 500 * time.Millisecond

// ChildProc runs one job child over stdin/stdout IPC pipes. Child logs go to
// stderr so the frame channel stays clean.
type ChildProc struct {
	opts   Options
	logger *slog.Logger

	cmd    *exec.Cmd
	writer *ipc.Writer
	reader *ipc.Reader

	bg       context.Context
	cancelBg context.CancelFunc

	initCh chan error
	doneCh chan struct{} // child sent its final "done"
	exited chan struct{}

	doneOnce sync.Once
	killed   atomic.Bool
	lastPong atomic.Int64 // unix ms

	mu      sync.Mutex
	exitErr error
	jobID   string
}

var _ Executor = (*ChildProc)(nil)

// NewChildProc builds an executor; Start actually spawns it.
func NewChildProc(opts Options) *ChildProc {
	opts = opts.withDefaults()
	bg, cancel := context.WithCancel(context.Background())
	return &ChildProc{
		opts:     opts,
		logger:   opts.Logger,
		bg:       bg,
		cancelBg: cancel,
		initCh:   make(chan error, 1),
		doneCh:   make(chan struct{}),
		exited:   make(chan struct{}),
	}
}

func (p *ChildProc) Start(ctx context.Context) error {
	path := p.opts.ExecPath
	if path == "" {
		var err error
		path, err = os.Executable()
		if err != nil {
			return fmt.Errorf("proc: resolve executable: %w", err)
		}
	}

	cmd := exec.Command(path, p.opts.Args...)
	cmd.Env = append(os.Environ(), p.opts.Env...)
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("proc: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("proc: stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("proc: spawn %s: %w", path, err)
	}

	p.cmd = cmd
	p.writer = ipc.NewWriter(stdin)
	p.reader = ipc.NewReader(stdout)
	p.logger = p.logger.With(slog.Int("pid", cmd.Process.Pid))

	go p.waitExit()
	go p.readLoop()
	return nil
}

func (p *ChildProc) waitExit() {
	err := p.cmd.Wait()
	p.mu.Lock()
	p.exitErr = err
	p.mu.Unlock()
	p.cancelBg()
	close(p.exited)
}

func (p *ChildProc) readLoop() {
	for {
		env, err := p.reader.Read()
		if err != nil {
			return
		}
		switch env.Type {
		case ipc.TypeInitializeResponse:
			select {
			case p.initCh <- nil:
			default:
			}
		case ipc.TypePongResponse:
			p.handlePong(env.PongResponse)
		case ipc.TypeInferenceRequest:
			go p.serveInference(env.InferenceRequest)
		case ipc.TypeExiting:
			reason := ""
			if env.Exiting != nil {
				reason = env.Exiting.Reason
			}
			p.logger.Info("job process exiting", slog.String("reason", reason))
		case ipc.TypeDone:
			p.doneOnce.Do(func() { close(p.doneCh) })
		default:
			p.logger.Warn("unexpected message from job process", slog.String("type", env.Type))
		}
	}
}

func (p *ChildProc) handlePong(pong *ipc.PongResponse) {
	if pong == nil {
		return
	}
	now := time.Now().UnixMilli()
	p.lastPong.Store(now)
	rtt := time.Duration(now-pong.LastTimestamp) * time.Millisecond
	if rtt > p.opts.HighPingThreshold {
		p.logger.Warn("job process ping is high", slog.Duration("rtt", rtt))
	}
}

func (p *ChildProc) serveInference(req *ipc.InferenceRequest) {
	if req == nil {
		return
	}
	resp := &ipc.InferenceResponse{RequestID: req.RequestID}
	if p.opts.Inference == nil {
		resp.Error = "no inference runner configured"
	} else {
		data, err := p.opts.Inference.Run(p.bg, req.Method, req.Data)
		if err != nil {
			resp.Error = err.Error()
		} else {
			resp.Data = data
		}
	}
	if err := p.writer.Write(&ipc.Envelope{Type: ipc.TypeInferenceResponse, InferenceResponse: resp}); err != nil {
		p.logger.Warn("failed to send inference response", slog.String("error", err.Error()))
	}
}

func (p *ChildProc) Initialize(ctx context.Context) error {
	req := &ipc.InitializeRequest{
		LoggerOptions:     p.opts.LoggerOptions,
		PingInterval:      p.opts.PingInterval,
		PingTimeout:       p.opts.PingTimeout,
		HighPingThreshold: p.opts.HighPingThreshold,
	}
	if err := p.writer.Write(&ipc.Envelope{Type: ipc.TypeInitializeRequest, InitializeRequest: req}); err != nil {
		return fmt.Errorf("proc: send initialize: %w", err)
	}

	select {
	case err := <-p.initCh:
		if err != nil {
			p.Kill()
			return err
		}
	case <-time.After(p.opts.InitializeTimeout):
		p.Kill()
		return fmt.Errorf("proc: initialize timed out after %s", p.opts.InitializeTimeout)
	case <-p.exited:
		return fmt.Errorf("proc: job process exited during initialization")
	case <-ctx.Done():
		p.Kill()
		return ctx.Err()
	}

	go p.pingLoop()
	go p.memoryWatchdog()
	return nil
}

func (p *ChildProc) pingLoop() {
	ticker := time.NewTicker(p.opts.PingInterval)
	defer ticker.Stop()

	p.lastPong.Store(time.Now().UnixMilli())
	for {
		select {
		case <-p.bg.Done():
			return
		case <-ticker.C:
		}

		last := time.UnixMilli(p.lastPong.Load())
		if time.Since(last) > p.opts.PingTimeout {
			p.logger.Error("job process unresponsive, killing",
				slog.Duration("ping_timeout", p.opts.PingTimeout))
			p.Kill()
			return
		}

		ping := &ipc.PingRequest{Timestamp: time.Now().UnixMilli()}
		if err := p.writer.Write(&ipc.Envelope{Type: ipc.TypePingRequest, PingRequest: ping}); err != nil {
			return
		}
	}
}

func (p *ChildProc) memoryWatchdog() {
	if p.opts.MemoryWarnMB <= 0 && p.opts.MemoryLimitMB <= 0 {
		return
	}
	ticker := time.NewTicker(memorySampleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.bg.Done():
			return
		case <-ticker.C:
		}

		rss, err := processRSS(p.cmd.Process.Pid)
		if err != nil || rss == 0 {
			continue
		}
		mb := float64(rss) / (1 << 20)
		if p.opts.MemoryLimitMB > 0 && mb > p.opts.MemoryLimitMB {
			p.logger.Error("job process exceeded memory limit, shutting down",
				slog.Float64("rss_mb", mb),
				slog.Float64("limit_mb", p.opts.MemoryLimitMB))
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), p.opts.CloseTimeout)
				defer cancel()
				p.Drain(ctx, "memory-limit")
			}()
			return
		}
		if p.opts.MemoryWarnMB > 0 && mb > p.opts.MemoryWarnMB {
			p.logger.Warn("job process memory is high",
				slog.Float64("rss_mb", mb),
				slog.Float64("warn_mb", p.opts.MemoryWarnMB))
		}
	}
}

func (p *ChildProc) Launch(ctx context.Context, info ipc.RunningJobInfo) error {
	p.mu.Lock()
	p.jobID = info.Job.ID
	p.mu.Unlock()

	req := &ipc.StartJobRequest{RunningJob: info}
	if err := p.writer.Write(&ipc.Envelope{Type: ipc.TypeStartJobRequest, StartJobRequest: req}); err != nil {
		return fmt.Errorf("proc: send start job: %w", err)
	}
	return nil
}

// JobID returns the id of the launched job, or "" while the process is warm.
func (p *ChildProc) JobID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.jobID
}

func (p *ChildProc) Drain(ctx context.Context, reason string) error {
	req := &ipc.ShutdownRequest{Reason: reason}
	if err := p.writer.Write(&ipc.Envelope{Type: ipc.TypeShutdownRequest, ShutdownRequest: req}); err != nil {
		// Pipe already gone: the process is dead or dying.
		return p.Join()
	}

	select {
	case <-p.doneCh:
		// Final frame seen; give the process a moment to unwind.
		select {
		case <-p.exited:
			return p.Join()
		case <-time.After(5 * time.Second):
		}
	case <-p.exited:
		return p.Join()
	case <-ctx.Done():
	case <-time.After(p.opts.CloseTimeout):
	}

	p.logger.Warn("job process did not exit in time, sending SIGTERM")
	if p.cmd != nil && p.cmd.Process != nil {
		_ = p.cmd.Process.Signal(syscall.SIGTERM)
	}
	select {
	case <-p.exited:
		return p.Join()
	case <-time.After(5 * time.Second):
	}

	p.logger.Error("job process ignored SIGTERM, killing")
	p.Kill()
	return p.Join()
}

func (p *ChildProc) Kill() {
	if !p.killed.CompareAndSwap(false, true) {
		return
	}
	if p.cmd != nil && p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
}

func (p *ChildProc) Join() error {
	<-p.exited
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.killed.Load() {
		// Deliberate kill: the non-zero exit is ours, not the child's.
		return nil
	}
	return p.exitErr
}
