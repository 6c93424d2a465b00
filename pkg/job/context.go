package job

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/voxalabs/agents-go/pkg/rtc"
)

// ShutdownHookTimeout bounds how long Shutdown waits for registered hooks.
const ShutdownHookTimeout = 5 * time.Second

// InferenceExecutor invokes a named model hosted outside this job process,
// typically the worker's shared inference runner reached over IPC.
type InferenceExecutor interface {
	Inference(ctx context.Context, method string, data []byte) ([]byte, error)
}

// JobContext is handed to the agent's entry function. It carries the
// assignment, the per-process state, and coordinates graceful shutdown.
type JobContext struct {
	Ctx    context.Context
	Info   RunningJobInfo
	Proc   *Process
	Logger *slog.Logger

	// Inference is non-nil when the worker hosts shared models the job can
	// call into (end-of-turn detection, for example).
	Inference InferenceExecutor

	cancel context.CancelFunc

	mu             sync.Mutex
	shutdownHooks  []func(reason string)
	shutdownReason string
	shutdownDone   bool

	connectOnce sync.Once
	connectErr  error
	room        *rtc.Room
}

// NewJobContext builds a JobContext whose Ctx is cancelled by Shutdown.
func NewJobContext(parent context.Context, info RunningJobInfo, proc *Process, logger *slog.Logger) *JobContext {
	ctx, cancel := context.WithCancel(parent)
	if logger == nil {
		logger = slog.Default()
	}
	if proc == nil {
		proc = NewProcess()
	}
	return &JobContext{
		Ctx:    ctx,
		Info:   info,
		Proc:   proc,
		Logger: logger.With(slog.String("job_id", info.Job.ID), slog.String("room", info.Job.RoomName)),
		cancel: cancel,
	}
}

// Connect joins the assigned room. Safe to call more than once; later calls
// return the same room handle.
func (jc *JobContext) Connect(ctx context.Context) (*rtc.Room, error) {
	jc.connectOnce.Do(func() {
		room, err := rtc.Connect(ctx, rtc.ConnectOptions{
			URL:      jc.Info.URL,
			Token:    jc.Info.Token,
			Identity: jc.Info.AcceptArguments.Identity,
			Logger:   jc.Logger,
		})
		jc.mu.Lock()
		jc.room, jc.connectErr = room, err
		jc.mu.Unlock()
	})
	jc.mu.Lock()
	defer jc.mu.Unlock()
	return jc.room, jc.connectErr
}

// Room returns the connected room, or nil before Connect succeeds.
func (jc *JobContext) Room() *rtc.Room {
	jc.mu.Lock()
	defer jc.mu.Unlock()
	return jc.room
}

// OnShutdown registers a hook to run when the job shuts down. Hooks run
// concurrently. Registering after shutdown runs the hook immediately.
func (jc *JobContext) OnShutdown(hook func(reason string)) {
	jc.mu.Lock()
	if jc.shutdownDone {
		reason := jc.shutdownReason
		jc.mu.Unlock()
		go runHook(hook, reason, jc.Logger)
		return
	}
	jc.shutdownHooks = append(jc.shutdownHooks, hook)
	jc.mu.Unlock()
}

// Shutdown runs the registered hooks (bounded by ShutdownHookTimeout), then
// cancels Ctx. Idempotent; only the first reason sticks.
func (jc *JobContext) Shutdown(reason string) {
	jc.mu.Lock()
	if jc.shutdownDone {
		jc.mu.Unlock()
		return
	}
	jc.shutdownDone = true
	jc.shutdownReason = reason
	hooks := jc.shutdownHooks
	jc.shutdownHooks = nil
	room := jc.room
	jc.mu.Unlock()

	jc.Logger.Info("job shutdown", slog.String("reason", reason))

	var wg sync.WaitGroup
	for _, hook := range hooks {
		wg.Add(1)
		go func(h func(string)) {
			defer wg.Done()
			runHook(h, reason, jc.Logger)
		}(hook)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(ShutdownHookTimeout):
		jc.Logger.Warn("shutdown hooks timed out", slog.Duration("timeout", ShutdownHookTimeout))
	}

	if room != nil {
		room.Disconnect()
	}
	jc.cancel()
}

// ShutdownReason returns the reason passed to the first Shutdown call, or ""
// if the job is still running.
func (jc *JobContext) ShutdownReason() string {
	jc.mu.Lock()
	defer jc.mu.Unlock()
	return jc.shutdownReason
}

// Done is closed once the job has shut down.
func (jc *JobContext) Done() <-chan struct{} { return jc.Ctx.Done() }

// Err reports the context error after shutdown, nil while running.
func (jc *JobContext) Err() error { return jc.Ctx.Err() }

func runHook(hook func(string), reason string, logger *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("shutdown hook panicked", slog.Any("panic", r))
		}
	}()
	hook(reason)
}
