package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/voxalabs/agents-go/internal/dispatch"
	"github.com/voxalabs/agents-go/internal/ipc"
	"github.com/voxalabs/agents-go/internal/proc"
	"github.com/voxalabs/agents-go/pkg/turn"
	"github.com/voxalabs/agents-go/pkg/version"
)

const launchTimeout = 10 * time.Second

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Run the worker loop against a dispatch server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(configPath)
		if err != nil {
			return err
		}
		if url, _ := cmd.Flags().GetString("url"); url != "" {
			cfg.Dispatch.URL = url
		}
		if token, _ := cmd.Flags().GetString("token"); token != "" {
			cfg.Dispatch.Token = token
		}
		if cfg.Dispatch.URL == "" {
			return fmt.Errorf("dispatch url is required (--url, config, or VOXA_DISPATCH_URL)")
		}

		logger := setupLogger(cfg.Log)
		logger.Info("starting worker",
			slog.String("agent", cfg.AgentName),
			slog.String("version", version.Version),
			slog.Int("idle_processes", cfg.Pool.NumIdleProcesses))

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		app := &workerApp{cfg: cfg, logger: logger, procs: make(map[*proc.ChildProc]struct{})}
		return app.run(ctx)
	},
}

func init() {
	startCmd.Flags().String("url", "", "dispatch server websocket URL")
	startCmd.Flags().String("token", "", "dispatch server auth token")
}

// workerApp wires the control connection, the warm pool, and the shared
// inference runner together for one worker process.
type workerApp struct {
	cfg    *Config
	logger *slog.Logger

	pool   *proc.Pool
	worker *dispatch.Worker

	mu    sync.Mutex
	procs map[*proc.ChildProc]struct{}
}

func (app *workerApp) run(ctx context.Context) error {
	inference := proc.NewInferenceRunner()
	if !app.cfg.Turn.Disabled {
		detector, err := turn.NewDetector(turn.DetectorConfig{
			Model:     app.cfg.Turn.Model,
			ModelPath: app.cfg.Turn.ModelPath,
			RemoteURL: app.cfg.Turn.RemoteURL,
		})
		if err != nil {
			app.logger.Warn("shared turn detector unavailable, jobs fall back to delay-based endpointing",
				slog.String("error", err.Error()))
		} else {
			err := inference.Register(turn.InferenceMethod, func(ctx context.Context, data []byte) ([]byte, error) {
				return turn.ServeInference(ctx, detector, data)
			})
			if err != nil {
				return err
			}
		}
	}

	pool, err := proc.NewPool(proc.PoolOptions{
		NumIdleProcesses: app.cfg.Pool.NumIdleProcesses,
		New:              func() proc.Executor { return app.newChild(inference) },
		OnIdleChange:     func(warm int) { app.publishLoad() },
		Logger:           app.logger,
	})
	if err != nil {
		return err
	}
	app.pool = pool

	app.worker = dispatch.New(dispatch.Config{
		URL:           app.cfg.Dispatch.URL,
		Token:         app.cfg.Dispatch.Token,
		AgentName:     app.cfg.AgentName,
		Version:       version.Version,
		OnAssignment:  app.launchJob,
		OnTermination: app.terminateJob,
		Logger:        app.logger,
	})

	pool.Start(ctx)
	runErr := app.worker.Run(ctx)

	closeCtx, cancel := context.WithTimeout(context.Background(), app.cfg.closeTimeout())
	defer cancel()
	pool.Close(closeCtx)

	app.logger.Info("worker stopped")
	return runErr
}

func (app *workerApp) newChild(inference *proc.InferenceRunner) proc.Executor {
	var env []string
	if configPath != "" {
		env = append(env, "VOXA_CONFIG="+configPath)
	}
	cp := proc.NewChildProc(proc.Options{
		Args:          []string{"_job"},
		Env:           env,
		MemoryWarnMB:  app.cfg.Pool.MemoryWarnMB,
		MemoryLimitMB: app.cfg.Pool.MemoryLimitMB,
		LoggerOptions: ipc.LoggerOptions{Level: app.cfg.Log.Level, Format: app.cfg.Log.Format},
		Inference:     inference,
		Logger:        app.logger,
	})
	app.mu.Lock()
	app.procs[cp] = struct{}{}
	app.mu.Unlock()
	return &supervisedProc{ChildProc: cp, app: app}
}

func (app *workerApp) launchJob(ctx context.Context, a dispatch.Assignment) error {
	identity := a.Identity
	if identity == "" {
		identity = app.cfg.AgentName
	}
	info := ipc.RunningJobInfo{
		Job: ipc.Job{
			ID:          a.Job.ID,
			RoomName:    a.Job.RoomName,
			Participant: a.Job.Participant,
			AgentName:   a.Job.AgentName,
		},
		URL:   a.URL,
		Token: a.Token,
		AcceptArguments: ipc.AcceptArguments{
			Identity:   identity,
			Metadata:   a.Metadata,
			Attributes: a.Attrs,
		},
		WorkerID: app.worker.WorkerID(),
	}

	launchCtx, cancel := context.WithTimeout(ctx, launchTimeout)
	defer cancel()
	if err := app.pool.Launch(launchCtx, info); err != nil {
		return err
	}
	app.publishLoad()
	return nil
}

func (app *workerApp) terminateJob(jobID, reason string) {
	app.mu.Lock()
	var target *proc.ChildProc
	for cp := range app.procs {
		if cp.JobID() == jobID {
			target = cp
			break
		}
	}
	app.mu.Unlock()
	if target == nil {
		app.logger.Warn("termination for unknown job", slog.String("job_id", jobID))
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), app.cfg.closeTimeout())
		defer cancel()
		if err := target.Drain(ctx, reason); err != nil {
			app.logger.Warn("terminated job exited uncleanly",
				slog.String("job_id", jobID),
				slog.String("error", err.Error()))
		}
		app.publishLoad()
	}()
}

// publishLoad reports running jobs over warm target as the worker's load.
func (app *workerApp) publishLoad() {
	if app.worker == nil {
		return
	}
	stats := app.pool.Stats()
	running := stats.Live - stats.Warm
	if running < 0 {
		running = 0
	}
	load := 1.0
	if target := app.cfg.Pool.NumIdleProcesses; target > 0 {
		load = min(1, float64(running)/float64(target))
	} else if running == 0 {
		load = 0
	}
	app.worker.UpdateLoad(load, running)
}

// supervisedProc drops the child from the termination index once it exits.
type supervisedProc struct {
	*proc.ChildProc
	app *workerApp
}

func (s *supervisedProc) Join() error {
	err := s.ChildProc.Join()
	s.app.mu.Lock()
	delete(s.app.procs, s.ChildProc)
	s.app.mu.Unlock()
	s.app.publishLoad()
	return err
}
