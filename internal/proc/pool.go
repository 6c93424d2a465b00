package proc

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/voxalabs/agents-go/internal/ipc"
	"github.com/voxalabs/agents-go/pkg/stream"
)

// PoolOptions configures the warm-process pool.
type PoolOptions struct {
	// NumIdleProcesses is the warm target. Zero switches the pool to
	// launch-on-demand: Launch spawns and initializes synchronously.
	NumIdleProcesses int
	// MaxConcurrentInitializations bounds simultaneous child prewarms so a
	// worker restart does not stampede the host. Default 3.
	MaxConcurrentInitializations int64
	// New builds an executor per slot.
	New func() Executor
	// OnIdleChange, when set, observes the warm count after each change.
	// The worker uses it to publish load updates.
	OnIdleChange func(warm int)

	Logger *slog.Logger
}

// Pool keeps NumIdleProcesses warm job processes ready so assignment latency
// is one IPC round trip instead of a spawn plus prewarm.
type Pool struct {
	opts PoolOptions

	procSem *semaphore.Weighted
	initSem *semaphore.Weighted
	warmQ   *stream.Mailbox[*poolSlot]

	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	live   map[Executor]struct{}
	closed bool

	warm atomic.Int64
}

// poolSlot pairs an executor with its procSem slot. The slot is released
// exactly once: on pickup by Launch, or when the executor dies while warm.
type poolSlot struct {
	ex    Executor
	pool  *Pool
	taken atomic.Bool
	once  sync.Once
}

func (s *poolSlot) releaseProc() {
	s.once.Do(func() { s.pool.procSem.Release(1) })
}

func NewPool(opts PoolOptions) (*Pool, error) {
	if opts.New == nil {
		return nil, fmt.Errorf("proc: pool needs an executor factory")
	}
	if opts.NumIdleProcesses < 0 {
		return nil, fmt.Errorf("proc: negative idle process target")
	}
	if opts.MaxConcurrentInitializations <= 0 {
		opts.MaxConcurrentInitializations = 3
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	idle := opts.NumIdleProcesses
	qCap := idle
	if qCap == 0 {
		qCap = 1
	}
	p := &Pool{
		opts:    opts,
		initSem: semaphore.NewWeighted(opts.MaxConcurrentInitializations),
		warmQ:   stream.NewMailbox[*poolSlot](qCap),
		live:    make(map[Executor]struct{}),
	}
	if idle > 0 {
		p.procSem = semaphore.NewWeighted(int64(idle))
	}
	return p, nil
}

// Start begins warming processes. No-op in launch-on-demand mode.
func (p *Pool) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	if p.opts.NumIdleProcesses == 0 {
		return
	}
	p.wg.Add(1)
	go p.run(ctx)
}

func (p *Pool) run(ctx context.Context) {
	defer p.wg.Done()
	for {
		if err := p.procSem.Acquire(ctx, 1); err != nil {
			return
		}
		p.wg.Add(1)
		go p.supervise(ctx)
	}
}

// supervise owns one slot: warm an executor, park it in warmQ, then wait out
// its lifetime. The procSem slot is released on pickup (so a replacement
// warms while the job runs) or here if the process dies first.
func (p *Pool) supervise(ctx context.Context) {
	defer p.wg.Done()

	s := &poolSlot{ex: p.opts.New(), pool: p}
	if err := p.warmUp(ctx, s.ex); err != nil {
		if ctx.Err() == nil {
			p.opts.Logger.Warn("job process failed to warm", slog.String("error", err.Error()))
		}
		s.ex.Kill()
		s.releaseProc()
		return
	}

	p.track(s.ex)
	defer p.untrack(s.ex)

	if err := p.warmQ.Put(ctx, s); err != nil {
		// Pool shut down while we were warming.
		s.ex.Kill()
		s.releaseProc()
		s.ex.Join()
		return
	}
	p.noteIdle(1)

	s.ex.Join()
	if s.taken.CompareAndSwap(false, true) {
		// Died while still warm; its warmQ entry is now stale and Launch
		// will skip it.
		p.noteIdle(-1)
		s.releaseProc()
	}
}

func (p *Pool) warmUp(ctx context.Context, ex Executor) error {
	if err := p.initSem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer p.initSem.Release(1)

	if err := ex.Start(ctx); err != nil {
		return err
	}
	return ex.Initialize(ctx)
}

// Launch hands a job to a warm process, waiting for one if the pool is
// saturated. Picking up a warm process frees its slot so a replacement
// starts warming immediately.
func (p *Pool) Launch(ctx context.Context, info ipc.RunningJobInfo) error {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return fmt.Errorf("proc: pool is closed")
	}

	if p.opts.NumIdleProcesses == 0 {
		return p.launchOnDemand(ctx, info)
	}

	for {
		s, err := p.warmQ.Get(ctx)
		if err != nil {
			return fmt.Errorf("proc: no warm process available: %w", err)
		}
		if !s.taken.CompareAndSwap(false, true) {
			continue // executor died while parked
		}
		p.noteIdle(-1)
		s.releaseProc()
		return s.ex.Launch(ctx, info)
	}
}

func (p *Pool) launchOnDemand(ctx context.Context, info ipc.RunningJobInfo) error {
	ex := p.opts.New()
	if err := p.warmUp(ctx, ex); err != nil {
		ex.Kill()
		return fmt.Errorf("proc: launch-on-demand warm up: %w", err)
	}
	p.track(ex)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ex.Join()
		p.untrack(ex)
	}()
	return ex.Launch(ctx, info)
}

// Close drains every live process and stops the warming loop. Idempotent.
func (p *Pool) Close(ctx context.Context) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	targets := make([]Executor, 0, len(p.live))
	for ex := range p.live {
		targets = append(targets, ex)
	}
	p.mu.Unlock()

	if p.cancel != nil {
		p.cancel()
	}
	p.warmQ.Close()

	var wg sync.WaitGroup
	for _, ex := range targets {
		wg.Add(1)
		go func(ex Executor) {
			defer wg.Done()
			if err := ex.Drain(ctx, "worker shutdown"); err != nil {
				p.opts.Logger.Warn("job process exited uncleanly", slog.String("error", err.Error()))
			}
		}(ex)
	}
	wg.Wait()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}

// Stats reports the pool's current shape.
type Stats struct {
	Warm int // processes parked and ready
	Live int // warm plus running
}

func (p *Pool) Stats() Stats {
	p.mu.Lock()
	live := len(p.live)
	p.mu.Unlock()
	return Stats{Warm: int(p.warm.Load()), Live: live}
}

func (p *Pool) track(ex Executor) {
	p.mu.Lock()
	p.live[ex] = struct{}{}
	p.mu.Unlock()
}

func (p *Pool) untrack(ex Executor) {
	p.mu.Lock()
	delete(p.live, ex)
	p.mu.Unlock()
}

func (p *Pool) noteIdle(delta int64) {
	warm := p.warm.Add(delta)
	if p.opts.OnIdleChange != nil {
		p.opts.OnIdleChange(int(warm))
	}
}
