package proc

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/matryer/is"

	"github.com/voxalabs/agents-go/internal/ipc"
)

// fakeExecutor stands in for a child process; lifecycle calls just flip
// state, and Join blocks until the test "kills" it.
type fakeExecutor struct {
	rec *execRecorder

	initErr error

	mu          sync.Mutex
	started     bool
	initialized bool
	jobs        []ipc.RunningJobInfo
	drained     bool

	exit     chan struct{}
	exitOnce sync.Once
}

func (f *fakeExecutor) Start(ctx context.Context) error {
	f.mu.Lock()
	f.started = true
	f.mu.Unlock()
	return nil
}

func (f *fakeExecutor) Initialize(ctx context.Context) error {
	cur := f.rec.initializing.Add(1)
	for {
		peak := f.rec.initPeak.Load()
		if cur <= peak || f.rec.initPeak.CompareAndSwap(peak, cur) {
			break
		}
	}
	defer f.rec.initializing.Add(-1)

	if f.rec.initDelay > 0 {
		select {
		case <-time.After(f.rec.initDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if f.initErr != nil {
		return f.initErr
	}
	f.mu.Lock()
	f.initialized = true
	f.mu.Unlock()
	return nil
}

func (f *fakeExecutor) Launch(ctx context.Context, info ipc.RunningJobInfo) error {
	f.mu.Lock()
	f.jobs = append(f.jobs, info)
	f.mu.Unlock()
	return nil
}

func (f *fakeExecutor) Drain(ctx context.Context, reason string) error {
	f.mu.Lock()
	f.drained = true
	f.mu.Unlock()
	f.Kill()
	return nil
}

func (f *fakeExecutor) Kill()       { f.exitOnce.Do(func() { close(f.exit) }) }
func (f *fakeExecutor) Join() error { <-f.exit; return nil }

func (f *fakeExecutor) jobCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.jobs)
}

// execRecorder builds fake executors and tracks creation order plus
// initialization concurrency.
type execRecorder struct {
	mu        sync.Mutex
	created   []*fakeExecutor
	initDelay time.Duration
	failFirst int // the first n executors fail to initialize

	initializing atomic.Int64
	initPeak     atomic.Int64
}

func (r *execRecorder) factory() Executor {
	r.mu.Lock()
	defer r.mu.Unlock()
	f := &fakeExecutor{rec: r, exit: make(chan struct{})}
	if len(r.created) < r.failFirst {
		f.initErr = fmt.Errorf("prewarm blew up")
	}
	r.created = append(r.created, f)
	return f
}

func (r *execRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.created)
}

func (r *execRecorder) killAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, f := range r.created {
		f.Kill()
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition never held")
}

func jobInfo(id string) ipc.RunningJobInfo {
	return ipc.RunningJobInfo{Job: ipc.Job{ID: id, RoomName: "room-" + id}}
}

func TestPool_WarmsToIdleTarget(t *testing.T) {
	is := is.New(t)

	rec := &execRecorder{}
	pool, err := NewPool(PoolOptions{NumIdleProcesses: 2, New: rec.factory})
	is.NoErr(err)

	ctx := context.Background()
	pool.Start(ctx)
	defer rec.killAll()
	defer pool.Close(ctx)

	waitFor(t, func() bool { return pool.Stats().Warm == 2 })
	is.Equal(rec.count(), 2) // warm target reached, no extras

	time.Sleep(50 * time.Millisecond)
	is.Equal(rec.count(), 2)
}

func TestPool_SaturationWarmsReplacements(t *testing.T) {
	is := is.New(t)

	rec := &execRecorder{initDelay: 20 * time.Millisecond}
	pool, err := NewPool(PoolOptions{
		NumIdleProcesses:             2,
		MaxConcurrentInitializations: 3,
		New:                          rec.factory,
	})
	is.NoErr(err)

	ctx := context.Background()
	pool.Start(ctx)
	defer rec.killAll()
	defer pool.Close(ctx)

	waitFor(t, func() bool { return pool.Stats().Warm == 2 })

	// Three assignments back to back. The first two take the warm
	// processes; the third waits for a replacement.
	is.NoErr(pool.Launch(ctx, jobInfo("1")))
	is.NoErr(pool.Launch(ctx, jobInfo("2")))
	is.NoErr(pool.Launch(ctx, jobInfo("3")))

	rec.mu.Lock()
	first, second := rec.created[0], rec.created[1]
	rec.mu.Unlock()

	// FIFO pickup: the earliest-warmed processes got the first jobs.
	is.Equal(first.jobCount(), 1)
	is.Equal(second.jobCount(), 1)

	// Every slot refills: 3 in use plus 2 warm again.
	waitFor(t, func() bool { return pool.Stats().Warm == 2 })
	is.Equal(rec.count(), 5)

	running := 0
	rec.mu.Lock()
	for _, f := range rec.created {
		if f.jobCount() > 0 {
			running++
		}
	}
	rec.mu.Unlock()
	is.Equal(running, 3)
}

func TestPool_BoundsConcurrentInitializations(t *testing.T) {
	is := is.New(t)

	rec := &execRecorder{initDelay: 30 * time.Millisecond}
	pool, err := NewPool(PoolOptions{
		NumIdleProcesses:             5,
		MaxConcurrentInitializations: 2,
		New:                          rec.factory,
	})
	is.NoErr(err)

	ctx := context.Background()
	pool.Start(ctx)
	defer rec.killAll()
	defer pool.Close(ctx)

	waitFor(t, func() bool { return pool.Stats().Warm == 5 })
	is.True(rec.initPeak.Load() <= 2)
}

func TestPool_ZeroIdleLaunchesOnDemand(t *testing.T) {
	is := is.New(t)

	rec := &execRecorder{}
	pool, err := NewPool(PoolOptions{NumIdleProcesses: 0, New: rec.factory})
	is.NoErr(err)

	ctx := context.Background()
	pool.Start(ctx)
	defer rec.killAll()
	defer pool.Close(ctx)

	is.Equal(rec.count(), 0) // nothing warms ahead of time

	is.NoErr(pool.Launch(ctx, jobInfo("1")))
	is.Equal(rec.count(), 1)

	rec.mu.Lock()
	f := rec.created[0]
	rec.mu.Unlock()
	is.True(f.initialized)
	is.Equal(f.jobCount(), 1)
}

func TestPool_InitFailureRetriesSlot(t *testing.T) {
	is := is.New(t)

	rec := &execRecorder{failFirst: 1}
	pool, err := NewPool(PoolOptions{NumIdleProcesses: 1, New: rec.factory})
	is.NoErr(err)

	ctx := context.Background()
	pool.Start(ctx)
	defer rec.killAll()
	defer pool.Close(ctx)

	// First attempt fails; the slot is released and a second attempt warms.
	waitFor(t, func() bool { return pool.Stats().Warm == 1 })
	is.Equal(rec.count(), 2)
}

func TestPool_DeadWarmProcessIsReplaced(t *testing.T) {
	is := is.New(t)

	rec := &execRecorder{}
	pool, err := NewPool(PoolOptions{NumIdleProcesses: 1, New: rec.factory})
	is.NoErr(err)

	ctx := context.Background()
	pool.Start(ctx)
	defer rec.killAll()
	defer pool.Close(ctx)

	waitFor(t, func() bool { return pool.Stats().Warm == 1 })

	rec.mu.Lock()
	first := rec.created[0]
	rec.mu.Unlock()
	first.Kill() // dies while parked

	waitFor(t, func() bool { return rec.count() == 2 && pool.Stats().Warm == 1 })

	// The stale entry is skipped; the job lands on the replacement.
	is.NoErr(pool.Launch(ctx, jobInfo("1")))
	rec.mu.Lock()
	second := rec.created[1]
	rec.mu.Unlock()
	is.Equal(first.jobCount(), 0)
	is.Equal(second.jobCount(), 1)
}

func TestPool_CloseDrainsLiveProcesses(t *testing.T) {
	is := is.New(t)

	rec := &execRecorder{}
	pool, err := NewPool(PoolOptions{NumIdleProcesses: 2, New: rec.factory})
	is.NoErr(err)

	ctx := context.Background()
	pool.Start(ctx)
	waitFor(t, func() bool { return pool.Stats().Warm == 2 })

	closeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	pool.Close(closeCtx)
	pool.Close(closeCtx) // idempotent

	rec.mu.Lock()
	defer rec.mu.Unlock()
	for _, f := range rec.created {
		is.True(f.drained)
	}

	is.True(pool.Launch(ctx, jobInfo("1")) != nil)
}

func TestPool_ReportsIdleChanges(t *testing.T) {
	is := is.New(t)

	var mu sync.Mutex
	var seen []int
	rec := &execRecorder{}
	pool, err := NewPool(PoolOptions{
		NumIdleProcesses: 1,
		New:              rec.factory,
		OnIdleChange: func(warm int) {
			mu.Lock()
			seen = append(seen, warm)
			mu.Unlock()
		},
	})
	is.NoErr(err)

	ctx := context.Background()
	pool.Start(ctx)
	defer rec.killAll()
	defer pool.Close(ctx)

	waitFor(t, func() bool { return pool.Stats().Warm == 1 })
	is.NoErr(pool.Launch(ctx, jobInfo("1")))

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) >= 2
	})
	mu.Lock()
	defer mu.Unlock()
	is.Equal(seen[0], 1) // warmed
	is.Equal(seen[1], 0) // picked up
}
