package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// degradedLoadPenalty is added to the reported load while the control
// connection's ping round trip exceeds HighPingThreshold, steering the
// dispatcher toward healthier workers.
const degradedLoadPenalty = 0.25

// Config configures the dispatch worker.
type Config struct {
	// URL of the dispatch server's websocket endpoint.
	URL string
	// Token authenticates the worker.
	Token string

	AgentName  string
	WorkerType string // WorkerTypeRoom or WorkerTypePublisher
	Version    string

	PingInterval      time.Duration // default 10s
	HighPingThreshold time.Duration // default 500ms
	RegisterTimeout   time.Duration // default 10s

	// MaxUnrecoverableErrors bounds consecutive hard failures before Run
	// gives up. Default 5.
	MaxUnrecoverableErrors int

	// OnAssignment launches the job; a returned error reports the job back
	// as unavailable.
	OnAssignment func(ctx context.Context, a Assignment) error
	// OnTermination stops a running job.
	OnTermination func(jobID, reason string)

	Logger *slog.Logger
}

func (c Config) withDefaults() Config {
	if c.WorkerType == "" {
		c.WorkerType = WorkerTypeRoom
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 10 * time.Second
	}
	if c.HighPingThreshold <= 0 {
		c.HighPingThreshold = 500 * time.Millisecond
	}
	if c.RegisterTimeout <= 0 {
		c.RegisterTimeout = 10 * time.Second
	}
	if c.MaxUnrecoverableErrors <= 0 {
		c.MaxUnrecoverableErrors = 5
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Worker keeps one registered control connection alive, forwarding
// assignments to the pool and load updates to the server.
type Worker struct {
	cfg    Config
	logger *slog.Logger

	loadCh chan struct{}

	mu       sync.Mutex
	load     float64
	jobCount int
	workerID string

	degraded atomic.Bool
	errCount int
	backoff  int
}

func New(cfg Config) *Worker {
	cfg = cfg.withDefaults()
	return &Worker{
		cfg:    cfg,
		logger: cfg.Logger,
		loadCh: make(chan struct{}, 1),
	}
}

// UpdateLoad records the worker's load and nudges the status publisher. The
// pool calls this whenever its idle-slot count changes.
func (w *Worker) UpdateLoad(load float64, jobCount int) {
	w.mu.Lock()
	w.load = load
	w.jobCount = jobCount
	w.mu.Unlock()
	select {
	case w.loadCh <- struct{}{}:
	default:
	}
}

// WorkerID returns the id assigned at registration, or "" before it.
func (w *Worker) WorkerID() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.workerID
}

// Run connects and serves until ctx is cancelled or the unrecoverable-error
// budget is spent. Transient transport failures reconnect with capped
// exponential backoff.
func (w *Worker) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		err := w.connectAndServe(ctx)
		if err == nil || ctx.Err() != nil {
			return nil
		}

		w.errCount++
		w.logger.Error("control connection failed",
			slog.String("error", err.Error()),
			slog.Int("consecutive_errors", w.errCount))
		if w.errCount >= w.cfg.MaxUnrecoverableErrors {
			return fmt.Errorf("dispatch: giving up after %d consecutive failures: %w", w.errCount, err)
		}

		if err := w.backoffDelay(ctx); err != nil {
			return nil
		}
	}
}

func (w *Worker) connectAndServe(ctx context.Context) error {
	conn, err := w.dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := w.register(ctx, conn); err != nil {
		return err
	}

	// Registration succeeded: the connection is healthy.
	w.errCount = 0
	w.backoff = 0

	serveCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Single writer goroutine; gorilla connections allow one concurrent
	// writer only.
	outCh := make(chan *Message, 16)
	errCh := make(chan error, 3)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		errCh <- w.writeLoop(serveCtx, conn, outCh)
	}()
	wg.Add(1)
	go func() {
		defer wg.Done()
		errCh <- w.readLoop(serveCtx, conn, outCh)
	}()
	wg.Add(1)
	go func() {
		defer wg.Done()
		w.statusLoop(serveCtx, outCh)
	}()

	select {
	case err = <-errCh:
	case <-ctx.Done():
		err = nil
	}
	cancel()
	conn.Close() // unblocks the reader
	wg.Wait()
	return err
}

func (w *Worker) dial(ctx context.Context) (*websocket.Conn, error) {
	u, err := url.Parse(w.cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("dispatch: invalid url: %w", err)
	}
	q := u.Query()
	q.Set("token", w.cfg.Token)
	u.RawQuery = q.Encode()

	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = 10 * time.Second

	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dispatch: connect %s: %w", w.cfg.URL, err)
	}
	return conn, nil
}

func (w *Worker) register(ctx context.Context, conn *websocket.Conn) error {
	reg := &Message{Type: TypeRegister, Register: &Register{
		AgentName:  w.cfg.AgentName,
		WorkerType: w.cfg.WorkerType,
		Version:    w.cfg.Version,
	}}
	if err := conn.WriteJSON(reg); err != nil {
		return fmt.Errorf("dispatch: send register: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(w.cfg.RegisterTimeout))
	defer conn.SetReadDeadline(time.Time{})

	var msg Message
	if err := conn.ReadJSON(&msg); err != nil {
		return fmt.Errorf("dispatch: await registration: %w", err)
	}
	if msg.Type != TypeRegistered || msg.Registered == nil {
		return fmt.Errorf("dispatch: expected registered, got %q", msg.Type)
	}

	w.mu.Lock()
	w.workerID = msg.Registered.WorkerID
	w.mu.Unlock()
	w.logger.Info("registered with dispatch server",
		slog.String("worker_id", msg.Registered.WorkerID),
		slog.String("agent", w.cfg.AgentName))
	return nil
}

func (w *Worker) writeLoop(ctx context.Context, conn *websocket.Conn, outCh <-chan *Message) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-outCh:
			if err := conn.WriteJSON(msg); err != nil {
				return fmt.Errorf("dispatch: write %s: %w", msg.Type, err)
			}
		}
	}
}

func (w *Worker) readLoop(ctx context.Context, conn *websocket.Conn, outCh chan<- *Message) error {
	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("dispatch: read: %w", err)
		}
		w.handleMessage(ctx, &msg, outCh)
	}
}

func (w *Worker) handleMessage(ctx context.Context, msg *Message, outCh chan<- *Message) {
	switch msg.Type {
	case TypePong:
		if msg.Pong == nil {
			return
		}
		rtt := time.Duration(time.Now().UnixMilli()-msg.Pong.LastTimestamp) * time.Millisecond
		wasDegraded := w.degraded.Swap(rtt > w.cfg.HighPingThreshold)
		if rtt > w.cfg.HighPingThreshold {
			w.logger.Warn("control channel ping is high", slog.Duration("rtt", rtt))
		}
		if wasDegraded != w.degraded.Load() {
			w.kickStatus()
		}

	case TypeAssignment:
		if msg.Assignment == nil {
			return
		}
		a := *msg.Assignment
		w.logger.Info("job assigned",
			slog.String("job_id", a.Job.ID),
			slog.String("room", a.Job.RoomName))
		go func() {
			if w.cfg.OnAssignment == nil {
				return
			}
			if err := w.cfg.OnAssignment(ctx, a); err != nil {
				w.logger.Error("failed to launch assigned job",
					slog.String("job_id", a.Job.ID),
					slog.String("error", err.Error()))
				send(ctx, outCh, &Message{Type: TypeAvailability, Availability: &Availability{
					JobID:     a.Job.ID,
					Available: false,
					Reason:    err.Error(),
				}})
			}
		}()

	case TypeTermination:
		if msg.Termination == nil {
			return
		}
		w.logger.Info("job terminated by server",
			slog.String("job_id", msg.Termination.JobID),
			slog.String("reason", msg.Termination.Reason))
		if w.cfg.OnTermination != nil {
			w.cfg.OnTermination(msg.Termination.JobID, msg.Termination.Reason)
		}

	default:
		w.logger.Warn("unknown message from dispatch server", slog.String("type", msg.Type))
	}
}

// statusLoop publishes pings on a timer and status updates whenever the load
// changes (or the connection degrades).
func (w *Worker) statusLoop(ctx context.Context, outCh chan<- *Message) {
	ticker := time.NewTicker(w.cfg.PingInterval)
	defer ticker.Stop()

	// Initial status so the server sees our capacity right away.
	send(ctx, outCh, w.statusMessage())

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			send(ctx, outCh, &Message{Type: TypePing, Ping: &Ping{Timestamp: time.Now().UnixMilli()}})
		case <-w.loadCh:
			send(ctx, outCh, w.statusMessage())
		}
	}
}

func (w *Worker) statusMessage() *Message {
	w.mu.Lock()
	load, jobs := w.load, w.jobCount
	w.mu.Unlock()
	if w.degraded.Load() {
		load = math.Min(1, load+degradedLoadPenalty)
	}
	return &Message{Type: TypeStatus, Status: &Status{Load: load, JobCount: jobs}}
}

func (w *Worker) kickStatus() {
	select {
	case w.loadCh <- struct{}{}:
	default:
	}
}

func (w *Worker) backoffDelay(ctx context.Context) error {
	w.backoff++
	delay := time.Duration(math.Min(math.Pow(2, float64(w.backoff-1)), 10)) * time.Second

	w.logger.Info("reconnecting to dispatch server",
		slog.Int("attempt", w.backoff),
		slog.Duration("delay", delay))

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func send(ctx context.Context, outCh chan<- *Message, msg *Message) {
	select {
	case outCh <- msg:
	case <-ctx.Done():
	}
}
