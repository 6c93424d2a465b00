package dispatch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/matryer/is"
)

// fakeServer plays the dispatch side of the control protocol.
type fakeServer struct {
	srv   *httptest.Server
	conns chan *websocket.Conn
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	fs := &fakeServer{conns: make(chan *websocket.Conn, 4)}
	upgrader := websocket.Upgrader{}
	fs.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("token") == "" {
			http.Error(w, "missing token", http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		fs.conns <- conn
	}))
	t.Cleanup(fs.srv.Close)
	return fs
}

func (fs *fakeServer) wsURL() string {
	return "ws" + strings.TrimPrefix(fs.srv.URL, "http")
}

func (fs *fakeServer) accept(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case conn := <-fs.conns:
		return conn
	case <-time.After(5 * time.Second):
		t.Fatal("worker never connected")
		return nil
	}
}

func readMsg(t *testing.T, conn *websocket.Conn) *Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("server read: %v", err)
	}
	return &msg
}

func registerWorker(t *testing.T, conn *websocket.Conn, workerID string) *Message {
	t.Helper()
	reg := readMsg(t, conn)
	if reg.Type != TypeRegister {
		t.Fatalf("expected register, got %s", reg.Type)
	}
	if err := conn.WriteJSON(&Message{Type: TypeRegistered, Registered: &Registered{WorkerID: workerID}}); err != nil {
		t.Fatalf("server write: %v", err)
	}
	return reg
}

func TestWorker_RegistersAndLaunchesAssignments(t *testing.T) {
	is := is.New(t)
	fs := newFakeServer(t)

	assigned := make(chan Assignment, 1)
	terminated := make(chan string, 1)

	w := New(Config{
		URL:       fs.wsURL(),
		Token:     "tok",
		AgentName: "concierge",
		Version:   "1.2.3",
		OnAssignment: func(ctx context.Context, a Assignment) error {
			assigned <- a
			return nil
		},
		OnTermination: func(jobID, reason string) { terminated <- jobID + "/" + reason },
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	conn := fs.accept(t)
	reg := registerWorker(t, conn, "w-42")
	is.Equal(reg.Register.AgentName, "concierge")
	is.Equal(reg.Register.WorkerType, WorkerTypeRoom)

	// Initial status arrives once registered.
	status := readMsg(t, conn)
	is.Equal(status.Type, TypeStatus)
	is.Equal(status.Status.Load, 0.0)

	is.NoErr(conn.WriteJSON(&Message{Type: TypeAssignment, Assignment: &Assignment{
		Job: AssignedJob{ID: "job-1", RoomName: "support", AgentName: "concierge"},
		URL: "wss://rtc.example.com", Token: "room-token",
	}}))

	select {
	case a := <-assigned:
		is.Equal(a.Job.ID, "job-1")
		is.Equal(a.Token, "room-token")
	case <-time.After(5 * time.Second):
		t.Fatal("assignment never reached the launcher")
	}

	is.NoErr(conn.WriteJSON(&Message{Type: TypeTermination, Termination: &Termination{JobID: "job-1", Reason: "room closed"}}))
	select {
	case got := <-terminated:
		is.Equal(got, "job-1/room closed")
	case <-time.After(5 * time.Second):
		t.Fatal("termination never delivered")
	}

	is.Equal(w.WorkerID(), "w-42")
	cancel()
	is.NoErr(<-done)
}

func TestWorker_FailedLaunchReportsUnavailable(t *testing.T) {
	is := is.New(t)
	fs := newFakeServer(t)

	w := New(Config{
		URL:       fs.wsURL(),
		Token:     "tok",
		AgentName: "concierge",
		OnAssignment: func(ctx context.Context, a Assignment) error {
			return errors.New("no warm process")
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	conn := fs.accept(t)
	registerWorker(t, conn, "w-1")
	readMsg(t, conn) // initial status

	is.NoErr(conn.WriteJSON(&Message{Type: TypeAssignment, Assignment: &Assignment{
		Job: AssignedJob{ID: "job-9"},
	}}))

	msg := readMsg(t, conn)
	is.Equal(msg.Type, TypeAvailability)
	is.Equal(msg.Availability.JobID, "job-9")
	is.True(!msg.Availability.Available)
	is.Equal(msg.Availability.Reason, "no warm process")
}

func TestWorker_PublishesLoadChanges(t *testing.T) {
	is := is.New(t)
	fs := newFakeServer(t)

	w := New(Config{URL: fs.wsURL(), Token: "tok", AgentName: "concierge"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	conn := fs.accept(t)
	registerWorker(t, conn, "w-1")
	readMsg(t, conn) // initial status

	w.UpdateLoad(0.5, 2)

	msg := readMsg(t, conn)
	is.Equal(msg.Type, TypeStatus)
	is.Equal(msg.Status.Load, 0.5)
	is.Equal(msg.Status.JobCount, 2)
}

func TestWorker_GivesUpAfterUnrecoverableErrors(t *testing.T) {
	is := is.New(t)

	// Not a websocket endpoint: every dial fails.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	w := New(Config{
		URL:                    "ws" + strings.TrimPrefix(srv.URL, "http"),
		Token:                  "tok",
		AgentName:              "concierge",
		MaxUnrecoverableErrors: 2,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := w.Run(ctx)
	is.True(err != nil)
}

func TestWorker_ReconnectsAfterServerDrop(t *testing.T) {
	is := is.New(t)
	fs := newFakeServer(t)

	w := New(Config{URL: fs.wsURL(), Token: "tok", AgentName: "concierge"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	first := fs.accept(t)
	registerWorker(t, first, "w-1")
	readMsg(t, first) // initial status
	first.Close()     // drop the connection

	second := fs.accept(t)
	registerWorker(t, second, "w-2")
	readMsg(t, second)
	is.Equal(w.WorkerID(), "w-2")
}
