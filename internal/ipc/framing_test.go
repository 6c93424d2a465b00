package ipc

import (
	"bytes"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/matryer/is"
)

func TestFraming_RoundTripsAllVariants(t *testing.T) {
	envelopes := []*Envelope{
		{Type: TypeInitializeRequest, InitializeRequest: &InitializeRequest{
			LoggerOptions:     LoggerOptions{Level: "debug", Format: "json"},
			PingInterval:      2500 * time.Millisecond,
			PingTimeout:       90 * time.Second,
			HighPingThreshold: 500 * time.Millisecond,
		}},
		{Type: TypeInitializeResponse},
		{Type: TypePingRequest, PingRequest: &PingRequest{Timestamp: 1724600000000}},
		{Type: TypePongResponse, PongResponse: &PongResponse{LastTimestamp: 1724600000000, Timestamp: 1724600000012}},
		{Type: TypeStartJobRequest, StartJobRequest: &StartJobRequest{
			RunningJob: RunningJobInfo{
				Job:             Job{ID: "job-1", RoomName: "support", AgentName: "concierge"},
				URL:             "wss://rtc.example.com",
				Token:           "tok",
				AcceptArguments: AcceptArguments{Identity: "agent-1", Attributes: map[string]string{"tier": "gold"}},
				WorkerID:        "w-9",
			},
		}},
		{Type: TypeShutdownRequest, ShutdownRequest: &ShutdownRequest{Reason: "memory-limit"}},
		{Type: TypeInferenceRequest, InferenceRequest: &InferenceRequest{
			Method: "eou_detection", RequestID: "r-1", Data: json.RawMessage(`{"messages":[]}`),
		}},
		{Type: TypeInferenceResponse, InferenceResponse: &InferenceResponse{RequestID: "r-1", Data: json.RawMessage(`{"eou_probability":0.8}`)}},
		{Type: TypeExiting, Exiting: &Exiting{Reason: "job finished"}},
		{Type: TypeDone},
	}

	is := is.New(t)
	var buf bytes.Buffer
	w := NewWriter(&buf)
	for _, env := range envelopes {
		is.NoErr(w.Write(env))
	}

	r := NewReader(&buf)
	for _, want := range envelopes {
		got, err := r.Read()
		is.NoErr(err)
		is.Equal(got.Type, want.Type)
	}
	_, err := r.Read()
	is.Equal(err, io.EOF)
}

// chunkedReader delivers at most n bytes per Read call, simulating a pipe
// that fragments frames.
type chunkedReader struct {
	data []byte
	n    int
}

func (c *chunkedReader) Read(p []byte) (int, error) {
	if len(c.data) == 0 {
		return 0, io.EOF
	}
	n := c.n
	if n > len(c.data) {
		n = len(c.data)
	}
	if n > len(p) {
		n = len(p)
	}
	copy(p, c.data[:n])
	c.data = c.data[n:]
	return n, nil
}

func TestReader_HandlesFragmentedFrames(t *testing.T) {
	is := is.New(t)

	var buf bytes.Buffer
	w := NewWriter(&buf)
	is.NoErr(w.Write(&Envelope{Type: TypePingRequest, PingRequest: &PingRequest{Timestamp: 42}}))
	is.NoErr(w.Write(&Envelope{Type: TypeDone}))

	// One byte at a time: the reader must reassemble.
	r := NewReader(&chunkedReader{data: buf.Bytes(), n: 1})

	env, err := r.Read()
	is.NoErr(err)
	is.Equal(env.Type, TypePingRequest)
	is.Equal(env.PingRequest.Timestamp, int64(42))

	env, err = r.Read()
	is.NoErr(err)
	is.Equal(env.Type, TypeDone)

	_, err = r.Read()
	is.Equal(err, io.EOF)
}

func TestReader_PartialTrailingFrame(t *testing.T) {
	is := is.New(t)

	var buf bytes.Buffer
	w := NewWriter(&buf)
	is.NoErr(w.Write(&Envelope{Type: TypeDone}))

	truncated := buf.Bytes()[:buf.Len()-3]
	r := NewReader(bytes.NewReader(truncated))

	_, err := r.Read()
	is.Equal(err, io.ErrUnexpectedEOF)
}

func TestReader_RejectsOversizedFrame(t *testing.T) {
	is := is.New(t)

	var header [4]byte
	header[0] = 0xFF // ~4GB claimed length
	r := NewReader(bytes.NewReader(header[:]))

	_, err := r.Read()
	is.True(err != nil)
	is.True(err != io.EOF)
}

func TestReader_RejectsMissingType(t *testing.T) {
	is := is.New(t)

	var buf bytes.Buffer
	payload := []byte(`{}`)
	buf.Write([]byte{0, 0, 0, byte(len(payload))})
	buf.Write(payload)

	_, err := NewReader(&buf).Read()
	is.True(err != nil)
}
