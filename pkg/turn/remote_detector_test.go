package turn

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/matryer/is"

	"github.com/voxalabs/agents-go/pkg/ai/llm"
)

type stubDetector struct {
	probability float64
	threshold   float64
	calls       int
}

func (s *stubDetector) UnlikelyThreshold(language string) (float64, error) {
	return s.threshold, nil
}
func (s *stubDetector) SupportsLanguage(language string) bool { return true }
func (s *stubDetector) PredictEndOfTurn(ctx context.Context, chatCtx ChatContext) (float64, error) {
	s.calls++
	return s.probability, nil
}

func chatWith(userText string) ChatContext {
	return ChatContext{
		Items: []*llm.ChatItem{
			{Role: llm.RoleAssistant, Content: "how can I help?"},
			{Role: llm.RoleUser, Content: userText},
		},
		Language: "en-US",
	}
}

func TestRemoteDetector_UsesEndpointScore(t *testing.T) {
	is := is.New(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req remoteRequest
		is.NoErr(json.NewDecoder(r.Body).Decode(&req))
		is.Equal(len(req.Messages), 2)
		is.Equal(req.Messages[1].Content, "I was wondering if")
		json.NewEncoder(w).Encode(remoteResponse{Probability: 0.12})
	}))
	defer srv.Close()

	d := NewRemoteDetector(srv.URL, nil)
	p, err := d.PredictEndOfTurn(context.Background(), chatWith("I was wondering if"))
	is.NoErr(err)
	is.Equal(p, 0.12)
}

func TestRemoteDetector_FallsBackOnServerError(t *testing.T) {
	is := is.New(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	local := &stubDetector{probability: 0.9}
	d := NewRemoteDetector(srv.URL, local)

	p, err := d.PredictEndOfTurn(context.Background(), chatWith("done now."))
	is.NoErr(err)
	is.Equal(p, 0.9)
	is.Equal(local.calls, 1)
}

func TestRemoteDetector_RejectsOutOfRangeProbability(t *testing.T) {
	is := is.New(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(remoteResponse{Probability: 3.5})
	}))
	defer srv.Close()

	d := NewRemoteDetector(srv.URL, nil)
	_, err := d.PredictEndOfTurn(context.Background(), chatWith("hm"))
	is.True(err != nil) // no fallback: surfaced
}

func TestRemoteDetector_ThresholdDelegatesToFallback(t *testing.T) {
	is := is.New(t)

	d := NewRemoteDetector("http://unused", &stubDetector{threshold: 0.42})
	th, err := d.UnlikelyThreshold("en-US")
	is.NoErr(err)
	is.Equal(th, 0.42)
}
