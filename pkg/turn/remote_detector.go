package turn

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/voxalabs/agents-go/pkg/ai/llm"
)

// RemoteDetector scores end-of-utterance through an HTTP inference endpoint,
// optionally falling back to a local detector when the endpoint misbehaves.
type RemoteDetector struct {
	endpoint   string
	httpClient *http.Client
	fallback   Detector
	logger     *slog.Logger
}

func NewRemoteDetector(endpoint string, fallback Detector) *RemoteDetector {
	return &RemoteDetector{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: 2 * time.Second},
		fallback:   fallback,
		logger:     slog.Default().With("component", "remote-turn-detector"),
	}
}

type remoteMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type remoteRequest struct {
	Messages []remoteMessage `json:"messages"`
	Language string          `json:"language,omitempty"`
}

type remoteResponse struct {
	Probability float64 `json:"eou_probability"`
	Error       string  `json:"error,omitempty"`
}

func (d *RemoteDetector) UnlikelyThreshold(language string) (float64, error) {
	if d.fallback != nil {
		return d.fallback.UnlikelyThreshold(language)
	}
	switch normalizeLanguage(language) {
	case "en":
		return 0.85, nil
	default:
		return 0.80, nil
	}
}

func (d *RemoteDetector) SupportsLanguage(language string) bool {
	if d.fallback != nil {
		return d.fallback.SupportsLanguage(language)
	}
	return true
}

func (d *RemoteDetector) PredictEndOfTurn(ctx context.Context, chatCtx ChatContext) (float64, error) {
	payload := remoteRequest{Language: chatCtx.Language}
	for _, it := range chatCtx.Items {
		switch it.Role {
		case llm.RoleSystem, llm.RoleUser, llm.RoleAssistant:
			payload.Messages = append(payload.Messages, remoteMessage{
				Role:    string(it.Role),
				Content: it.Content,
			})
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return d.fallbackPredict(ctx, chatCtx, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewReader(body))
	if err != nil {
		return d.fallbackPredict(ctx, chatCtx, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "voxa/turn-detector")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return d.fallbackPredict(ctx, chatCtx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return d.fallbackPredict(ctx, chatCtx, fmt.Errorf("HTTP %d: %s", resp.StatusCode, msg))
	}

	var result remoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return d.fallbackPredict(ctx, chatCtx, err)
	}
	if result.Error != "" {
		return d.fallbackPredict(ctx, chatCtx, fmt.Errorf("remote error: %s", result.Error))
	}
	if result.Probability < 0 || result.Probability > 1 {
		return d.fallbackPredict(ctx, chatCtx, fmt.Errorf("probability out of range: %f", result.Probability))
	}
	return result.Probability, nil
}

func (d *RemoteDetector) fallbackPredict(ctx context.Context, chatCtx ChatContext, cause error) (float64, error) {
	if d.fallback == nil {
		return 0, fmt.Errorf("remote inference failed with no fallback: %w", cause)
	}
	d.logger.Warn("remote turn detection failed, using fallback", "error", cause)
	return d.fallback.PredictEndOfTurn(ctx, chatCtx)
}
