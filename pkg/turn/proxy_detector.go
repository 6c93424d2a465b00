package turn

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/voxalabs/agents-go/pkg/ai/llm"
)

// InferenceMethod is the method name proxied predictions travel under.
const InferenceMethod = "eou_detection"

// Invoker forwards an inference request to wherever the model actually runs,
// typically the parent worker process over the job's IPC channel.
type Invoker interface {
	Inference(ctx context.Context, method string, data []byte) ([]byte, error)
}

// ProxyDetector runs predictions through an Invoker so that job processes
// share one loaded model instead of each paying the ONNX footprint.
// Thresholds and language support are static config carried with the proxy.
type ProxyDetector struct {
	invoker    Invoker
	thresholds map[string]float64
}

// NewProxyDetector builds a proxy with the given per-language unlikely
// thresholds (keyed by bare language code, e.g. "en").
func NewProxyDetector(invoker Invoker, thresholds map[string]float64) *ProxyDetector {
	return &ProxyDetector{invoker: invoker, thresholds: thresholds}
}

type proxyPayload struct {
	Messages []proxyMessage `json:"messages"`
	Language string         `json:"language,omitempty"`
}

type proxyMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type proxyResult struct {
	Probability float64 `json:"eou_probability"`
}

func (d *ProxyDetector) UnlikelyThreshold(language string) (float64, error) {
	threshold, ok := d.thresholds[normalizeLanguage(language)]
	if !ok {
		return 0, fmt.Errorf("unsupported language: %s", language)
	}
	return threshold, nil
}

func (d *ProxyDetector) SupportsLanguage(language string) bool {
	_, ok := d.thresholds[normalizeLanguage(language)]
	return ok
}

func (d *ProxyDetector) PredictEndOfTurn(ctx context.Context, chatCtx ChatContext) (float64, error) {
	payload := proxyPayload{Language: chatCtx.Language}
	for _, it := range chatCtx.Items {
		switch it.Role {
		case llm.RoleSystem, llm.RoleUser, llm.RoleAssistant:
			payload.Messages = append(payload.Messages, proxyMessage{
				Role:    string(it.Role),
				Content: it.Content,
			})
		}
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return 0, err
	}

	raw, err := d.invoker.Inference(ctx, InferenceMethod, data)
	if err != nil {
		return 0, fmt.Errorf("proxied inference: %w", err)
	}

	var result proxyResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return 0, fmt.Errorf("decode inference result: %w", err)
	}
	return result.Probability, nil
}

// ServeInference answers a proxied prediction with a local detector; the
// worker registers it as the handler for InferenceMethod.
func ServeInference(ctx context.Context, detector Detector, data []byte) ([]byte, error) {
	var payload proxyPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("decode inference request: %w", err)
	}

	chatCtx := ChatContext{Language: payload.Language}
	for _, msg := range payload.Messages {
		chatCtx.Items = append(chatCtx.Items, &llm.ChatItem{
			Role:    llm.ItemRole(msg.Role),
			Content: msg.Content,
		})
	}

	prob, err := detector.PredictEndOfTurn(ctx, chatCtx)
	if err != nil {
		return nil, err
	}
	return json.Marshal(proxyResult{Probability: prob})
}
