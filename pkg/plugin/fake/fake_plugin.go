// Package fake registers the deterministic test providers with the plugin
// registry, so the dev loop can run a full session with no API keys.
package fake

import (
	"time"

	llmfake "github.com/voxalabs/agents-go/pkg/ai/llm/fake"
	sttfake "github.com/voxalabs/agents-go/pkg/ai/stt/fake"
	ttsfake "github.com/voxalabs/agents-go/pkg/ai/tts/fake"
	vadfake "github.com/voxalabs/agents-go/pkg/ai/vad/fake"
	"github.com/voxalabs/agents-go/pkg/plugin"
)

func init() {
	plugin.Register(&plugin.Plugin{
		Kind:        plugin.KindSTT,
		Name:        "fake",
		Description: "scripted transcript recognizer",
		Factory: func(cfg map[string]any) (any, error) {
			transcript, _ := cfg["transcript"].(string)
			return sttfake.New(transcript), nil
		},
	})
	plugin.Register(&plugin.Plugin{
		Kind:        plugin.KindLLM,
		Name:        "fake",
		Description: "echoing chat model",
		Factory: func(cfg map[string]any) (any, error) {
			return llmfake.New(nil), nil
		},
	})
	plugin.Register(&plugin.Plugin{
		Kind:        plugin.KindTTS,
		Name:        "fake",
		Description: "silence synthesizer, 10ms per character",
		Factory: func(cfg map[string]any) (any, error) {
			return ttsfake.New(), nil
		},
	})
	plugin.Register(&plugin.Plugin{
		Kind:        plugin.KindVAD,
		Name:        "fake",
		Description: "energy-threshold voice activity detector",
		Factory: func(cfg map[string]any) (any, error) {
			opts := vadfake.Options{}
			if v, ok := cfg["amplitude_threshold"].(int); ok {
				opts.AmplitudeThreshold = v
			}
			if v, ok := cfg["min_silence_ms"].(int); ok {
				opts.MinSilence = time.Duration(v) * time.Millisecond
			}
			return vadfake.New(opts), nil
		},
	})
}
