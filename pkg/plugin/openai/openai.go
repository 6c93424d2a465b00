// Package openai provides STT, LLM, and TTS implementations backed by the
// OpenAI API: Whisper transcription, streaming chat completions, and speech
// synthesis. Blank-import it to register the providers.
package openai

import (
	"fmt"
	"os"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/voxalabs/agents-go/pkg/plugin"
)

// Config is shared across the three providers.
type Config struct {
	// APIKey falls back to OPENAI_API_KEY.
	APIKey string
	// Model defaults per provider: whisper-1, gpt-4o-mini, tts-1.
	Model string
	// Voice applies to TTS only.
	Voice string
	// Language applies to STT only.
	Language string
}

func (c *Config) client() (*goopenai.Client, error) {
	key := c.APIKey
	if key == "" {
		key = os.Getenv("OPENAI_API_KEY")
	}
	if key == "" {
		return nil, fmt.Errorf("openai: no API key (set OPENAI_API_KEY or pass api_key)")
	}
	return goopenai.NewClient(key), nil
}

func configFrom(cfg map[string]any) Config {
	c := Config{}
	if v, ok := cfg["api_key"].(string); ok {
		c.APIKey = v
	}
	if v, ok := cfg["model"].(string); ok {
		c.Model = v
	}
	if v, ok := cfg["voice"].(string); ok {
		c.Voice = v
	}
	if v, ok := cfg["language"].(string); ok {
		c.Language = v
	}
	return c
}

func init() {
	plugin.Register(&plugin.Plugin{
		Kind:        plugin.KindSTT,
		Name:        "openai",
		Description: "OpenAI Whisper transcription",
		Factory: func(cfg map[string]any) (any, error) {
			return NewSTT(configFrom(cfg))
		},
	})
	plugin.Register(&plugin.Plugin{
		Kind:        plugin.KindLLM,
		Name:        "openai",
		Description: "OpenAI chat completions",
		Factory: func(cfg map[string]any) (any, error) {
			return NewLLM(configFrom(cfg))
		},
	})
	plugin.Register(&plugin.Plugin{
		Kind:        plugin.KindTTS,
		Name:        "openai",
		Description: "OpenAI speech synthesis",
		Factory: func(cfg map[string]any) (any, error) {
			return NewTTS(configFrom(cfg))
		},
	})
}
