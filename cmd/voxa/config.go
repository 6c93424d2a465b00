package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the worker configuration file. Every field has a workable
// default; a missing file yields a fake-provider worker suitable for dev.
type Config struct {
	AgentName string `yaml:"agent_name"`

	Dispatch  DispatchConfig  `yaml:"dispatch"`
	Pool      PoolConfig      `yaml:"pool"`
	Providers ProvidersConfig `yaml:"providers"`
	Turn      TurnConfig      `yaml:"turn_detector"`
	Session   SessionConfig   `yaml:"session"`
	Log       LogConfig       `yaml:"log"`
}

// DispatchConfig locates the dispatch server's control endpoint.
type DispatchConfig struct {
	URL   string `yaml:"url"`
	Token string `yaml:"token"`
}

// PoolConfig shapes the warm job-process pool.
type PoolConfig struct {
	NumIdleProcesses int     `yaml:"num_idle_processes"`
	MemoryWarnMB     float64 `yaml:"memory_warn_mb"`
	MemoryLimitMB    float64 `yaml:"memory_limit_mb"`
	CloseTimeoutSec  int     `yaml:"close_timeout_sec"`
}

// ProviderRef names a registered plugin plus its options.
type ProviderRef struct {
	Name    string         `yaml:"name"`
	Options map[string]any `yaml:"options"`
}

// ProvidersConfig selects the session's providers by plugin name.
type ProvidersConfig struct {
	STT ProviderRef `yaml:"stt"`
	LLM ProviderRef `yaml:"llm"`
	TTS ProviderRef `yaml:"tts"`
	VAD ProviderRef `yaml:"vad"`
}

// TurnConfig selects the shared end-of-turn model hosted by the worker.
type TurnConfig struct {
	Disabled  bool   `yaml:"disabled"`
	Model     string `yaml:"model"`      // "english" or "multilingual"
	ModelPath string `yaml:"model_path"` // cache dir; default when empty
	RemoteURL string `yaml:"remote_url"`
}

// SessionConfig tunes the per-job agent session.
type SessionConfig struct {
	Instructions          string `yaml:"instructions"`
	Greeting              string `yaml:"greeting"`
	Language              string `yaml:"language"`
	TurnDetection         string `yaml:"turn_detection"` // "vad", "stt", "manual"
	AllowInterruptions    *bool  `yaml:"allow_interruptions"`
	MinEndpointingDelayMS int    `yaml:"min_endpointing_delay_ms"`
	MaxEndpointingDelayMS int    `yaml:"max_endpointing_delay_ms"`
	MaxToolSteps          int    `yaml:"max_tool_steps"`
}

// LogConfig controls slog output.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json or text
}

func defaultConfig() *Config {
	return &Config{
		AgentName: "assistant",
		Pool: PoolConfig{
			NumIdleProcesses: 4,
			CloseTimeoutSec:  60,
		},
		Providers: ProvidersConfig{
			STT: ProviderRef{Name: "fake"},
			LLM: ProviderRef{Name: "fake"},
			TTS: ProviderRef{Name: "fake"},
			VAD: ProviderRef{Name: "fake"},
		},
		Turn: TurnConfig{Model: "english"},
		Session: SessionConfig{
			Instructions: "You are a helpful voice assistant. Keep replies short; they are spoken aloud.",
			Language:     "en",
		},
		Log: LogConfig{Level: "info", Format: "json"},
	}
}

// loadConfig reads the YAML config at path, folding in environment
// overrides. An empty path returns defaults.
func loadConfig(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if v := os.Getenv("VOXA_DISPATCH_URL"); v != "" {
		cfg.Dispatch.URL = v
	}
	if v := os.Getenv("VOXA_DISPATCH_TOKEN"); v != "" {
		cfg.Dispatch.Token = v
	}
	if v := os.Getenv("VOXA_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("VOXA_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	return cfg, nil
}

func (c *Config) closeTimeout() time.Duration {
	if c.Pool.CloseTimeoutSec <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.Pool.CloseTimeoutSec) * time.Second
}
