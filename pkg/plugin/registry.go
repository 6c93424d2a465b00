// Package plugin is the provider registry: STT, LLM, TTS, and VAD
// implementations register themselves by kind and name, usually from an
// init function, and the CLI resolves "kind:name" strings against it.
package plugin

import (
	"fmt"
	"sort"
	"sync"

	"github.com/voxalabs/agents-go/pkg/ai/llm"
	"github.com/voxalabs/agents-go/pkg/ai/stt"
	"github.com/voxalabs/agents-go/pkg/ai/tts"
	"github.com/voxalabs/agents-go/pkg/ai/vad"
)

// Provider kinds.
const (
	KindSTT = "stt"
	KindLLM = "llm"
	KindTTS = "tts"
	KindVAD = "vad"
)

// Factory builds a provider from configuration. The returned value must
// implement the capability interface for its kind.
type Factory func(cfg map[string]any) (any, error)

// Plugin is one registered provider.
type Plugin struct {
	Kind        string
	Name        string
	Description string
	Factory     Factory
}

// Registry maps (kind, name) to provider factories.
type Registry struct {
	mu      sync.RWMutex
	plugins map[string]map[string]*Plugin
}

func NewRegistry() *Registry {
	return &Registry{plugins: make(map[string]map[string]*Plugin)}
}

var global = NewRegistry()

// Register adds a plugin to the process-wide registry. Called from provider
// init functions; panics on duplicates since that is a build mistake.
func Register(p *Plugin) { global.Register(p) }

// Get looks a factory up in the process-wide registry.
func Get(kind, name string) (Factory, bool) { return global.Get(kind, name) }

// List returns the process-wide plugins of one kind, or all when kind is "".
func List(kind string) []*Plugin { return global.List(kind) }

func (r *Registry) Register(p *Plugin) {
	if p.Kind == "" || p.Name == "" {
		panic("plugin: kind and name are required")
	}
	if p.Factory == nil {
		panic("plugin: factory is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.plugins[p.Kind] == nil {
		r.plugins[p.Kind] = make(map[string]*Plugin)
	}
	if _, dup := r.plugins[p.Kind][p.Name]; dup {
		panic(fmt.Sprintf("plugin: %s/%s registered twice", p.Kind, p.Name))
	}
	r.plugins[p.Kind][p.Name] = p
}

func (r *Registry) Get(kind, name string) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.plugins[kind][name]
	if !ok {
		return nil, false
	}
	return p.Factory, true
}

func (r *Registry) List(kind string) []*Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Plugin
	for k, byName := range r.plugins {
		if kind != "" && k != kind {
			continue
		}
		for _, p := range byName {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// NewSTT builds a registered STT provider by name.
func NewSTT(name string, cfg map[string]any) (stt.STT, error) {
	v, err := build(KindSTT, name, cfg)
	if err != nil {
		return nil, err
	}
	s, ok := v.(stt.STT)
	if !ok {
		return nil, fmt.Errorf("plugin: stt/%s does not implement stt.STT", name)
	}
	return s, nil
}

// NewLLM builds a registered LLM provider by name.
func NewLLM(name string, cfg map[string]any) (llm.LLM, error) {
	v, err := build(KindLLM, name, cfg)
	if err != nil {
		return nil, err
	}
	l, ok := v.(llm.LLM)
	if !ok {
		return nil, fmt.Errorf("plugin: llm/%s does not implement llm.LLM", name)
	}
	return l, nil
}

// NewTTS builds a registered TTS provider by name.
func NewTTS(name string, cfg map[string]any) (tts.TTS, error) {
	v, err := build(KindTTS, name, cfg)
	if err != nil {
		return nil, err
	}
	t, ok := v.(tts.TTS)
	if !ok {
		return nil, fmt.Errorf("plugin: tts/%s does not implement tts.TTS", name)
	}
	return t, nil
}

// NewVAD builds a registered VAD provider by name.
func NewVAD(name string, cfg map[string]any) (vad.VAD, error) {
	v, err := build(KindVAD, name, cfg)
	if err != nil {
		return nil, err
	}
	d, ok := v.(vad.VAD)
	if !ok {
		return nil, fmt.Errorf("plugin: vad/%s does not implement vad.VAD", name)
	}
	return d, nil
}

func build(kind, name string, cfg map[string]any) (any, error) {
	f, ok := global.Get(kind, name)
	if !ok {
		return nil, fmt.Errorf("plugin: no %s provider named %q", kind, name)
	}
	return f(cfg)
}
