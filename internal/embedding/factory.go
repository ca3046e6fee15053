package embedding

import (
	"fmt"
	"sort"
	"time"

	"github.com/efebarandurmaz/logsift/internal/embedding/ollama"
	"github.com/efebarandurmaz/logsift/internal/embedding/openai"
)

// ProviderConfig holds everything needed to build any Encoder.
type ProviderConfig struct {
	Provider  string // "ollama", "openai", "hash"
	BaseURL   string
	Model     string
	APIKey    string
	Dimension int
	Timeout   time.Duration
}

// Constructor builds an Encoder from config.
type Constructor func(cfg ProviderConfig) (Encoder, error)

// Factory creates Encoders by provider name.
type Factory struct {
	constructors map[string]Constructor
}

// NewFactory returns a factory with the built-in providers registered.
func NewFactory() *Factory {
	f := &Factory{constructors: make(map[string]Constructor)}
	f.Register("ollama", func(cfg ProviderConfig) (Encoder, error) {
		return ollama.New(ollama.Config{BaseURL: cfg.BaseURL, Model: cfg.Model, Timeout: cfg.Timeout}), nil
	})
	f.Register("openai", func(cfg ProviderConfig) (Encoder, error) {
		return openai.New(cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.Dimension), nil
	})
	f.Register("hash", func(cfg ProviderConfig) (Encoder, error) {
		return NewHashEncoder(cfg.Dimension)
	})
	return f
}

// Register adds a constructor under the given name.
func (f *Factory) Register(name string, ctor Constructor) {
	f.constructors[name] = ctor
}

// Create builds an Encoder. An empty provider selects ollama.
func (f *Factory) Create(cfg ProviderConfig) (Encoder, error) {
	if cfg.Provider == "" {
		cfg.Provider = "ollama"
	}
	ctor, ok := f.constructors[cfg.Provider]
	if !ok {
		return nil, fmt.Errorf("unknown embedding provider %q, registered: %v", cfg.Provider, f.names())
	}
	return ctor(cfg)
}

func (f *Factory) names() []string {
	out := make([]string, 0, len(f.constructors))
	for k := range f.constructors {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// NewFromConfig builds an Encoder with the default factory.
func NewFromConfig(cfg ProviderConfig) (Encoder, error) {
	return NewFactory().Create(cfg)
}
