// Package secrets resolves credential references found in configuration.
//
// A configured value is either a literal or a reference of the form
// "scheme:name":
//
//	env:OPENAI_API_KEY        environment variable (LOGSIFT_ prefix tried first)
//	file:/run/secrets/neo4j   file content, trailing newline trimmed
//	file:/etc/creds.json#key  string field of a JSON object file
//	vault:neo4j_password      key of the configured Vault KV v2 secret
package secrets

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
)

// Provider is the interface for secret backends.
type Provider interface {
	// Get retrieves a secret by name.
	Get(ctx context.Context, name string) (string, error)
	// Name returns the reference scheme the provider serves.
	Name() string
}

// Manager dispatches references to the provider registered for their
// scheme and caches resolved values.
type Manager struct {
	providers map[string]Provider

	cacheMu sync.RWMutex
	cache   map[string]string
}

// NewManager returns a Manager serving env: and file: references plus any
// extra providers, such as a VaultProvider.
func NewManager(extra ...Provider) *Manager {
	m := &Manager{
		providers: make(map[string]Provider),
		cache:     make(map[string]string),
	}
	m.Register(NewEnvProvider("LOGSIFT_"))
	m.Register(NewFileProvider())
	for _, p := range extra {
		m.Register(p)
	}
	return m
}

// Register adds or replaces the provider for p.Name().
func (m *Manager) Register(p Provider) {
	m.providers[p.Name()] = p
}

// Resolve returns the secret a value refers to. Values without a known
// scheme, including the empty string, are returned unchanged.
func (m *Manager) Resolve(ctx context.Context, value string) (string, error) {
	scheme, name, ok := strings.Cut(value, ":")
	if !ok {
		return value, nil
	}
	p, ok := m.providers[scheme]
	if !ok {
		return value, nil
	}
	if name == "" {
		return "", fmt.Errorf("secret reference %q has no name", value)
	}

	m.cacheMu.RLock()
	v, hit := m.cache[value]
	m.cacheMu.RUnlock()
	if hit {
		return v, nil
	}

	v, err := p.Get(ctx, name)
	if err != nil {
		return "", fmt.Errorf("resolve %s secret %q: %w", scheme, name, err)
	}
	m.cacheMu.Lock()
	m.cache[value] = v
	m.cacheMu.Unlock()
	return v, nil
}

// ClearCache drops resolved values so the next Resolve reads the backend.
func (m *Manager) ClearCache() {
	m.cacheMu.Lock()
	m.cache = make(map[string]string)
	m.cacheMu.Unlock()
}

// EnvProvider reads secrets from environment variables.
type EnvProvider struct {
	prefix string
}

// NewEnvProvider creates an environment-based secrets provider.
func NewEnvProvider(prefix string) *EnvProvider {
	return &EnvProvider{prefix: prefix}
}

func (p *EnvProvider) Name() string { return "env" }

func (p *EnvProvider) Get(ctx context.Context, name string) (string, error) {
	key := strings.ToUpper(name)
	if p.prefix != "" && !strings.HasPrefix(key, p.prefix) {
		if val := os.Getenv(p.prefix + key); val != "" {
			return val, nil
		}
	}
	if val := os.Getenv(key); val != "" {
		return val, nil
	}
	return "", fmt.Errorf("env var not set: %s", key)
}
