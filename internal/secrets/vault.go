package secrets

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// VaultConfig locates one KV v2 secret whose keys hold logsift credentials.
type VaultConfig struct {
	Address string
	Token   string
	// Namespace is sent as X-Vault-Namespace when set (Vault Enterprise).
	Namespace  string
	MountPath  string // default "secret"
	SecretPath string // default "logsift"
	Timeout    time.Duration
}

// VaultProvider reads keys of a single KV v2 secret. The secret is fetched
// once; keys are served from memory afterwards.
type VaultProvider struct {
	endpoint  string
	token     string
	namespace string
	client    *http.Client

	mu   sync.Mutex
	data map[string]any
}

// NewVaultProvider creates a Vault secrets provider.
func NewVaultProvider(config VaultConfig) (*VaultProvider, error) {
	if config.Address == "" {
		return nil, fmt.Errorf("vault address required")
	}
	if config.Token == "" {
		return nil, fmt.Errorf("vault token required")
	}
	mount := strings.Trim(config.MountPath, "/")
	if mount == "" {
		mount = "secret"
	}
	secret := strings.Trim(config.SecretPath, "/")
	if secret == "" {
		secret = "logsift"
	}
	endpoint, err := url.JoinPath(config.Address, "v1", mount, "data", secret)
	if err != nil {
		return nil, fmt.Errorf("vault address %q: %w", config.Address, err)
	}
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &VaultProvider{
		endpoint:  endpoint,
		token:     config.Token,
		namespace: config.Namespace,
		client:    &http.Client{Timeout: timeout},
	}, nil
}

func (p *VaultProvider) Name() string { return "vault" }

func (p *VaultProvider) Get(ctx context.Context, key string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.data == nil {
		data, err := p.fetch(ctx)
		if err != nil {
			return "", err
		}
		p.data = data
	}

	val, ok := p.data[key]
	if !ok {
		return "", fmt.Errorf("key %q not in vault secret", key)
	}
	if s, ok := val.(string); ok {
		return s, nil
	}
	return fmt.Sprintf("%v", val), nil
}

func (p *VaultProvider) fetch(ctx context.Context) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("X-Vault-Token", p.token)
	if p.namespace != "" {
		req.Header.Set("X-Vault-Namespace", p.namespace)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("vault request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("vault secret not found: %s", p.endpoint)
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<10))
		return nil, fmt.Errorf("vault returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var kv struct {
		Data struct {
			Data map[string]any `json:"data"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&kv); err != nil {
		return nil, fmt.Errorf("decode vault response: %w", err)
	}
	if kv.Data.Data == nil {
		return nil, fmt.Errorf("vault secret has no data: %s", p.endpoint)
	}
	return kv.Data.Data, nil
}
