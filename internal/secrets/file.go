package secrets

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// FileProvider reads secrets from mounted files, such as Docker or
// Kubernetes secrets. A "#key" suffix selects a string field of a JSON
// object file.
type FileProvider struct{}

// NewFileProvider creates a file-based secrets provider.
func NewFileProvider() *FileProvider {
	return &FileProvider{}
}

func (p *FileProvider) Name() string { return "file" }

func (p *FileProvider) Get(ctx context.Context, name string) (string, error) {
	path, key, hasKey := strings.Cut(name, "#")
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if !hasKey {
		val := strings.TrimRight(string(data), "\r\n")
		if val == "" {
			return "", fmt.Errorf("secret file is empty: %s", path)
		}
		return val, nil
	}

	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return "", fmt.Errorf("parse secrets file %s: %w", path, err)
	}
	val, ok := fields[key]
	if !ok {
		return "", fmt.Errorf("key %q not found in %s", key, path)
	}
	if s, ok := val.(string); ok {
		return s, nil
	}
	return fmt.Sprintf("%v", val), nil
}
