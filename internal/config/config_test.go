package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Vector.Dimension != 384 {
		t.Errorf("dimension = %d, want 384", cfg.Vector.Dimension)
	}
	if cfg.Vector.Metric != "cosine" {
		t.Errorf("metric = %q, want cosine", cfg.Vector.Metric)
	}
	if cfg.Vector.BatchSize != 100 {
		t.Errorf("batch_size = %d, want 100", cfg.Vector.BatchSize)
	}
	if cfg.Vector.Collection != "commits" {
		t.Errorf("collection = %q, want commits", cfg.Vector.Collection)
	}
	if cfg.Query.Limit != 5 {
		t.Errorf("query limit = %d, want 5", cfg.Query.Limit)
	}
	if cfg.Store.Path != "commit_messages.db" {
		t.Errorf("store path = %q", cfg.Store.Path)
	}
	if cfg.Segment.Granularity != "message" {
		t.Errorf("granularity = %q, want message", cfg.Segment.Granularity)
	}
	if cfg.Embedding.Timeout != 60*time.Second {
		t.Errorf("embedding timeout = %v", cfg.Embedding.Timeout)
	}
	if cfg.Secrets.VaultMount != "secret" || cfg.Secrets.VaultPath != "logsift" {
		t.Errorf("vault defaults = %q/%q", cfg.Secrets.VaultMount, cfg.Secrets.VaultPath)
	}
	if err := cfg.Check(); err != nil {
		t.Errorf("default config should pass Check: %v", err)
	}
}

func TestValidate_Default(t *testing.T) {
	if warnings := Default().Validate(); len(warnings) != 0 {
		t.Errorf("default config should have no warnings, got %v", warnings)
	}
}

func TestValidate_Warnings(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"openai without key", func(c *Config) { c.Embedding.Provider = "openai" }, "api_key"},
		{"hash provider", func(c *Config) { c.Embedding.Provider = "hash" }, "lexical"},
		{"memory backend", func(c *Config) { c.Vector.Backend = "memory" }, "does not persist"},
		{"huge batch", func(c *Config) { c.Vector.BatchSize = 5000 }, "batch_size"},
		{"graph without password", func(c *Config) { c.Graph.URI = "bolt://localhost:7687" }, "password"},
		{"sample rate", func(c *Config) { c.Tracing.SampleRate = 1.5 }, "sample_rate"},
		{"vault reference without address", func(c *Config) { c.Embedding.APIKey = "vault:openai" }, "vault_address"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			found := false
			for _, w := range cfg.Validate() {
				if strings.Contains(w, tt.want) {
					found = true
				}
			}
			if !found {
				t.Errorf("expected warning containing %q, got %v", tt.want, cfg.Validate())
			}
		})
	}
}

func TestCheck(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"zero dimension", func(c *Config) { c.Vector.Dimension = 0 }, "vector.dimension"},
		{"zero batch", func(c *Config) { c.Vector.BatchSize = 0 }, "vector.batch_size"},
		{"no collection", func(c *Config) { c.Vector.Collection = "" }, "vector.collection"},
		{"bad backend", func(c *Config) { c.Vector.Backend = "faiss" }, "vector.backend"},
		{"bad metric", func(c *Config) { c.Vector.Metric = "manhattan" }, "vector.metric"},
		{"bad granularity", func(c *Config) { c.Segment.Granularity = "word" }, "segment.granularity"},
		{"zero limit", func(c *Config) { c.Query.Limit = 0 }, "query.limit"},
		{"no store", func(c *Config) { c.Store.Path = "" }, "store.path"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Check()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logsift.yaml")
	body := `vector:
  host: qdrant.internal
  dimension: 768
  metric: dot
segment:
  granularity: sentence
query:
  limit: 3
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Vector.Host != "qdrant.internal" || cfg.Vector.Dimension != 768 || cfg.Vector.Metric != "dot" {
		t.Errorf("unexpected vector config %+v", cfg.Vector)
	}
	if cfg.Segment.Granularity != "sentence" || cfg.Query.Limit != 3 {
		t.Errorf("unexpected overrides: %+v %+v", cfg.Segment, cfg.Query)
	}
	// Unset keys keep their defaults.
	if cfg.Vector.Collection != "commits" || cfg.Vector.Port != 6334 {
		t.Errorf("defaults lost: %+v", cfg.Vector)
	}
}

func TestLoad_Env(t *testing.T) {
	t.Setenv("LOGSIFT_VECTOR_COLLECTION", "commits_v2")
	t.Setenv("LOGSIFT_EMBEDDING_TIMEOUT", "5s")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Vector.Collection != "commits_v2" {
		t.Errorf("collection = %q, want commits_v2", cfg.Vector.Collection)
	}
	if cfg.Embedding.Timeout != 5*time.Second {
		t.Errorf("timeout = %v, want 5s", cfg.Embedding.Timeout)
	}
}

func TestLoad_Errors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("vector:\n  dimension: -1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "vector.dimension") {
		t.Errorf("expected dimension error, got %v", err)
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := LogConfig{Level: "warn", Format: "json"}.NewLogger(&buf)
	logger.Info("hidden")
	logger.Warn("shown", "k", "v")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info line should be filtered at warn level: %s", out)
	}
	if !strings.Contains(out, `"msg":"shown"`) || !strings.Contains(out, `"k":"v"`) {
		t.Errorf("expected json output, got %s", out)
	}
}

func TestLoad_Example(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "configs", "logsift.yaml"))
	if err != nil {
		t.Fatalf("example config: %v", err)
	}
	want := Default()
	want.Embedding.BaseURL = "http://localhost:11434"
	if cfg.Vector != want.Vector || cfg.Query != want.Query || cfg.Embedding != want.Embedding || cfg.Secrets != want.Secrets {
		t.Errorf("example config drifted from defaults:\n got %+v\nwant %+v", cfg, want)
	}
}

func TestLoad_DotEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	if err := os.WriteFile(".env", []byte("LOGSIFT_QUERY_LIMIT=7\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("LOGSIFT_QUERY_LIMIT") })

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Query.Limit != 7 {
		t.Errorf("query limit = %d, want 7 from .env", cfg.Query.Limit)
	}
}
