package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Ingest    IngestConfig    `mapstructure:"ingest"`
	Segment   SegmentConfig   `mapstructure:"segment"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Vector    VectorConfig    `mapstructure:"vector"`
	Query     QueryConfig     `mapstructure:"query"`
	Store     StoreConfig     `mapstructure:"store"`
	Graph     GraphConfig     `mapstructure:"graph"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	Temporal  TemporalConfig  `mapstructure:"temporal"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
	Log       LogConfig       `mapstructure:"log"`
	Server    ServerConfig    `mapstructure:"server"`
	Secrets   SecretsConfig   `mapstructure:"secrets"`
}

type IngestConfig struct {
	// UnknownRepository attaches commits of documents without a repository
	// element to a synthetic per-document repository instead of failing.
	UnknownRepository bool   `mapstructure:"unknown_repository"`
	Extension         string `mapstructure:"extension"`
}

type SegmentConfig struct {
	Granularity string `mapstructure:"granularity"`
	Detector    string `mapstructure:"detector"`
}

type EmbeddingConfig struct {
	Provider          string        `mapstructure:"provider"`
	Model             string        `mapstructure:"model"`
	BaseURL           string        `mapstructure:"base_url"`
	APIKey            string        `mapstructure:"api_key"`
	BatchSize         int           `mapstructure:"batch_size"`
	Concurrency       int           `mapstructure:"concurrency"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Timeout           time.Duration `mapstructure:"timeout"`
}

type VectorConfig struct {
	Backend    string        `mapstructure:"backend"`
	Host       string        `mapstructure:"host"`
	Port       int           `mapstructure:"port"`
	Collection string        `mapstructure:"collection"`
	Dimension  int           `mapstructure:"dimension"`
	Metric     string        `mapstructure:"metric"`
	BatchSize  int           `mapstructure:"batch_size"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type QueryConfig struct {
	Limit int `mapstructure:"limit"`
}

type StoreConfig struct {
	Path string `mapstructure:"path"`
}

type GraphConfig struct {
	URI      string `mapstructure:"uri"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

type NotifyConfig struct {
	NATSURL string `mapstructure:"nats_url"`
	Subject string `mapstructure:"subject"`
}

type TemporalConfig struct {
	Host      string `mapstructure:"host"`
	Namespace string `mapstructure:"namespace"`
	TaskQueue string `mapstructure:"task_queue"`
}

type TracingConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`
	SampleRate  float64 `mapstructure:"sample_rate"`
	Environment string  `mapstructure:"environment"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// SecretsConfig locates the Vault KV engine used by "vault:" references in
// embedding.api_key and graph.password.
type SecretsConfig struct {
	VaultAddress   string        `mapstructure:"vault_address"`
	VaultToken     string        `mapstructure:"vault_token"`
	VaultNamespace string        `mapstructure:"vault_namespace"`
	VaultMount     string        `mapstructure:"vault_mount"`
	VaultPath      string        `mapstructure:"vault_path"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

var defaults = map[string]any{
	"ingest.unknown_repository":     false,
	"ingest.extension":              ".xml",
	"segment.granularity":           "message",
	"segment.detector":              "rule",
	"embedding.provider":            "ollama",
	"embedding.model":               "all-minilm",
	"embedding.base_url":            "",
	"embedding.api_key":             "",
	"embedding.batch_size":          64,
	"embedding.concurrency":         2,
	"embedding.requests_per_second": 0.0,
	"embedding.timeout":             60 * time.Second,
	"vector.backend":                "qdrant",
	"vector.host":                   "localhost",
	"vector.port":                   6334,
	"vector.collection":             "commits",
	"vector.dimension":              384,
	"vector.metric":                 "cosine",
	"vector.batch_size":             100,
	"vector.timeout":                30 * time.Second,
	"query.limit":                   5,
	"store.path":                    "commit_messages.db",
	"graph.uri":                     "",
	"graph.username":                "neo4j",
	"graph.password":                "",
	"notify.nats_url":               "",
	"notify.subject":                "logsift.rebuild.completed",
	"temporal.host":                 "localhost:7233",
	"temporal.namespace":            "default",
	"temporal.task_queue":           "logsift",
	"tracing.endpoint":              "",
	"tracing.sample_rate":           1.0,
	"tracing.environment":           "development",
	"log.level":                     "info",
	"log.format":                    "text",
	"server.addr":                   ":8080",
	"secrets.vault_address":         "",
	"secrets.vault_token":           "",
	"secrets.vault_namespace":       "",
	"secrets.vault_mount":           "secret",
	"secrets.vault_path":            "logsift",
	"secrets.timeout":               10 * time.Second,
}

func setDefaults(v *viper.Viper) {
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
}

// Default returns the configuration used when no file or environment
// overrides are present.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	// Defaults are static and always decode.
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// Validate checks configuration for issues and returns warnings.
func (c *Config) Validate() []string {
	var warnings []string

	if c.Embedding.Provider == "openai" && c.Embedding.APIKey == "" {
		warnings = append(warnings, "embedding provider 'openai' is configured but api_key is empty")
	}

	if c.Embedding.Provider == "hash" {
		warnings = append(warnings, "embedding provider 'hash' produces lexical vectors only; use it for tests and offline runs")
	}

	if c.Vector.Backend == "memory" {
		warnings = append(warnings, "vector backend 'memory' does not persist; search after a restart will find nothing")
	}

	if c.Vector.BatchSize > 1000 {
		warnings = append(warnings, fmt.Sprintf("vector batch_size %d is large; qdrant may reject oversized requests", c.Vector.BatchSize))
	}

	if c.Graph.URI != "" && c.Graph.Password == "" {
		warnings = append(warnings, fmt.Sprintf("graph uri '%s' is configured but password is empty", c.Graph.URI))
	}

	if strings.HasPrefix(c.Embedding.APIKey, "vault:") || strings.HasPrefix(c.Graph.Password, "vault:") {
		if c.Secrets.VaultAddress == "" {
			warnings = append(warnings, "a vault: secret reference is configured but secrets.vault_address is empty")
		}
	}

	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		warnings = append(warnings, fmt.Sprintf("tracing sample_rate %.2f is outside [0.0, 1.0]", c.Tracing.SampleRate))
	}

	return warnings
}

// Check returns an error for values no component can run with.
func (c *Config) Check() error {
	var errs []error
	if c.Vector.Dimension <= 0 {
		errs = append(errs, fmt.Errorf("vector.dimension must be positive, got %d", c.Vector.Dimension))
	}
	if c.Vector.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("vector.batch_size must be positive, got %d", c.Vector.BatchSize))
	}
	if c.Vector.Collection == "" {
		errs = append(errs, errors.New("vector.collection is empty"))
	}
	switch c.Vector.Backend {
	case "qdrant", "memory":
	default:
		errs = append(errs, fmt.Errorf("vector.backend %q is not one of qdrant, memory", c.Vector.Backend))
	}
	switch c.Vector.Metric {
	case "cosine", "dot", "euclid":
	default:
		errs = append(errs, fmt.Errorf("vector.metric %q is not one of cosine, dot, euclid", c.Vector.Metric))
	}
	switch c.Segment.Granularity {
	case "message", "sentence":
	default:
		errs = append(errs, fmt.Errorf("segment.granularity %q is not one of message, sentence", c.Segment.Granularity))
	}
	if c.Query.Limit <= 0 {
		errs = append(errs, fmt.Errorf("query.limit must be positive, got %d", c.Query.Limit))
	}
	if c.Store.Path == "" {
		errs = append(errs, errors.New("store.path is empty"))
	}
	return errors.Join(errs...)
}

// Load reads configuration from file and environment. An empty path skips
// the file and uses defaults plus LOGSIFT_* environment overrides. A .env
// file in the working directory is loaded first; it never overrides
// variables already set.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("LOGSIFT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if err := cfg.Check(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	// Validate configuration and print warnings
	if warnings := cfg.Validate(); len(warnings) > 0 {
		for _, warning := range warnings {
			fmt.Fprintf(os.Stderr, "Warning: %s\n", warning)
		}
	}

	return &cfg, nil
}

// NewLogger builds a slog logger writing to w at the configured level and
// format ("text" or "json").
func (l LogConfig) NewLogger(w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(l.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.ToLower(l.Format) == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
