// Package app wires configured components into a ready pipeline and query
// service. Both binaries build their runtime through it.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/efebarandurmaz/logsift/internal/commit"
	"github.com/efebarandurmaz/logsift/internal/config"
	"github.com/efebarandurmaz/logsift/internal/embedding"
	"github.com/efebarandurmaz/logsift/internal/export"
	"github.com/efebarandurmaz/logsift/internal/graph"
	"github.com/efebarandurmaz/logsift/internal/graph/neo4j"
	"github.com/efebarandurmaz/logsift/internal/notify"
	"github.com/efebarandurmaz/logsift/internal/observability"
	"github.com/efebarandurmaz/logsift/internal/pipeline"
	"github.com/efebarandurmaz/logsift/internal/query"
	"github.com/efebarandurmaz/logsift/internal/secrets"
	"github.com/efebarandurmaz/logsift/internal/segment"
	"github.com/efebarandurmaz/logsift/internal/store"
	"github.com/efebarandurmaz/logsift/internal/vector"
	"github.com/efebarandurmaz/logsift/internal/vector/memory"
	"github.com/efebarandurmaz/logsift/internal/vector/qdrant"
)

// Version is stamped at build time with -ldflags.
var Version = "0.1.0"

// App holds every long-lived component.
type App struct {
	Config    *config.Config
	Logger    *slog.Logger
	Generator *embedding.Generator
	Backend   vector.Backend
	Index     *vector.Manager
	Store     *store.Store
	Graph     graph.Projector
	Publisher *notify.Publisher
	Pipeline  *pipeline.Pipeline
	Query     *query.Service
	Tracing   *observability.TracerProvider
}

// New builds an App from cfg. Optional components (graph, notify, tracing)
// are only connected when configured. On error everything opened so far is
// closed.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *App, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, Logger: logger}
	defer func() {
		if err != nil {
			_ = a.Close(context.Background())
		}
	}()

	a.Tracing, err = observability.InitTracing(ctx, observability.TracingConfig{
		ServiceName:    "logsift",
		ServiceVersion: Version,
		Environment:    cfg.Tracing.Environment,
		OTLPEndpoint:   cfg.Tracing.Endpoint,
		SampleRate:     cfg.Tracing.SampleRate,
	})
	if err != nil {
		return nil, fmt.Errorf("tracing: %w", err)
	}

	granularity, err := commit.ParseGranularity(cfg.Segment.Granularity)
	if err != nil {
		return nil, err
	}
	metric, err := vector.ParseMetric(cfg.Vector.Metric)
	if err != nil {
		return nil, err
	}
	seg, err := segment.NewFromName(cfg.Segment.Detector)
	if err != nil {
		return nil, err
	}

	sm, err := NewSecrets(cfg.Secrets)
	if err != nil {
		return nil, err
	}
	apiKey, err := sm.Resolve(ctx, cfg.Embedding.APIKey)
	if err != nil {
		return nil, fmt.Errorf("embedding.api_key: %w", err)
	}

	enc, err := embedding.NewFromConfig(embedding.ProviderConfig{
		Provider:  cfg.Embedding.Provider,
		BaseURL:   cfg.Embedding.BaseURL,
		Model:     cfg.Embedding.Model,
		APIKey:    apiKey,
		Dimension: cfg.Vector.Dimension,
		Timeout:   cfg.Embedding.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("embedding: %w", err)
	}
	a.Generator = embedding.NewGenerator(enc, embedding.Options{
		Dimension:         cfg.Vector.Dimension,
		BatchSize:         cfg.Embedding.BatchSize,
		Concurrency:       cfg.Embedding.Concurrency,
		RequestsPerSecond: cfg.Embedding.RequestsPerSecond,
		Logger:            logger,
	})

	a.Backend, err = NewBackend(cfg.Vector)
	if err != nil {
		return nil, err
	}
	a.Index = vector.NewManager(a.Backend, logger)

	a.Store, err = store.Open(ctx, cfg.Store.Path, logger)
	if err != nil {
		return nil, err
	}

	deps := pipeline.Deps{
		Loader:    export.Loader{UnknownRepository: cfg.Ingest.UnknownRepository},
		Segmenter: seg,
		Generator: a.Generator,
		Index:     a.Index,
		Store:     a.Store,
		Logger:    logger,
	}

	if cfg.Graph.URI != "" {
		password, err := sm.Resolve(ctx, cfg.Graph.Password)
		if err != nil {
			return nil, fmt.Errorf("graph.password: %w", err)
		}
		p, err := neo4j.New(ctx, cfg.Graph.URI, cfg.Graph.Username, password)
		if err != nil {
			return nil, fmt.Errorf("graph: %w", err)
		}
		a.Graph = p
		deps.Graph = p
	}

	if cfg.Notify.NATSURL != "" {
		a.Publisher, err = notify.Connect(cfg.Notify.NATSURL, cfg.Notify.Subject)
		if err != nil {
			return nil, err
		}
		deps.Publisher = a.Publisher
	}

	a.Pipeline = pipeline.New(deps, pipeline.Options{
		Collection:  cfg.Vector.Collection,
		Dimension:   cfg.Vector.Dimension,
		Metric:      metric,
		BatchSize:   cfg.Vector.BatchSize,
		Granularity: granularity,
	})
	a.Query = query.NewService(a.Generator, a.Index, cfg.Vector.Collection, cfg.Query.Limit)

	logger.Debug("components wired",
		"embedding", a.Generator.Name(),
		"vector_backend", cfg.Vector.Backend,
		"store", cfg.Store.Path,
		"graph", cfg.Graph.URI != "",
		"notify", cfg.Notify.NATSURL != "")
	return a, nil
}

// NewSecrets returns the resolver for credential references. The vault:
// scheme is only served when a Vault address is configured.
func NewSecrets(cfg config.SecretsConfig) (*secrets.Manager, error) {
	if cfg.VaultAddress == "" {
		return secrets.NewManager(), nil
	}
	vp, err := secrets.NewVaultProvider(secrets.VaultConfig{
		Address:    cfg.VaultAddress,
		Token:      cfg.VaultToken,
		Namespace:  cfg.VaultNamespace,
		MountPath:  cfg.VaultMount,
		SecretPath: cfg.VaultPath,
		Timeout:    cfg.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("secrets: %w", err)
	}
	return secrets.NewManager(vp), nil
}

// NewBackend connects the configured vector backend.
func NewBackend(cfg config.VectorConfig) (vector.Backend, error) {
	switch cfg.Backend {
	case "memory":
		return memory.New(), nil
	case "", "qdrant":
		b, err := qdrant.New(cfg.Host, cfg.Port, cfg.Timeout)
		if err != nil {
			return nil, fmt.Errorf("qdrant %s:%d: %w", cfg.Host, cfg.Port, err)
		}
		return b, nil
	default:
		return nil, fmt.Errorf("unknown vector backend %q", cfg.Backend)
	}
}

// Close releases every component in reverse order of creation.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Publisher != nil {
		a.Publisher.Close()
	}
	if a.Graph != nil {
		errs = append(errs, a.Graph.Close(ctx))
	}
	if a.Store != nil {
		errs = append(errs, a.Store.Close())
	}
	if a.Backend != nil {
		errs = append(errs, a.Backend.Close())
	}
	if a.Tracing != nil {
		errs = append(errs, a.Tracing.Shutdown(ctx))
	}
	return errors.Join(errs...)
}
