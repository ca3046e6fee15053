package main

import (
	"context"
	"log"
	"log/slog"
	"os"

	temporalclient "go.temporal.io/sdk/client"
	temporallog "go.temporal.io/sdk/log"

	"github.com/efebarandurmaz/logsift/internal/app"
	"github.com/efebarandurmaz/logsift/internal/config"
	"github.com/efebarandurmaz/logsift/internal/observability"
	"github.com/efebarandurmaz/logsift/internal/server"
	temporalmod "github.com/efebarandurmaz/logsift/internal/temporal"
)

func main() {
	configPath := ""
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := cfg.Log.NewLogger(os.Stderr)
	slog.SetDefault(logger)

	ctx := context.Background()
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("wiring components: %v", err)
	}

	m := observability.NewMetrics()
	temporalmod.SetDependencies(&temporalmod.Dependencies{
		Pipeline:  a.Pipeline,
		Extension: cfg.Ingest.Extension,
		Metrics:   m,
	})

	c, err := temporalclient.Dial(temporalclient.Options{
		HostPort:  cfg.Temporal.Host,
		Namespace: cfg.Temporal.Namespace,
		Logger:    temporallog.NewStructuredLogger(logger),
	})
	if err != nil {
		a.Close(ctx)
		log.Fatalf("temporal client: %v", err)
	}

	w, err := temporalmod.StartWorker(c, cfg.Temporal.TaskQueue)
	if err != nil {
		c.Close()
		a.Close(ctx)
		log.Fatalf("worker: %v", err)
	}

	gs := server.NewGracefulServer(
		&server.HealthConfig{Version: app.Version, Logger: logger},
		&server.ShutdownConfig{Logger: logger},
	)
	gs.Health.RegisterCheck("store", server.StoreHealthChecker(a.Store.Path(), a.Store.Ping))
	gs.Health.RegisterCheck("index", server.IndexHealthChecker(cfg.Vector.Collection, a.Index.Count))
	gs.Health.RegisterCheck("embedding", server.EmbeddingHealthChecker(a.Generator.Name(), func(ctx context.Context) error {
		_, err := a.Generator.EncodeOne(ctx, "health probe")
		return err
	}))
	gs.Health.RegisterCheck("temporal", server.PingChecker("temporal", func(ctx context.Context) error {
		_, err := c.CheckHealth(ctx, &temporalclient.CheckHealthRequest{})
		return err
	}))
	gs.Health.Handle("/metrics", m.Handler())
	gs.Health.Handle("/search", server.SearchHandler(a.Query, m, logger))

	for _, h := range workerHooks(w.Stop, c.Close, a.Close) {
		gs.Shutdown.Add(h)
	}

	gs.Start(cfg.Server.Addr)
	logger.Info("worker started", "task_queue", cfg.Temporal.TaskQueue, "addr", cfg.Server.Addr,
		"collection", cfg.Vector.Collection, "embedding", a.Generator.Name())

	gs.Wait()
	logger.Info("worker stopped")
}

// workerHooks stops the worker, then the Temporal client, then the
// components. App.Close flushes tracing last.
func workerHooks(stopWorker, closeClient func(), closeApp func(context.Context) error) []server.ShutdownHook {
	return []server.ShutdownHook{
		server.TemporalWorkerShutdownHook(stopWorker),
		{Name: "temporal-client", Priority: 30, Fn: func(context.Context) error {
			closeClient()
			return nil
		}},
		server.ComponentsShutdownHook(closeApp),
	}
}
