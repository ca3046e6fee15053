package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"
)

// ShutdownHook is a function called during shutdown. Lower priorities run
// first; hooks sharing a priority run concurrently.
type ShutdownHook struct {
	Name     string
	Priority int
	Fn       func(ctx context.Context) error
}

// ShutdownConfig configures the shutdown handler.
type ShutdownConfig struct {
	// Timeout bounds all hooks together (default: 30s).
	Timeout time.Duration
	// Signals that start shutdown (default: SIGTERM, SIGINT).
	Signals []os.Signal
	Logger  *slog.Logger
}

// DefaultShutdownConfig returns default configuration.
func DefaultShutdownConfig() *ShutdownConfig {
	return &ShutdownConfig{
		Timeout: 30 * time.Second,
		Signals: []os.Signal{syscall.SIGTERM, syscall.SIGINT},
	}
}

// ShutdownHandler runs registered hooks once a signal arrives or Shutdown is
// called.
type ShutdownHandler struct {
	timeout time.Duration
	signals []os.Signal
	logger  *slog.Logger

	// stopping is cancelled when shutdown begins.
	stopping context.Context
	stop     context.CancelFunc
	done     chan struct{}

	mu      sync.Mutex
	hooks   []ShutdownHook
	started bool
	err     error
}

// NewShutdownHandler creates a new shutdown handler.
func NewShutdownHandler(config *ShutdownConfig) *ShutdownHandler {
	def := DefaultShutdownConfig()
	if config == nil {
		config = def
	}
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = def.Timeout
	}
	signals := config.Signals
	if len(signals) == 0 {
		signals = def.Signals
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	stopping, stop := context.WithCancel(context.Background())
	return &ShutdownHandler{
		timeout:  timeout,
		signals:  signals,
		logger:   logger,
		stopping: stopping,
		stop:     stop,
		done:     make(chan struct{}),
	}
}

// RegisterHook adds a shutdown hook.
func (s *ShutdownHandler) RegisterHook(name string, priority int, fn func(ctx context.Context) error) {
	s.Add(ShutdownHook{Name: name, Priority: priority, Fn: fn})
}

// Add registers a prepared hook.
func (s *ShutdownHandler) Add(h ShutdownHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, h)
}

// Start begins listening for shutdown signals. Later calls do nothing.
func (s *ShutdownHandler) Start() {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	sigCtx, stopSignals := signal.NotifyContext(s.stopping, s.signals...)
	go func() {
		<-sigCtx.Done()
		stopSignals()
		if s.stopping.Err() == nil {
			s.logger.Info("shutdown signal received")
			s.stop()
		}
		s.run()
	}()
}

// Shutdown triggers a manual shutdown. It is a no-op before Start.
func (s *ShutdownHandler) Shutdown() {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	if started {
		s.stop()
	}
}

// Wait blocks until every hook has returned.
func (s *ShutdownHandler) Wait() {
	<-s.done
}

// WaitWithTimeout reports whether shutdown completed within timeout.
func (s *ShutdownHandler) WaitWithTimeout(timeout time.Duration) bool {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-s.done:
		return true
	case <-t.C:
		return false
	}
}

// Done returns a channel that closes when shutdown is complete.
func (s *ShutdownHandler) Done() <-chan struct{} {
	return s.done
}

// ShutdownCh returns a channel that closes when shutdown starts.
func (s *ShutdownHandler) ShutdownCh() <-chan struct{} {
	return s.stopping.Done()
}

// Err returns the joined hook errors once shutdown is complete.
func (s *ShutdownHandler) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// groups splits hooks into runs of equal priority, ascending.
func groups(hooks []ShutdownHook) [][]ShutdownHook {
	sorted := make([]ShutdownHook, len(hooks))
	copy(sorted, hooks)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Priority < sorted[j].Priority })

	var out [][]ShutdownHook
	for i, h := range sorted {
		if i == 0 || h.Priority != sorted[i-1].Priority {
			out = append(out, nil)
		}
		out[len(out)-1] = append(out[len(out)-1], h)
	}
	return out
}

func (s *ShutdownHandler) run() {
	defer close(s.done)

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	s.mu.Lock()
	plan := groups(s.hooks)
	n := len(s.hooks)
	s.mu.Unlock()

	var (
		errMu sync.Mutex
		errs  []error
	)
	for _, group := range plan {
		var wg sync.WaitGroup
		for _, hook := range group {
			wg.Add(1)
			go func() {
				defer wg.Done()
				start := time.Now()
				if err := hook.Fn(ctx); err != nil {
					s.logger.Warn("shutdown hook failed", "hook", hook.Name, "error", err)
					errMu.Lock()
					errs = append(errs, fmt.Errorf("%s: %w", hook.Name, err))
					errMu.Unlock()
					return
				}
				s.logger.Debug("shutdown hook done", "hook", hook.Name, "elapsed", time.Since(start))
			}()
		}
		wg.Wait()
	}

	s.mu.Lock()
	s.err = errors.Join(errs...)
	s.mu.Unlock()
	s.logger.Info("shutdown complete", "hooks", n, "failed", len(errs))
}

// Common shutdown hooks

// HTTPServerShutdownHook stops accepting requests first.
func HTTPServerShutdownHook(name string, shutdownFn func(ctx context.Context) error) ShutdownHook {
	return ShutdownHook{Name: name, Priority: 10, Fn: shutdownFn}
}

// TemporalWorkerShutdownHook stops the worker once HTTP is closed; a
// running rebuild activity is allowed to finish.
func TemporalWorkerShutdownHook(stopFn func()) ShutdownHook {
	return ShutdownHook{
		Name:     "temporal-worker",
		Priority: 20,
		Fn: func(ctx context.Context) error {
			stopFn()
			return nil
		},
	}
}

// ComponentsShutdownHook closes the store, the index connection, the
// optional graph and event connections, and the tracer.
func ComponentsShutdownHook(closeFn func(ctx context.Context) error) ShutdownHook {
	return ShutdownHook{Name: "components", Priority: 90, Fn: closeFn}
}

// GracefulServer combines health checks with shutdown handling.
type GracefulServer struct {
	Health   *HealthServer
	Shutdown *ShutdownHandler
}

// NewGracefulServer creates a server with health checks and graceful shutdown.
func NewGracefulServer(healthConfig *HealthConfig, shutdownConfig *ShutdownConfig) *GracefulServer {
	health := NewHealthServer(healthConfig)
	shutdown := NewShutdownHandler(shutdownConfig)

	shutdown.Add(HTTPServerShutdownHook("http-server", health.Shutdown))

	go func() {
		<-shutdown.ShutdownCh()
		health.SetReady(false)
	}()

	return &GracefulServer{Health: health, Shutdown: shutdown}
}

// Start serves HTTP in the background, listens for signals and marks the
// server ready.
func (g *GracefulServer) Start(addr string) {
	g.Shutdown.Start()

	go func() {
		if err := g.Health.ListenAndServe(addr); err != nil {
			g.Health.logger.Error("http server failed", "addr", addr, "error", err)
			g.Shutdown.Shutdown()
		}
	}()

	g.Health.SetReady(true)
}

// Wait waits for shutdown to complete.
func (g *GracefulServer) Wait() {
	g.Shutdown.Wait()
}

// RegisterHook adds a shutdown hook.
func (g *GracefulServer) RegisterHook(name string, priority int, fn func(ctx context.Context) error) {
	g.Shutdown.RegisterHook(name, priority, fn)
}
