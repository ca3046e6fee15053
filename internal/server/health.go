// Package server hosts the worker's HTTP surface: health probes, metrics
// and a search endpoint.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// HealthStatus is the state of one component or of the whole worker.
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// rank orders statuses from best to worst.
func (st HealthStatus) rank() int {
	switch st {
	case HealthStatusHealthy:
		return 0
	case HealthStatusDegraded:
		return 1
	default:
		return 2
	}
}

// HealthCheck is the outcome of checking one component.
type HealthCheck struct {
	Name      string            `json:"name"`
	Status    HealthStatus      `json:"status"`
	Message   string            `json:"message,omitempty"`
	Details   map[string]string `json:"details,omitempty"`
	ElapsedMS int64             `json:"elapsed_ms"`
}

// HealthResponse is the body of every probe endpoint.
type HealthResponse struct {
	Status    HealthStatus  `json:"status"`
	Timestamp time.Time     `json:"timestamp"`
	Version   string        `json:"version,omitempty"`
	Checks    []HealthCheck `json:"checks,omitempty"`
}

// HealthChecker inspects one component. It should return once ctx is done.
type HealthChecker func(ctx context.Context) HealthCheck

// HealthServer serves health probes and any extra handlers mounted on it.
type HealthServer struct {
	version      string
	checkTimeout time.Duration
	logger       *slog.Logger
	mux          *http.ServeMux

	mu     sync.RWMutex
	checks map[string]HealthChecker
	ready  bool
	live   bool
	srv    *http.Server
	closed bool
}

// HealthConfig configures the health server.
type HealthConfig struct {
	Version string
	// CheckTimeout bounds one /health evaluation (default 5s).
	CheckTimeout time.Duration
	Logger       *slog.Logger
}

// NewHealthServer creates a health server that is live but not yet ready.
func NewHealthServer(config *HealthConfig) *HealthServer {
	var cfg HealthConfig
	if config != nil {
		cfg = *config
	}
	if cfg.CheckTimeout <= 0 {
		cfg.CheckTimeout = 5 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &HealthServer{
		version:      cfg.Version,
		checkTimeout: cfg.CheckTimeout,
		logger:       cfg.Logger,
		mux:          http.NewServeMux(),
		checks:       make(map[string]HealthChecker),
		live:         true,
	}
	routes := map[string]http.HandlerFunc{
		"/health": s.handleHealth, "/healthz": s.handleHealth,
		"/ready": s.handleReady, "/readyz": s.handleReady,
		"/live": s.handleLive, "/livez": s.handleLive,
	}
	for pattern, h := range routes {
		s.mux.HandleFunc(pattern, h)
	}
	return s
}

// RegisterCheck adds or replaces the check reported under name.
func (s *HealthServer) RegisterCheck(name string, checker HealthChecker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checks[name] = checker
}

// Handle mounts an extra handler, e.g. /metrics or /search.
func (s *HealthServer) Handle(pattern string, h http.Handler) {
	s.mux.Handle(pattern, h)
}

// SetReady marks the server as ready to accept traffic.
func (s *HealthServer) SetReady(ready bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ready = ready
}

// SetLive marks the process as live (or not).
func (s *HealthServer) SetLive(live bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.live = live
}

// Handler returns the traced HTTP handler for every mounted route.
func (s *HealthServer) Handler() http.Handler {
	return otelhttp.NewHandler(s.mux, "logsift-worker")
}

// ListenAndServe serves until Shutdown is called. It returns nil after a
// clean shutdown, including one that happened before it was called.
func (s *HealthServer) ListenAndServe(addr string) error {
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.srv = srv
	s.mu.Unlock()

	s.logger.Info("http server listening", "addr", addr)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests
// until ctx is done. Later calls return nil.
func (s *HealthServer) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.srv
	s.srv = nil
	s.closed = true
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// Evaluate runs every check concurrently under the check timeout. Checks
// that do not answer in time are reported unhealthy.
func (s *HealthServer) Evaluate(ctx context.Context) HealthResponse {
	ctx, cancel := context.WithTimeout(ctx, s.checkTimeout)
	defer cancel()

	s.mu.RLock()
	names := make([]string, 0, len(s.checks))
	checkers := make([]HealthChecker, 0, len(s.checks))
	for name, c := range s.checks {
		names = append(names, name)
		checkers = append(checkers, c)
	}
	s.mu.RUnlock()

	results := make([]HealthCheck, len(names))
	var wg sync.WaitGroup
	for i := range names {
		wg.Add(1)
		go func() {
			defer wg.Done()
			start := time.Now()
			done := make(chan HealthCheck, 1)
			go func() { done <- checkers[i](ctx) }()

			var c HealthCheck
			select {
			case c = <-done:
			case <-ctx.Done():
				c = HealthCheck{Status: HealthStatusUnhealthy, Message: "check timed out"}
			}
			c.Name = names[i]
			c.ElapsedMS = time.Since(start).Milliseconds()
			results[i] = c
		}()
	}
	wg.Wait()

	sort.Slice(results, func(a, b int) bool { return results[a].Name < results[b].Name })
	resp := HealthResponse{
		Status:    HealthStatusHealthy,
		Timestamp: time.Now().UTC(),
		Version:   s.version,
		Checks:    results,
	}
	for _, c := range results {
		if c.Status.rank() > resp.Status.rank() {
			resp.Status = c.Status
		}
	}
	return resp
}

func (s *HealthServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := s.Evaluate(r.Context())
	code := http.StatusOK
	if resp.Status == HealthStatusUnhealthy {
		code = http.StatusServiceUnavailable
		s.logger.Warn("health check failed", "checks", resp.Checks)
	}
	writeJSON(w, code, resp)
}

func (s *HealthServer) handleReady(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	ready := s.ready
	s.mu.RUnlock()
	writeProbe(w, ready)
}

func (s *HealthServer) handleLive(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	live := s.live
	s.mu.RUnlock()
	writeProbe(w, live)
}

func writeProbe(w http.ResponseWriter, ok bool) {
	resp := HealthResponse{Status: HealthStatusHealthy, Timestamp: time.Now().UTC()}
	code := http.StatusOK
	if !ok {
		resp.Status = HealthStatusUnhealthy
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// Component checkers

// PingChecker reports a component as unhealthy when ping fails.
func PingChecker(component string, ping func(ctx context.Context) error) HealthChecker {
	return func(ctx context.Context) HealthCheck {
		if err := ping(ctx); err != nil {
			return HealthCheck{
				Status:  HealthStatusUnhealthy,
				Message: component + " unreachable: " + err.Error(),
			}
		}
		return HealthCheck{Status: HealthStatusHealthy, Message: component + " OK"}
	}
}

// StoreHealthChecker checks the relational store.
func StoreHealthChecker(path string, ping func(ctx context.Context) error) HealthChecker {
	check := PingChecker("store", ping)
	return func(ctx context.Context) HealthCheck {
		c := check(ctx)
		c.Details = map[string]string{"path": path}
		return c
	}
}

// IndexHealthChecker checks that the collection can be counted. A missing
// collection is degraded rather than unhealthy: the worker can still
// build it.
func IndexHealthChecker(collection string, count func(ctx context.Context, name string) (int, error)) HealthChecker {
	return func(ctx context.Context) HealthCheck {
		details := map[string]string{"collection": collection}
		n, err := count(ctx, collection)
		if err != nil {
			return HealthCheck{
				Status:  HealthStatusDegraded,
				Message: "collection not queryable: " + err.Error(),
				Details: details,
			}
		}
		details["points"] = itoa(n)
		if n == 0 {
			return HealthCheck{Status: HealthStatusDegraded, Message: "collection is empty", Details: details}
		}
		return HealthCheck{Status: HealthStatusHealthy, Message: "index OK", Details: details}
	}
}

// EmbeddingHealthChecker probes the embedding model. Failures degrade the
// worker because searches fail but stored data is unaffected.
func EmbeddingHealthChecker(model string, probe func(ctx context.Context) error) HealthChecker {
	return func(ctx context.Context) HealthCheck {
		details := map[string]string{"model": model}
		if probe == nil {
			return HealthCheck{Status: HealthStatusHealthy, Message: "embedding model configured", Details: details}
		}
		if err := probe(ctx); err != nil {
			return HealthCheck{Status: HealthStatusDegraded, Message: "embedding model degraded: " + err.Error(), Details: details}
		}
		return HealthCheck{Status: HealthStatusHealthy, Message: "embedding model OK", Details: details}
	}
}
