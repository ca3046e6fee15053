package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/efebarandurmaz/logsift/internal/metrics"
)

// Metrics holds the process metrics exported on /metrics.
type Metrics struct {
	Registry *prometheus.Registry

	// Rebuild metrics
	RebuildsTotal   *prometheus.CounterVec
	RebuildDuration *prometheus.HistogramVec
	StageDuration   *prometheus.HistogramVec
	CommitsRead     prometheus.Counter
	PointsIndexed   prometheus.Counter

	// State after the last successful rebuild
	Repositories prometheus.Gauge
	Points       prometheus.Gauge
	LastRebuild  prometheus.Gauge

	// Query metrics
	QueriesTotal  *prometheus.CounterVec
	QueryDuration prometheus.Histogram
}

// NewMetrics creates logsift metrics on a private registry, together with
// the Go runtime and process collectors.
func NewMetrics() *Metrics {
	r := prometheus.NewRegistry()
	m := &Metrics{
		Registry: r,

		RebuildsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "logsift_rebuilds_total",
			Help: "Total rebuilds by mode and outcome.",
		}, []string{"mode", "status"}),
		RebuildDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "logsift_rebuild_duration_seconds",
			Help:    "Rebuild duration.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}, []string{"mode"}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "logsift_stage_duration_seconds",
			Help:    "Accumulated duration of each rebuild stage.",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
		}, []string{"stage"}),
		CommitsRead: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "logsift_commits_read_total",
			Help: "Commit records read from export documents.",
		}),
		PointsIndexed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "logsift_points_indexed_total",
			Help: "Points written to the vector index.",
		}),

		Repositories: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "logsift_repositories",
			Help: "Repositories in the relational store after the last rebuild.",
		}),
		Points: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "logsift_points",
			Help: "Points in the collection after the last rebuild.",
		}),
		LastRebuild: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "logsift_last_rebuild_timestamp_seconds",
			Help: "Unix time of the last successful rebuild.",
		}),

		QueriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "logsift_queries_total",
			Help: "Search queries by result (found, empty, error).",
		}, []string{"result"}),
		QueryDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "logsift_query_duration_seconds",
			Help:    "Search latency including the query embedding.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	r.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.RebuildsTotal, m.RebuildDuration, m.StageDuration, m.CommitsRead, m.PointsIndexed,
		m.Repositories, m.Points, m.LastRebuild,
		m.QueriesTotal, m.QueryDuration,
	)
	return m
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

// RecordRebuild folds a finished rebuild into the metrics. A nil report is
// counted as a failed run.
func (m *Metrics) RecordRebuild(mode string, r *metrics.RebuildReport, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.RebuildsTotal.WithLabelValues(mode, status).Inc()
	if r == nil {
		return
	}
	m.RebuildDuration.WithLabelValues(mode).Observe(r.Duration.Seconds())
	for _, s := range r.Stages {
		m.StageDuration.WithLabelValues(s.Name).Observe(s.Duration.Seconds())
	}
	m.CommitsRead.Add(float64(r.Commits))
	m.PointsIndexed.Add(float64(r.Points))
	if err == nil {
		m.Repositories.Set(float64(r.Repositories))
		m.Points.Set(float64(r.Points))
		m.LastRebuild.Set(float64(r.FinishedAt.Unix()))
	}
}

// RecordQuery records one search.
func (m *Metrics) RecordQuery(d time.Duration, found bool, err error) {
	result := "found"
	switch {
	case err != nil:
		result = "error"
	case !found:
		result = "empty"
	}
	m.QueriesTotal.WithLabelValues(result).Inc()
	m.QueryDuration.Observe(d.Seconds())
}
