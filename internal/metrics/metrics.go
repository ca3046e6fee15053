// Package metrics summarises a rebuild of the relational store and the
// vector index.
package metrics

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// RebuildReport collects statistics for one full rebuild.
type RebuildReport struct {
	StartedAt   time.Time     `json:"started_at"`
	FinishedAt  time.Time     `json:"finished_at,omitempty"`
	Duration    time.Duration `json:"duration_ms,omitempty"`
	Mode        string        `json:"mode"` // "ingest" or "reindex"
	Model       string        `json:"model"`
	Collection  string        `json:"collection"`
	Granularity string        `json:"granularity"`
	Dimension   int           `json:"dimension"`

	Documents    []DocumentStats `json:"documents,omitempty"`
	Commits      int             `json:"commits"`       // records read
	CommitsAdded int             `json:"commits_added"` // new relational rows
	Repositories int             `json:"repositories"`
	Units        int             `json:"units"`
	Points       int             `json:"points"` // committed to the index
	TextBytes    int             `json:"text_bytes"`

	Stages []StageStats `json:"stages"`
	Errors []string     `json:"errors,omitempty"`
}

// DocumentStats describes one ingested export document.
type DocumentStats struct {
	Path       string `json:"path"`
	Repository string `json:"repository"`
	Commits    int    `json:"commits"`
	Added      int    `json:"added"`
	Units      int    `json:"units"`
}

// StageStats records the timing of one pipeline stage.
type StageStats struct {
	Name     string        `json:"name"`
	Duration time.Duration `json:"duration_ms"`
	Items    int           `json:"items"`
	Failed   bool          `json:"failed,omitempty"`
}

// New starts tracking a rebuild.
func New(mode string) *RebuildReport {
	return &RebuildReport{StartedAt: time.Now(), Mode: mode}
}

// AddDocument records a document and folds its counts into the totals.
func (r *RebuildReport) AddDocument(d DocumentStats) {
	r.Documents = append(r.Documents, d)
	r.Commits += d.Commits
	r.CommitsAdded += d.Added
	r.Units += d.Units
}

// AddStage records a single stage's timing and outcome.
func (r *RebuildReport) AddStage(name string, d time.Duration, items int, err error) {
	r.Stages = append(r.Stages, StageStats{Name: name, Duration: d, Items: items, Failed: err != nil})
}

// Stage times fn and records it under name.
func (r *RebuildReport) Stage(name string, fn func() (int, error)) error {
	start := time.Now()
	items, err := fn()
	r.AddStage(name, time.Since(start), items, err)
	return err
}

// Finish marks the rebuild as complete.
func (r *RebuildReport) Finish(err error) {
	r.FinishedAt = time.Now()
	r.Duration = r.FinishedAt.Sub(r.StartedAt)
	if err != nil {
		r.Errors = append(r.Errors, err.Error())
	}
}

// OK reports whether the rebuild finished without errors.
func (r *RebuildReport) OK() bool { return len(r.Errors) == 0 }

// PrintSummary writes a human-readable summary.
func (r *RebuildReport) PrintSummary(w io.Writer) {
	fmt.Fprintf(w, "\n╔══════════════════════════════════════╗\n")
	fmt.Fprintf(w, "║        LOGSIFT REBUILD REPORT        ║\n")
	fmt.Fprintf(w, "╠══════════════════════════════════════╣\n")
	fmt.Fprintf(w, "║ Mode:        %-24s║\n", r.Mode)
	fmt.Fprintf(w, "║ Duration:    %-24s║\n", r.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "║ Model:       %-24s║\n", r.Model)
	fmt.Fprintf(w, "║ Collection:  %-24s║\n", fmt.Sprintf("%s (%d)", r.Collection, r.Dimension))
	fmt.Fprintf(w, "║ Granularity: %-24s║\n", r.Granularity)
	fmt.Fprintf(w, "╠══════════════════════════════════════╣\n")
	fmt.Fprintf(w, "║ DOCUMENTS (%d)\n", len(r.Documents))
	for _, d := range r.Documents {
		fmt.Fprintf(w, "║   %-30s %d commits, %d new\n", d.Repository, d.Commits, d.Added)
	}
	fmt.Fprintf(w, "╠══════════════════════════════════════╣\n")
	fmt.Fprintf(w, "║ TOTALS\n")
	fmt.Fprintf(w, "║   Repositories: %d\n", r.Repositories)
	fmt.Fprintf(w, "║   Commits:      %d read, %d new\n", r.Commits, r.CommitsAdded)
	fmt.Fprintf(w, "║   Text units:   %d (%s)\n", r.Units, formatBytes(r.TextBytes))
	fmt.Fprintf(w, "║   Points:       %d\n", r.Points)
	fmt.Fprintf(w, "╠══════════════════════════════════════╣\n")
	fmt.Fprintf(w, "║ STAGES\n")
	for _, s := range r.Stages {
		status := "OK"
		if s.Failed {
			status = "FAILED"
		}
		fmt.Fprintf(w, "║   %-10s %8s  %6d items  %s\n", s.Name, s.Duration.Round(time.Millisecond), s.Items, status)
	}
	if len(r.Errors) > 0 {
		fmt.Fprintf(w, "╠══════════════════════════════════════╣\n")
		fmt.Fprintf(w, "║ ERRORS\n")
		for _, e := range r.Errors {
			fmt.Fprintf(w, "║   • %s\n", e)
		}
	}
	fmt.Fprintf(w, "╚══════════════════════════════════════╝\n")
}

// JSON returns the report as formatted JSON.
func (r *RebuildReport) JSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

func formatBytes(b int) string {
	switch {
	case b >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(b)/float64(1<<20))
	case b >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(b)/float64(1<<10))
	default:
		return fmt.Sprintf("%d B", b)
	}
}
