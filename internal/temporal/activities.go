package temporal

import (
	"context"
	"errors"
	"fmt"

	"go.temporal.io/sdk/activity"

	"github.com/efebarandurmaz/logsift/internal/export"
	"github.com/efebarandurmaz/logsift/internal/metrics"
	"github.com/efebarandurmaz/logsift/internal/pipeline"
)

// Rebuilder is the part of the pipeline the activities drive.
type Rebuilder interface {
	Run(ctx context.Context, paths []string) (*metrics.RebuildReport, error)
	Reindex(ctx context.Context) (*metrics.RebuildReport, error)
	Verify(ctx context.Context) (pipeline.Verification, error)
}

// RebuildRecorder observes finished rebuilds.
type RebuildRecorder interface {
	RecordRebuild(mode string, r *metrics.RebuildReport, err error)
}

// Dependencies holds shared resources injected into activities. Metrics is
// optional.
type Dependencies struct {
	Pipeline  Rebuilder
	Extension string // document extension used with RebuildInput.Dir
	Metrics   RebuildRecorder
}

var deps *Dependencies

// SetDependencies injects shared resources (called during worker setup).
func SetDependencies(d *Dependencies) {
	deps = d
}

var errNoDependencies = errors.New("temporal: activity dependencies not set")

// VerifyResult is the serializable summary of a verification.
type VerifyResult struct {
	OK      bool
	Commits int
	Points  int
	Missing int
	Orphans int
}

func RebuildActivity(ctx context.Context, input RebuildInput) (RebuildOutput, error) {
	if deps == nil {
		return RebuildOutput{}, errNoDependencies
	}
	paths := append([]string(nil), input.Paths...)
	if input.Dir != "" {
		found, err := export.Discover(input.Dir, deps.Extension)
		if err != nil {
			return RebuildOutput{}, err
		}
		paths = append(paths, found...)
	}
	if len(paths) == 0 {
		return RebuildOutput{}, fmt.Errorf("no export documents in %v or %q", input.Paths, input.Dir)
	}

	activity.GetLogger(ctx).Info("rebuild started", "documents", len(paths))
	report, err := deps.Pipeline.Run(ctx, paths)
	record("ingest", report, err)
	if err != nil {
		return RebuildOutput{}, err
	}
	return outputFrom(report), nil
}

func ReindexActivity(ctx context.Context) (RebuildOutput, error) {
	if deps == nil {
		return RebuildOutput{}, errNoDependencies
	}
	activity.GetLogger(ctx).Info("reindex started")
	report, err := deps.Pipeline.Reindex(ctx)
	record("reindex", report, err)
	if err != nil {
		return RebuildOutput{}, err
	}
	return outputFrom(report), nil
}

func VerifyActivity(ctx context.Context) (VerifyResult, error) {
	if deps == nil {
		return VerifyResult{}, errNoDependencies
	}
	v, err := deps.Pipeline.Verify(ctx)
	if err != nil {
		return VerifyResult{}, err
	}
	return VerifyResult{
		OK:      v.OK(),
		Commits: v.Commits,
		Points:  v.Points,
		Missing: len(v.Missing),
		Orphans: len(v.Orphans),
	}, nil
}

func record(mode string, r *metrics.RebuildReport, err error) {
	if deps.Metrics != nil {
		deps.Metrics.RecordRebuild(mode, r, err)
	}
}

func outputFrom(r *metrics.RebuildReport) RebuildOutput {
	return RebuildOutput{
		Mode:         r.Mode,
		Documents:    len(r.Documents),
		Commits:      r.Commits,
		Repositories: r.Repositories,
		Points:       r.Points,
		Duration:     r.Duration,
	}
}
