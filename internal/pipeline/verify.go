package pipeline

import (
	"context"
	"fmt"

	"github.com/efebarandurmaz/logsift/internal/commit"
	"github.com/efebarandurmaz/logsift/internal/observability"
)

// Verification compares the vector index against the relational store.
type Verification struct {
	Collection string `json:"collection"`
	Commits    int    `json:"commits"`
	Points     int    `json:"points"`
	// Missing are stored commits without any point.
	Missing []commit.Key `json:"missing,omitempty"`
	// Orphans are indexed commits the store does not know.
	Orphans []commit.Key `json:"orphans,omitempty"`
	// Gaps counts ids absent from the range 0..Points-1.
	Gaps int `json:"gaps"`
	// Mixed counts points whose granularity differs from the configured one.
	Mixed int `json:"mixed"`
}

// OK reports whether the index is a faithful derivative of the store.
func (v Verification) OK() bool {
	return len(v.Missing) == 0 && len(v.Orphans) == 0 && v.Gaps == 0 && v.Mixed == 0
}

// Verify scans the whole collection and checks it against the store.
func (p *Pipeline) Verify(ctx context.Context) (Verification, error) {
	ctx, span := observability.StartStageSpan(ctx, "verify")
	defer span.End()

	v := Verification{Collection: p.opts.Collection}

	commits, err := p.deps.Store.Commits(ctx)
	if err != nil {
		observability.RecordError(span, err)
		return v, fmt.Errorf("reading commits: %w", err)
	}
	points, err := p.deps.Index.Scan(ctx, p.opts.Collection)
	if err != nil {
		observability.RecordError(span, err)
		return v, err
	}
	v.Commits = len(commits)
	v.Points = len(points)

	indexed := make(map[commit.Key]bool, len(points))
	ids := make(map[uint64]bool, len(points))
	for _, pt := range points {
		ids[pt.ID] = true
		if pt.Payload.Granularity != string(p.opts.Granularity) {
			v.Mixed++
		}
		indexed[commit.Key{RepositoryURL: pt.Payload.RepositoryURL, Hash: pt.Payload.CommitHash}] = true
	}

	for id := range uint64(len(points)) {
		if !ids[id] {
			v.Gaps++
		}
	}

	stored := make(map[commit.Key]bool, len(commits))
	for _, c := range commits {
		k := c.Key()
		stored[k] = true
		if !indexed[k] {
			v.Missing = append(v.Missing, k)
		}
	}
	for _, pt := range points {
		k := commit.Key{RepositoryURL: pt.Payload.RepositoryURL, Hash: pt.Payload.CommitHash}
		if !stored[k] {
			v.Orphans = append(v.Orphans, k)
			stored[k] = true
		}
	}

	p.logger.Info("index verified", "collection", v.Collection, "commits", v.Commits, "points", v.Points,
		"missing", len(v.Missing), "orphans", len(v.Orphans), "gaps", v.Gaps, "mixed", v.Mixed)
	return v, nil
}
