// Package pipeline runs a full rebuild: export documents flow into the
// relational store and, as embedded text units, into the vector index.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/efebarandurmaz/logsift/internal/commit"
	"github.com/efebarandurmaz/logsift/internal/export"
	"github.com/efebarandurmaz/logsift/internal/graph"
	"github.com/efebarandurmaz/logsift/internal/metrics"
	"github.com/efebarandurmaz/logsift/internal/notify"
	"github.com/efebarandurmaz/logsift/internal/observability"
	"github.com/efebarandurmaz/logsift/internal/segment"
	"github.com/efebarandurmaz/logsift/internal/store"
	"github.com/efebarandurmaz/logsift/internal/vector"
)

// Generator is the embedding model as the pipeline sees it.
type Generator interface {
	Load(ctx context.Context) error
	EncodeBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Name() string
}

// Store is the relational persistence the pipeline writes to.
type Store interface {
	Reset(ctx context.Context) error
	SaveCommits(ctx context.Context, commits []commit.Commit) (int, error)
	Counts(ctx context.Context) (store.Counts, error)
	Commits(ctx context.Context) ([]commit.Commit, error)
}

// Publisher announces completed rebuilds.
type Publisher interface {
	Publish(ctx context.Context, ev notify.RebuildEvent) error
}

// Options are the fixed parameters of a rebuild.
type Options struct {
	Collection  string
	Dimension   int
	Metric      vector.Metric
	BatchSize   int
	Granularity commit.Granularity
}

// Deps are the collaborators of a Pipeline. Graph and Publisher are
// optional.
type Deps struct {
	Loader    export.Loader
	Segmenter *segment.Segmenter
	Generator Generator
	Index     *vector.Manager
	Store     Store
	Graph     graph.Projector
	Publisher Publisher
	Logger    *slog.Logger
}

// Pipeline rebuilds the store and the index. It is not safe for concurrent
// use: two rebuilds would race on the same collection and tables.
type Pipeline struct {
	deps    Deps
	opts    Options
	indexer *vector.Indexer
	logger  *slog.Logger
}

// New creates a Pipeline.
func New(deps Deps, opts Options) *Pipeline {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Segmenter == nil {
		deps.Segmenter = segment.New(nil)
	}
	if opts.Granularity == "" {
		opts.Granularity = commit.GranularityMessage
	}
	if opts.Metric == "" {
		opts.Metric = vector.Cosine
	}
	return &Pipeline{
		deps:    deps,
		opts:    opts,
		indexer: vector.NewIndexer(deps.Generator, deps.Index, opts.Collection, opts.BatchSize),
		logger:  deps.Logger,
	}
}

// run carries the state of one rebuild.
type run struct {
	report *metrics.RebuildReport
	nextID uint64
	seen   map[commit.Key]bool
	stages map[string]*stageTotal
	order  []string
}

type stageTotal struct {
	d     time.Duration
	items int
	err   error
}

func (r *run) time(name string, fn func() (int, error)) error {
	st, ok := r.stages[name]
	if !ok {
		st = &stageTotal{}
		r.stages[name] = st
		r.order = append(r.order, name)
	}
	start := time.Now()
	n, err := fn()
	st.d += time.Since(start)
	st.items += n
	if err != nil {
		st.err = err
	}
	return err
}

func (r *run) finish(err error) {
	for _, name := range r.order {
		st := r.stages[name]
		r.report.AddStage(name, st.d, st.items, st.err)
	}
	r.report.Finish(err)
}

func (p *Pipeline) newRun(mode string) *run {
	report := metrics.New(mode)
	report.Collection = p.opts.Collection
	report.Dimension = p.opts.Dimension
	report.Granularity = string(p.opts.Granularity)
	report.Model = p.deps.Generator.Name()
	return &run{report: report, seen: make(map[commit.Key]bool), stages: make(map[string]*stageTotal)}
}

// Run rebuilds everything from the given export documents. Both stores are
// reset first; a fatal error stops the run and names the document or
// record that caused it. The report is returned even on error.
func (p *Pipeline) Run(ctx context.Context, paths []string) (*metrics.RebuildReport, error) {
	r := p.newRun("ingest")
	err := p.ingest(ctx, r, paths)
	r.finish(err)
	return r.report, err
}

func (p *Pipeline) ingest(ctx context.Context, r *run, paths []string) error {
	if err := p.prepare(ctx, r, true); err != nil {
		return err
	}

	for doc, err := range p.deps.Loader.Documents(paths...) {
		if err != nil {
			return fmt.Errorf("loading documents: %w", err)
		}
		if err := p.ingestDocument(ctx, r, doc); err != nil {
			return err
		}
	}
	return p.complete(ctx, r)
}

func (p *Pipeline) ingestDocument(ctx context.Context, r *run, doc export.Document) error {
	ctx, span := observability.StartDocumentSpan(ctx, doc.Path)
	defer span.End()

	var added int
	err := r.time("store", func() (int, error) {
		n, err := p.deps.Store.SaveCommits(ctx, doc.Commits)
		added = n
		return n, err
	})
	if err != nil {
		observability.RecordError(span, err)
		return fmt.Errorf("%s: saving commits: %w", doc.Path, err)
	}

	// A commit already seen in this run is skipped by the store and must
	// not get a second set of vectors.
	fresh := make([]commit.Commit, 0, len(doc.Commits))
	for _, c := range doc.Commits {
		if k := c.Key(); !r.seen[k] {
			r.seen[k] = true
			fresh = append(fresh, c)
		}
	}

	units, err := p.index(ctx, r, fresh)
	if err != nil {
		observability.RecordError(span, err)
		return fmt.Errorf("%s: %w", doc.Path, err)
	}

	if err := p.project(ctx, r, fresh); err != nil {
		observability.RecordError(span, err)
		return fmt.Errorf("%s: %w", doc.Path, err)
	}

	observability.RecordDocumentResult(span, len(doc.Commits), added, units)
	r.report.AddDocument(metrics.DocumentStats{
		Path:       doc.Path,
		Repository: doc.Repository.URL,
		Commits:    len(doc.Commits),
		Added:      added,
		Units:      units,
	})
	p.logger.Info("document ingested", "path", doc.Path, "repository", doc.Repository.URL,
		"commits", len(doc.Commits), "added", added, "units", units)
	return nil
}

// Reindex rebuilds the vector index and the graph from the relational
// store's rows, leaving the store untouched.
func (p *Pipeline) Reindex(ctx context.Context) (*metrics.RebuildReport, error) {
	r := p.newRun("reindex")
	err := p.reindex(ctx, r)
	r.finish(err)
	return r.report, err
}

func (p *Pipeline) reindex(ctx context.Context, r *run) error {
	if err := p.prepare(ctx, r, false); err != nil {
		return err
	}

	var commits []commit.Commit
	err := r.time("load", func() (int, error) {
		var err error
		commits, err = p.deps.Store.Commits(ctx)
		return len(commits), err
	})
	if err != nil {
		return fmt.Errorf("reading commits: %w", err)
	}

	units, err := p.index(ctx, r, commits)
	if err != nil {
		return err
	}
	if err := p.project(ctx, r, commits); err != nil {
		return err
	}
	r.report.AddDocument(metrics.DocumentStats{
		Path:       "store",
		Repository: "*",
		Commits:    len(commits),
		Units:      units,
	})
	return p.complete(ctx, r)
}

// prepare loads the model and resets the targets of the rebuild.
func (p *Pipeline) prepare(ctx context.Context, r *run, resetStore bool) error {
	ctx, span := observability.StartStageSpan(ctx, "prepare")
	defer span.End()

	err := r.time("prepare", func() (int, error) {
		if err := p.deps.Generator.Load(ctx); err != nil {
			return 0, err
		}
		if got := p.deps.Generator.Dimensions(); got != p.opts.Dimension {
			return 0, fmt.Errorf("%w: model %s produces %d values, collection %s is declared with %d",
				vector.ErrDimensionMismatch, p.deps.Generator.Name(), got, p.opts.Collection, p.opts.Dimension)
		}
		if resetStore {
			if err := p.deps.Store.Reset(ctx); err != nil {
				return 0, fmt.Errorf("resetting store: %w", err)
			}
		}
		if err := p.deps.Index.EnsureCleanCollection(ctx, p.opts.Collection, p.opts.Dimension, p.opts.Metric); err != nil {
			return 0, err
		}
		if p.deps.Graph != nil {
			if err := p.deps.Graph.Reset(ctx); err != nil {
				return 0, fmt.Errorf("resetting graph: %w", err)
			}
		}
		return 0, nil
	})
	observability.RecordError(span, err)
	return err
}

// index segments commits into units and loads them into the collection,
// continuing the run's id sequence.
func (p *Pipeline) index(ctx context.Context, r *run, commits []commit.Commit) (int, error) {
	var units []commit.Unit
	_ = r.time("segment", func() (int, error) {
		for _, c := range commits {
			units = append(units, p.deps.Segmenter.Units(c, p.opts.Granularity)...)
		}
		return len(units), nil
	})
	for _, u := range units {
		r.report.TextBytes += len(u.Text)
	}

	ctx, span := observability.StartEmbedSpan(ctx, p.deps.Generator.Name(), len(units))
	defer span.End()

	err := r.time("index", func() (int, error) {
		n, err := p.indexer.IndexUnits(ctx, units, r.nextID)
		r.report.Points += n
		return n, err
	})
	r.nextID += uint64(len(units))
	if err != nil {
		observability.RecordError(span, err)
		var be *vector.BatchError
		if errors.As(err, &be) {
			return 0, fmt.Errorf("indexing: %d points committed before failure: %w", r.report.Points, err)
		}
		return 0, fmt.Errorf("indexing: %w", err)
	}
	return len(units), nil
}

func (p *Pipeline) project(ctx context.Context, r *run, commits []commit.Commit) error {
	if p.deps.Graph == nil || len(commits) == 0 {
		return nil
	}
	err := r.time("graph", func() (int, error) {
		return len(commits), p.deps.Graph.StoreCommits(ctx, commits)
	})
	if err != nil {
		return fmt.Errorf("projecting graph: %w", err)
	}
	return nil
}

// complete records final counts and announces the rebuild.
func (p *Pipeline) complete(ctx context.Context, r *run) error {
	counts, err := p.deps.Store.Counts(ctx)
	if err != nil {
		return fmt.Errorf("counting rows: %w", err)
	}
	r.report.Repositories = counts.Repositories

	p.logger.Info("rebuild complete", "mode", r.report.Mode, "repositories", counts.Repositories,
		"commits", counts.Commits, "points", r.report.Points)

	if p.deps.Publisher == nil {
		return nil
	}
	ev := notify.RebuildEvent{
		Mode:         r.report.Mode,
		Collection:   p.opts.Collection,
		Granularity:  string(p.opts.Granularity),
		Repositories: counts.Repositories,
		Commits:      counts.Commits,
		Points:       r.report.Points,
		FinishedAt:   time.Now().UTC(),
	}
	// Publishing never fails a finished rebuild.
	return r.time("publish", func() (int, error) {
		if err := p.deps.Publisher.Publish(ctx, ev); err != nil {
			p.logger.Warn("rebuild event not published", "error", err)
		}
		return 1, nil
	})
}
