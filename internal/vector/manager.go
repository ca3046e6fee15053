package vector

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
)

// BatchError reports a failed bulk upsert. Batches before Batch were
// committed; nothing after it was attempted.
type BatchError struct {
	Batch     int // zero-based index of the failed batch
	Committed int // points durably written before the failure
	Err       error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("upsert batch %d failed after %d committed points: %v", e.Batch, e.Committed, e.Err)
}

func (e *BatchError) Unwrap() error { return e.Err }

// Manager owns collection lifecycle, bulk loading and similarity queries on
// top of a Backend.
type Manager struct {
	backend Backend
	logger  *slog.Logger
}

// NewManager creates a Manager. A nil logger uses slog.Default().
func NewManager(b Backend, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{backend: b, logger: logger}
}

// EnsureCleanCollection deletes the named collection if it exists and
// creates it empty with the given dimension and metric. Calling it twice in
// a row leaves the same state.
func (m *Manager) EnsureCleanCollection(ctx context.Context, name string, dim int, metric Metric) error {
	if dim <= 0 {
		return fmt.Errorf("collection %s: dimension must be positive, got %d", name, dim)
	}
	exists, err := m.backend.CollectionExists(ctx, name)
	if err != nil {
		return fmt.Errorf("check collection %s: %w", name, err)
	}
	if exists {
		if err := m.backend.DeleteCollection(ctx, name); err != nil {
			return fmt.Errorf("delete collection %s: %w", name, err)
		}
		m.logger.Info("deleted collection", "collection", name)
	}
	if err := m.backend.CreateCollection(ctx, name, dim, metric); err != nil {
		return fmt.Errorf("create collection %s: %w", name, err)
	}
	m.logger.Info("created collection", "collection", name, "dimension", dim, "metric", metric)
	return nil
}

// BulkUpsert writes points in contiguous batches of batchSize, in order.
// Every vector is checked against the collection dimension before the first
// write. It returns the number of points committed; on a backend failure
// the error is a *BatchError.
func (m *Manager) BulkUpsert(ctx context.Context, name string, points []Point, batchSize int) (int, error) {
	if batchSize <= 0 {
		return 0, fmt.Errorf("batch size must be positive, got %d", batchSize)
	}
	if len(points) == 0 {
		return 0, nil
	}
	dim, err := m.backend.CollectionDimension(ctx, name)
	if err != nil {
		return 0, fmt.Errorf("collection %s: %w", name, err)
	}
	for _, p := range points {
		if len(p.Vector) != dim {
			return 0, fmt.Errorf("%w: point %d has %d values, collection %s has %d",
				ErrDimensionMismatch, p.ID, len(p.Vector), name, dim)
		}
	}

	committed := 0
	for batch, start := 0, 0; start < len(points); batch, start = batch+1, start+batchSize {
		end := min(start+batchSize, len(points))
		if err := m.backend.Upsert(ctx, name, points[start:end]); err != nil {
			return committed, &BatchError{Batch: batch, Committed: committed, Err: err}
		}
		committed = end
		m.logger.Debug("upserted batch", "collection", name, "batch", batch, "points", end-start)
	}
	return committed, nil
}

// Query returns up to k points nearest to vec, best first. Points with equal
// scores are ordered by ascending id. An empty result is not an error.
func (m *Manager) Query(ctx context.Context, name string, vec []float32, k int) (Hits, error) {
	if k <= 0 {
		return Hits{}, nil
	}
	dim, err := m.backend.CollectionDimension(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("collection %s: %w", name, err)
	}
	if len(vec) != dim {
		return nil, fmt.Errorf("%w: query has %d values, collection %s has %d", ErrDimensionMismatch, len(vec), name, dim)
	}
	hits, err := m.backend.Search(ctx, name, vec, k)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", name, err)
	}
	orderTies(hits)
	if len(hits) > k {
		hits = hits[:k]
	}
	return Hits(hits), nil
}

// Scan returns every point of the collection ordered by id.
func (m *Manager) Scan(ctx context.Context, name string) ([]Point, error) {
	points, err := m.backend.Scroll(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("scroll %s: %w", name, err)
	}
	sort.Slice(points, func(i, j int) bool { return points[i].ID < points[j].ID })
	return points, nil
}

// Count returns the number of points in the collection.
func (m *Manager) Count(ctx context.Context, name string) (int, error) {
	n, err := m.backend.Count(ctx, name)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", name, err)
	}
	return n, nil
}

// orderTies sorts runs of equal scores by ascending id without changing the
// backend's score order, which depends on the metric.
func orderTies(hits []Hit) {
	for i := 0; i < len(hits); {
		j := i + 1
		for j < len(hits) && hits[j].Score == hits[i].Score {
			j++
		}
		if j-i > 1 {
			run := hits[i:j]
			sort.Slice(run, func(a, b int) bool { return run[a].ID < run[b].ID })
		}
		i = j
	}
}
