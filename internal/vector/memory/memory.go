// Package memory is an in-process vector backend with exact search. It
// serves tests and dry runs that should not touch a real index.
package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/efebarandurmaz/logsift/internal/vector"
)

type collection struct {
	dim    int
	metric vector.Metric
	points map[uint64]vector.Point
}

// Backend implements vector.Backend in memory.
type Backend struct {
	mu          sync.RWMutex
	collections map[string]*collection
}

// New creates an empty backend.
func New() *Backend {
	return &Backend{collections: make(map[string]*collection)}
}

func (b *Backend) CollectionExists(_ context.Context, name string) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.collections[name]
	return ok, nil
}

func (b *Backend) CollectionDimension(_ context.Context, name string) (int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	c, ok := b.collections[name]
	if !ok {
		return 0, fmt.Errorf("%w: %s", vector.ErrCollectionNotFound, name)
	}
	return c.dim, nil
}

func (b *Backend) DeleteCollection(_ context.Context, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.collections, name)
	return nil
}

func (b *Backend) CreateCollection(_ context.Context, name string, dim int, metric vector.Metric) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.collections[name]; ok {
		return fmt.Errorf("collection %s already exists", name)
	}
	b.collections[name] = &collection{dim: dim, metric: metric, points: make(map[uint64]vector.Point)}
	return nil
}

func (b *Backend) Upsert(_ context.Context, name string, points []vector.Point) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.collections[name]
	if !ok {
		return fmt.Errorf("%w: %s", vector.ErrCollectionNotFound, name)
	}
	for _, p := range points {
		if len(p.Vector) != c.dim {
			return fmt.Errorf("%w: point %d", vector.ErrDimensionMismatch, p.ID)
		}
		v := make([]float32, len(p.Vector))
		copy(v, p.Vector)
		p.Vector = v
		c.points[p.ID] = p
	}
	return nil
}

func (b *Backend) Search(_ context.Context, name string, vec []float32, limit int) ([]vector.Hit, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	c, ok := b.collections[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", vector.ErrCollectionNotFound, name)
	}
	hits := make([]vector.Hit, 0, len(c.points))
	for _, p := range c.points {
		hits = append(hits, vector.Hit{ID: p.ID, Score: score(c.metric, vec, p.Vector), Payload: p.Payload})
	}
	ascending := c.metric == vector.Euclid
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			if ascending {
				return hits[i].Score < hits[j].Score
			}
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (b *Backend) Scroll(_ context.Context, name string) ([]vector.Point, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	c, ok := b.collections[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", vector.ErrCollectionNotFound, name)
	}
	out := make([]vector.Point, 0, len(c.points))
	for _, p := range c.points {
		out = append(out, vector.Point{ID: p.ID, Payload: p.Payload})
	}
	return out, nil
}

func (b *Backend) Count(_ context.Context, name string) (int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	c, ok := b.collections[name]
	if !ok {
		return 0, fmt.Errorf("%w: %s", vector.ErrCollectionNotFound, name)
	}
	return len(c.points), nil
}

func (b *Backend) Close() error { return nil }

func score(m vector.Metric, a, b []float32) float32 {
	var dot, na, nb, dist float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
		dist += (x - y) * (x - y)
	}
	switch m {
	case vector.Dot:
		return float32(dot)
	case vector.Euclid:
		return float32(math.Sqrt(dist))
	default:
		if na == 0 || nb == 0 {
			return 0
		}
		return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
	}
}

var _ vector.Backend = (*Backend)(nil)
