package vector

import (
	"context"
	"fmt"

	"github.com/efebarandurmaz/logsift/internal/commit"
)

// Encoder produces one vector per text, in input order.
type Encoder interface {
	EncodeBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Indexer embeds text units and loads them into a collection.
type Indexer struct {
	encoder    Encoder
	manager    *Manager
	collection string
	batchSize  int
}

// NewIndexer creates an Indexer.
func NewIndexer(enc Encoder, mgr *Manager, collection string, batchSize int) *Indexer {
	return &Indexer{encoder: enc, manager: mgr, collection: collection, batchSize: batchSize}
}

// IndexUnits embeds units and upserts them with ids firstID, firstID+1, ...
// in unit order. It returns the number of points committed.
func (ix *Indexer) IndexUnits(ctx context.Context, units []commit.Unit, firstID uint64) (int, error) {
	if len(units) == 0 {
		return 0, nil
	}
	texts := make([]string, len(units))
	for i, u := range units {
		texts[i] = u.Text
	}
	vectors, err := ix.encoder.EncodeBatch(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embedding: %w", err)
	}
	if len(vectors) != len(texts) {
		return 0, fmt.Errorf("embedding count mismatch: got %d, want %d", len(vectors), len(texts))
	}

	points := make([]Point, len(units))
	for i, u := range units {
		points[i] = Point{
			ID:      firstID + uint64(i),
			Vector:  vectors[i],
			Payload: PayloadFor(u),
		}
	}
	return ix.manager.BulkUpsert(ctx, ix.collection, points, ix.batchSize)
}
