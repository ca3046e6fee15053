package query

import (
	"context"
	"errors"
	"testing"

	"github.com/efebarandurmaz/logsift/internal/vector"
	"github.com/efebarandurmaz/logsift/internal/vector/memory"
)

// toyEncoder maps known phrases to orthogonal unit vectors.
type toyEncoder map[string][]float32

func (e toyEncoder) EncodeOne(_ context.Context, text string) ([]float32, error) {
	v, ok := e[text]
	if !ok {
		return nil, errors.New("unknown text")
	}
	return v, nil
}

func (e toyEncoder) EncodeBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := e.EncodeOne(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

var toy = toyEncoder{
	"bug fix":     {1, 0},
	"add feature": {0, 1},
}

func newIndex(t *testing.T) *vector.Manager {
	t.Helper()
	m := vector.NewManager(memory.New(), nil)
	if err := m.EnsureCleanCollection(context.Background(), "commits", 2, vector.Cosine); err != nil {
		t.Fatal(err)
	}
	return m
}

func TestSearch_ToyData(t *testing.T) {
	ctx := context.Background()
	m := newIndex(t)
	_, err := m.BulkUpsert(ctx, "commits", []vector.Point{
		{ID: 0, Vector: toy["bug fix"], Payload: vector.Payload{CommitHash: "fix1", Message: "bug fix", Text: "bug fix"}},
		{ID: 1, Vector: toy["add feature"], Payload: vector.Payload{CommitHash: "feat1", Message: "add feature", Text: "add feature"}},
	}, 100)
	if err != nil {
		t.Fatal(err)
	}

	svc := NewService(toy, m, "commits", 0)
	if svc.Limit() != DefaultLimit {
		t.Fatalf("Limit() = %d, want %d", svc.Limit(), DefaultLimit)
	}
	res, err := svc.Search(ctx, "bug fix")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if !res.Found() {
		t.Fatal("expected results")
	}
	if res.Best().CommitHash != "fix1" {
		t.Fatalf("top result = %s, want fix1", res.Best().CommitHash)
	}
	if res.Best().Score != 1 {
		t.Errorf("top score = %v, want 1", res.Best().Score)
	}
	if len(res.Matches) != 2 || res.Matches[1].Score > res.Matches[0].Score {
		t.Errorf("unexpected ranking %+v", res.Matches)
	}
}

func TestSearch_EmptyCollection(t *testing.T) {
	svc := NewService(toy, newIndex(t), "commits", 5)
	res, err := svc.Search(context.Background(), "bug fix")
	if err != nil {
		t.Fatalf("empty collection must not be an error: %v", err)
	}
	if res.Found() {
		t.Fatalf("expected no results, got %+v", res.Matches)
	}
	if res.Query != "bug fix" {
		t.Errorf("Query = %q", res.Query)
	}
}

func TestSearch_Limit(t *testing.T) {
	ctx := context.Background()
	m := newIndex(t)
	pts := make([]vector.Point, 8)
	for i := range pts {
		pts[i] = vector.Point{ID: uint64(i), Vector: []float32{1, float32(i)}}
	}
	if _, err := m.BulkUpsert(ctx, "commits", pts, 3); err != nil {
		t.Fatal(err)
	}
	res, err := NewService(toy, m, "commits", 5).Search(ctx, "bug fix")
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Matches) != 5 {
		t.Fatalf("got %d matches, want 5", len(res.Matches))
	}
}

func TestSearch_Errors(t *testing.T) {
	svc := NewService(toy, newIndex(t), "commits", 5)
	if _, err := svc.Search(context.Background(), "unknown"); err == nil {
		t.Error("expected embedding error")
	}
	if _, err := svc.Search(context.Background(), "  "); err == nil {
		t.Error("expected error for empty query")
	}

	missing := NewService(toy, vector.NewManager(memory.New(), nil), "commits", 5)
	if _, err := missing.Search(context.Background(), "bug fix"); !errors.Is(err, vector.ErrCollectionNotFound) {
		t.Errorf("expected ErrCollectionNotFound, got %v", err)
	}
}
