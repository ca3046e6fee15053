package qdrant

import (
	"context"
	"errors"
	"testing"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/efebarandurmaz/logsift/internal/vector"
)

type fakeCollections struct {
	names   []string
	size    uint64
	created *pb.CreateCollection
	deleted []string
	getErr  error
}

func (f *fakeCollections) List(context.Context, *pb.ListCollectionsRequest, ...grpc.CallOption) (*pb.ListCollectionsResponse, error) {
	resp := &pb.ListCollectionsResponse{}
	for _, n := range f.names {
		resp.Collections = append(resp.Collections, &pb.CollectionDescription{Name: n})
	}
	return resp, nil
}

func (f *fakeCollections) Get(context.Context, *pb.GetCollectionInfoRequest, ...grpc.CallOption) (*pb.GetCollectionInfoResponse, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return &pb.GetCollectionInfoResponse{Result: &pb.CollectionInfo{Config: &pb.CollectionConfig{
		Params: &pb.CollectionParams{VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{Params: &pb.VectorParams{Size: f.size, Distance: pb.Distance_Cosine}},
		}},
	}}}, nil
}

func (f *fakeCollections) Create(_ context.Context, in *pb.CreateCollection, _ ...grpc.CallOption) (*pb.CollectionOperationResponse, error) {
	f.created = in
	return &pb.CollectionOperationResponse{Result: true}, nil
}

func (f *fakeCollections) Delete(_ context.Context, in *pb.DeleteCollection, _ ...grpc.CallOption) (*pb.CollectionOperationResponse, error) {
	f.deleted = append(f.deleted, in.GetCollectionName())
	return &pb.CollectionOperationResponse{Result: true}, nil
}

type fakePoints struct {
	upserts []*pb.UpsertPoints
	search  *pb.SearchResponse
	pages   []*pb.ScrollResponse
	scrolls []*pb.ScrollPoints
	count   uint64
}

func (f *fakePoints) Upsert(_ context.Context, in *pb.UpsertPoints, _ ...grpc.CallOption) (*pb.PointsOperationResponse, error) {
	f.upserts = append(f.upserts, in)
	return &pb.PointsOperationResponse{}, nil
}

func (f *fakePoints) Search(context.Context, *pb.SearchPoints, ...grpc.CallOption) (*pb.SearchResponse, error) {
	return f.search, nil
}

func (f *fakePoints) Scroll(_ context.Context, in *pb.ScrollPoints, _ ...grpc.CallOption) (*pb.ScrollResponse, error) {
	f.scrolls = append(f.scrolls, in)
	resp := f.pages[0]
	f.pages = f.pages[1:]
	return resp, nil
}

func (f *fakePoints) Count(context.Context, *pb.CountPoints, ...grpc.CallOption) (*pb.CountResponse, error) {
	return &pb.CountResponse{Result: &pb.CountResult{Count: f.count}}, nil
}

func newTestBackend(c *fakeCollections, p *fakePoints) *Backend {
	return &Backend{points: p, collections: c}
}

func TestCollectionLifecycle(t *testing.T) {
	ctx := context.Background()
	cols := &fakeCollections{names: []string{"other", "commits"}, size: 384}
	b := newTestBackend(cols, &fakePoints{})

	ok, err := b.CollectionExists(ctx, "commits")
	if err != nil || !ok {
		t.Fatalf("CollectionExists = %v, %v", ok, err)
	}
	if ok, _ := b.CollectionExists(ctx, "missing"); ok {
		t.Fatal("missing collection reported as present")
	}

	dim, err := b.CollectionDimension(ctx, "commits")
	if err != nil || dim != 384 {
		t.Fatalf("CollectionDimension = %d, %v", dim, err)
	}

	if err := b.DeleteCollection(ctx, "commits"); err != nil {
		t.Fatal(err)
	}
	if err := b.CreateCollection(ctx, "commits", 384, vector.Cosine); err != nil {
		t.Fatal(err)
	}
	params := cols.created.GetVectorsConfig().GetParams()
	if params.GetSize() != 384 || params.GetDistance() != pb.Distance_Cosine {
		t.Errorf("unexpected create params %v", params)
	}
	if err := b.CreateCollection(ctx, "x", 3, vector.Metric("hamming")); err == nil {
		t.Error("expected error for unsupported metric")
	}
}

func TestCollectionDimension_NotFound(t *testing.T) {
	cols := &fakeCollections{getErr: status.Error(codes.NotFound, "no such collection")}
	_, err := newTestBackend(cols, &fakePoints{}).CollectionDimension(context.Background(), "commits")
	if !errors.Is(err, vector.ErrCollectionNotFound) {
		t.Fatalf("expected ErrCollectionNotFound, got %v", err)
	}
}

func TestUpsert(t *testing.T) {
	pts := &fakePoints{}
	b := newTestBackend(&fakeCollections{}, pts)
	err := b.Upsert(context.Background(), "commits", []vector.Point{{
		ID:     7,
		Vector: []float32{0.1, 0.2},
		Payload: vector.Payload{
			CommitHash: "abc", Author: "Alice", Date: "2024", Message: "Fix it.",
			RepositoryURL: "https://example.com/r", Granularity: "message", UnitIndex: 2, Text: "Fix it.", Key: "k",
		},
	}})
	if err != nil {
		t.Fatal(err)
	}
	req := pts.upserts[0]
	if !req.GetWait() {
		t.Error("upsert must wait for durability")
	}
	p := req.GetPoints()[0]
	if p.GetId().GetNum() != 7 {
		t.Errorf("id = %v", p.GetId())
	}
	if got := p.GetPayload()["commit-hash"].GetStringValue(); got != "abc" {
		t.Errorf("commit-hash = %q", got)
	}
	if got := p.GetPayload()["unit_index"].GetIntegerValue(); got != 2 {
		t.Errorf("unit_index = %d", got)
	}
}

func TestSearch(t *testing.T) {
	pts := &fakePoints{search: &pb.SearchResponse{Result: []*pb.ScoredPoint{{
		Id:    &pb.PointId{PointIdOptions: &pb.PointId_Num{Num: 3}},
		Score: 0.9,
		Payload: map[string]*pb.Value{
			"commit-hash": {Kind: &pb.Value_StringValue{StringValue: "abc"}},
			"author":      {Kind: &pb.Value_StringValue{StringValue: "Alice"}},
			"unit_index":  {Kind: &pb.Value_IntegerValue{IntegerValue: 1}},
		},
	}}}}
	hits, err := newTestBackend(&fakeCollections{}, pts).Search(context.Background(), "commits", []float32{1}, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || hits[0].ID != 3 || hits[0].Payload.CommitHash != "abc" || hits[0].Payload.UnitIndex != 1 {
		t.Fatalf("unexpected hits %+v", hits)
	}
}

func TestScroll_Pages(t *testing.T) {
	point := func(id uint64) *pb.RetrievedPoint {
		return &pb.RetrievedPoint{Id: &pb.PointId{PointIdOptions: &pb.PointId_Num{Num: id}}}
	}
	pts := &fakePoints{pages: []*pb.ScrollResponse{
		{Result: []*pb.RetrievedPoint{point(0), point(1)}, NextPageOffset: &pb.PointId{PointIdOptions: &pb.PointId_Num{Num: 2}}},
		{Result: []*pb.RetrievedPoint{point(2)}},
	}}
	all, err := newTestBackend(&fakeCollections{}, pts).Scroll(context.Background(), "commits")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("got %d points", len(all))
	}
	if len(pts.scrolls) != 2 || pts.scrolls[1].GetOffset().GetNum() != 2 {
		t.Errorf("second page not requested from offset 2")
	}
}

func TestCount(t *testing.T) {
	n, err := newTestBackend(&fakeCollections{}, &fakePoints{count: 42}).Count(context.Background(), "commits")
	if err != nil || n != 42 {
		t.Fatalf("Count = %d, %v", n, err)
	}
}
