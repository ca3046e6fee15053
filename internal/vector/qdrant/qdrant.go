// Package qdrant implements vector.Backend on a Qdrant server over gRPC.
package qdrant

import (
	"context"
	"fmt"
	"strings"
	"time"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/efebarandurmaz/logsift/internal/vector"
)

const scrollPage = 256

// pointsAPI and collectionsAPI are the subsets of the generated clients the
// backend calls.
type pointsAPI interface {
	Upsert(ctx context.Context, in *pb.UpsertPoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
	Search(ctx context.Context, in *pb.SearchPoints, opts ...grpc.CallOption) (*pb.SearchResponse, error)
	Scroll(ctx context.Context, in *pb.ScrollPoints, opts ...grpc.CallOption) (*pb.ScrollResponse, error)
	Count(ctx context.Context, in *pb.CountPoints, opts ...grpc.CallOption) (*pb.CountResponse, error)
}

type collectionsAPI interface {
	List(ctx context.Context, in *pb.ListCollectionsRequest, opts ...grpc.CallOption) (*pb.ListCollectionsResponse, error)
	Get(ctx context.Context, in *pb.GetCollectionInfoRequest, opts ...grpc.CallOption) (*pb.GetCollectionInfoResponse, error)
	Create(ctx context.Context, in *pb.CreateCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
	Delete(ctx context.Context, in *pb.DeleteCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
}

// Backend implements vector.Backend using Qdrant.
type Backend struct {
	conn        *grpc.ClientConn
	points      pointsAPI
	collections collectionsAPI
	timeout     time.Duration
}

// New connects to Qdrant's gRPC port. A zero timeout leaves calls bounded
// only by the caller's context.
func New(host string, port int, timeout time.Duration) (*Backend, error) {
	addr := fmt.Sprintf("%s:%d", host, port)
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("qdrant connect %s: %w", addr, err)
	}
	return &Backend{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		timeout:     timeout,
	}, nil
}

func (b *Backend) call(ctx context.Context) (context.Context, context.CancelFunc) {
	if b.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, b.timeout)
}

func (b *Backend) CollectionExists(ctx context.Context, name string) (bool, error) {
	ctx, cancel := b.call(ctx)
	defer cancel()
	list, err := b.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return false, fmt.Errorf("qdrant: list collections: %w", err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == name {
			return true, nil
		}
	}
	return false, nil
}

func (b *Backend) CollectionDimension(ctx context.Context, name string) (int, error) {
	ctx, cancel := b.call(ctx)
	defer cancel()
	info, err := b.collections.Get(ctx, &pb.GetCollectionInfoRequest{CollectionName: name})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return 0, fmt.Errorf("%w: %s", vector.ErrCollectionNotFound, name)
		}
		return 0, fmt.Errorf("qdrant: get collection %s: %w", name, err)
	}
	params := info.GetResult().GetConfig().GetParams().GetVectorsConfig().GetParams()
	if params == nil {
		return 0, fmt.Errorf("qdrant: collection %s has no single unnamed vector", name)
	}
	return int(params.GetSize()), nil
}

func (b *Backend) DeleteCollection(ctx context.Context, name string) error {
	ctx, cancel := b.call(ctx)
	defer cancel()
	if _, err := b.collections.Delete(ctx, &pb.DeleteCollection{CollectionName: name}); err != nil {
		return fmt.Errorf("qdrant: delete collection %s: %w", name, err)
	}
	return nil
}

func (b *Backend) CreateCollection(ctx context.Context, name string, dim int, metric vector.Metric) error {
	dist, err := distance(metric)
	if err != nil {
		return err
	}
	ctx, cancel := b.call(ctx)
	defer cancel()
	_, err = b.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: name,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(dim),
					Distance: dist,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("qdrant: create collection %s: %w", name, err)
	}
	return nil
}

func (b *Backend) Upsert(ctx context.Context, name string, points []vector.Point) error {
	if len(points) == 0 {
		return nil
	}
	pts := make([]*pb.PointStruct, len(points))
	for i, p := range points {
		pts[i] = &pb.PointStruct{
			Id:      &pb.PointId{PointIdOptions: &pb.PointId_Num{Num: p.ID}},
			Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: p.Vector}}},
			Payload: toValues(p.Payload),
		}
	}

	ctx, cancel := b.call(ctx)
	defer cancel()
	wait := true
	_, err := b.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: name,
		Wait:           &wait,
		Points:         pts,
	})
	if err != nil {
		return fmt.Errorf("qdrant: upsert %d points: %w", len(points), err)
	}
	return nil
}

func (b *Backend) Search(ctx context.Context, name string, vec []float32, limit int) ([]vector.Hit, error) {
	ctx, cancel := b.call(ctx)
	defer cancel()
	resp, err := b.points.Search(ctx, &pb.SearchPoints{
		CollectionName: name,
		Vector:         vec,
		Limit:          uint64(limit),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: search %s: %w", name, err)
	}

	hits := make([]vector.Hit, len(resp.GetResult()))
	for i, pt := range resp.GetResult() {
		hits[i] = vector.Hit{
			ID:      pt.GetId().GetNum(),
			Score:   pt.GetScore(),
			Payload: fromValues(pt.GetPayload()),
		}
	}
	return hits, nil
}

func (b *Backend) Scroll(ctx context.Context, name string) ([]vector.Point, error) {
	var (
		out    []vector.Point
		offset *pb.PointId
		limit  = uint32(scrollPage)
	)
	for {
		page, next, err := b.scrollPage(ctx, name, offset, limit)
		if err != nil {
			return nil, err
		}
		out = append(out, page...)
		if next == nil {
			return out, nil
		}
		offset = next
	}
}

func (b *Backend) scrollPage(ctx context.Context, name string, offset *pb.PointId, limit uint32) ([]vector.Point, *pb.PointId, error) {
	ctx, cancel := b.call(ctx)
	defer cancel()
	resp, err := b.points.Scroll(ctx, &pb.ScrollPoints{
		CollectionName: name,
		Offset:         offset,
		Limit:          &limit,
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, nil, fmt.Errorf("qdrant: scroll %s: %w", name, err)
	}
	page := make([]vector.Point, len(resp.GetResult()))
	for i, pt := range resp.GetResult() {
		page[i] = vector.Point{ID: pt.GetId().GetNum(), Payload: fromValues(pt.GetPayload())}
	}
	return page, resp.GetNextPageOffset(), nil
}

func (b *Backend) Count(ctx context.Context, name string) (int, error) {
	ctx, cancel := b.call(ctx)
	defer cancel()
	exact := true
	resp, err := b.points.Count(ctx, &pb.CountPoints{CollectionName: name, Exact: &exact})
	if err != nil {
		return 0, fmt.Errorf("qdrant: count %s: %w", name, err)
	}
	return int(resp.GetResult().GetCount()), nil
}

func (b *Backend) Close() error {
	if b.conn == nil {
		return nil
	}
	return b.conn.Close()
}

func distance(m vector.Metric) (pb.Distance, error) {
	switch strings.ToLower(string(m)) {
	case "", string(vector.Cosine):
		return pb.Distance_Cosine, nil
	case string(vector.Dot):
		return pb.Distance_Dot, nil
	case string(vector.Euclid):
		return pb.Distance_Euclid, nil
	}
	return 0, fmt.Errorf("qdrant: unsupported metric %q", m)
}

func toValues(p vector.Payload) map[string]*pb.Value {
	out := make(map[string]*pb.Value, 9)
	for k, v := range p.Strings() {
		out[k] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: v}}
	}
	out[vector.FieldUnitIndex] = &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: int64(p.UnitIndex)}}
	return out
}

func fromValues(m map[string]*pb.Value) vector.Payload {
	strs := make(map[string]string, len(m))
	for k, v := range m {
		strs[k] = v.GetStringValue()
	}
	return vector.PayloadFromStrings(strs, int(m[vector.FieldUnitIndex].GetIntegerValue()))
}

var _ vector.Backend = (*Backend)(nil)
