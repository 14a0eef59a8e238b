package oracle

import (
	"context"
	"fmt"
	"math"
	"strconv"

	"github.com/hyperjump/docent/internal/models"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// scopeKey is the payload field holding an artwork's exhibition id.
const scopeKey = "exhibition_id"

// QdrantRanker ranks artworks stored as points of a Qdrant collection. Each
// point carries the artwork's fields in its payload.
type QdrantRanker struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	service     pb.QdrantClient
	collection  string
}

// NewQdrantRanker dials host:port over gRPC. The connection is lazy; Ping
// reports whether the server is reachable.
func NewQdrantRanker(host string, port int, collection string) (*QdrantRanker, error) {
	addr := fmt.Sprintf("%s:%d", host, port)
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("qdrant connect: %w", err)
	}
	return &QdrantRanker{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		service:     pb.NewQdrantClient(conn),
		collection:  collection,
	}, nil
}

// RankArtworks implements Ranker.
func (q *QdrantRanker) RankArtworks(ctx context.Context, scopeID int64, query []float32, limit int) ([]Row, error) {
	resp, err := q.points.Search(ctx, &pb.SearchPoints{
		CollectionName: q.collection,
		Vector:         query,
		Limit:          uint64(limit),
		Filter:         scopeFilter(scopeID),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant search %s: %w", q.collection, err)
	}

	rows := make([]Row, 0, len(resp.GetResult()))
	for _, pt := range resp.GetResult() {
		rows = append(rows, rowFromPoint(pt.GetId(), pt.GetScore(), pt.GetPayload()))
	}
	return rows, nil
}

// EnsureCollection creates the collection with cosine distance if it does not exist yet.
func (q *QdrantRanker) EnsureCollection(ctx context.Context, dimensions int) error {
	exists, err := q.collections.CollectionExists(ctx, &pb.CollectionExistsRequest{CollectionName: q.collection})
	if err != nil {
		return fmt.Errorf("qdrant collection exists: %w", err)
	}
	if exists.GetResult().GetExists() {
		return nil
	}
	_, err = q.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: &pb.VectorsConfig{Config: &pb.VectorsConfig_Params{Params: &pb.VectorParams{
			Size:     uint64(dimensions),
			Distance: pb.Distance_Cosine,
		}}},
	})
	if err != nil {
		return fmt.Errorf("qdrant create collection %s: %w", q.collection, err)
	}
	return nil
}

// UpsertArtworks writes artworks that have an embedding as points keyed by
// artwork id. It returns how many points were written.
func (q *QdrantRanker) UpsertArtworks(ctx context.Context, artworks []models.Artwork) (int, error) {
	points := make([]*pb.PointStruct, 0, len(artworks))
	for i := range artworks {
		a := &artworks[i]
		if len(a.Embedding) == 0 {
			continue
		}
		points = append(points, &pb.PointStruct{
			Id:      &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: a.ID}},
			Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: a.Embedding}}},
			Payload: artworkPayload(a),
		})
	}
	if len(points) == 0 {
		return 0, nil
	}

	_, err := q.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: q.collection,
		Points:         points,
	})
	if err != nil {
		return 0, fmt.Errorf("qdrant upsert: %w", err)
	}
	return len(points), nil
}

// Ping checks that the Qdrant server answers.
func (q *QdrantRanker) Ping(ctx context.Context) error {
	if _, err := q.service.HealthCheck(ctx, &pb.HealthCheckRequest{}); err != nil {
		return fmt.Errorf("qdrant health: %w", err)
	}
	return nil
}

// Close closes the gRPC connection.
func (q *QdrantRanker) Close() error {
	return q.conn.Close()
}

var _ Ranker = (*QdrantRanker)(nil)

func scopeFilter(scopeID int64) *pb.Filter {
	return &pb.Filter{
		Must: []*pb.Condition{{
			ConditionOneOf: &pb.Condition_Field{Field: &pb.FieldCondition{
				Key:   scopeKey,
				Match: &pb.Match{MatchValue: &pb.Match_Integer{Integer: scopeID}},
			}},
		}},
	}
}

func rowFromPoint(id *pb.PointId, score float32, payload map[string]*pb.Value) Row {
	s := float64(score)
	row := Row{
		ID:               stringField(payload, "id"),
		Title:            stringField(payload, "title"),
		Artist:           stringField(payload, "artist"),
		Description:      stringField(payload, "description"),
		ImageURL:         stringField(payload, "image_url"),
		ProductionYear:   stringField(payload, "production_year"),
		Materials:        stringField(payload, "ingredients"),
		Dimensions:       stringField(payload, "size"),
		ManagementNumber: intField(payload, "management_number"),
		IsCurrent:        boolField(payload, "is_now"),
		Score:            &s,
	}
	if row.ID == nil && id != nil {
		switch opt := id.GetPointIdOptions().(type) {
		case *pb.PointId_Uuid:
			u := opt.Uuid
			row.ID = &u
		case *pb.PointId_Num:
			n := strconv.FormatUint(opt.Num, 10)
			row.ID = &n
		}
	}
	return row
}

func artworkPayload(a *models.Artwork) map[string]*pb.Value {
	payload := map[string]*pb.Value{
		"id":     stringValue(a.ID),
		scopeKey: {Kind: &pb.Value_IntegerValue{IntegerValue: a.ExhibitionID}},
		"title":  stringValue(a.Title),
		"artist": stringValue(a.Artist),
	}
	optional := map[string]*string{
		"description":     a.Description,
		"image_url":       a.ImageURL,
		"production_year": a.ProductionYear,
		"ingredients":     a.Materials,
		"size":            a.Dimensions,
	}
	for k, v := range optional {
		if v != nil {
			payload[k] = stringValue(*v)
		}
	}
	if a.ManagementNumber != nil {
		payload["management_number"] = &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: *a.ManagementNumber}}
	}
	if a.IsCurrent != nil {
		payload["is_now"] = &pb.Value{Kind: &pb.Value_BoolValue{BoolValue: *a.IsCurrent}}
	}
	return payload
}

func stringValue(s string) *pb.Value {
	return &pb.Value{Kind: &pb.Value_StringValue{StringValue: s}}
}

// stringField reads a payload value as text. Numbers are formatted; null and
// missing keys give nil.
func stringField(payload map[string]*pb.Value, key string) *string {
	v, ok := payload[key]
	if !ok || v == nil {
		return nil
	}
	var s string
	switch k := v.GetKind().(type) {
	case *pb.Value_StringValue:
		s = k.StringValue
	case *pb.Value_IntegerValue:
		s = strconv.FormatInt(k.IntegerValue, 10)
	case *pb.Value_DoubleValue:
		s = strconv.FormatFloat(k.DoubleValue, 'f', -1, 64)
	default:
		return nil
	}
	return &s
}

func intField(payload map[string]*pb.Value, key string) *int64 {
	v, ok := payload[key]
	if !ok || v == nil {
		return nil
	}
	var n int64
	switch k := v.GetKind().(type) {
	case *pb.Value_IntegerValue:
		n = k.IntegerValue
	case *pb.Value_DoubleValue:
		if k.DoubleValue != math.Trunc(k.DoubleValue) {
			return nil
		}
		n = int64(k.DoubleValue)
	case *pb.Value_StringValue:
		parsed, err := strconv.ParseInt(k.StringValue, 10, 64)
		if err != nil {
			return nil
		}
		n = parsed
	default:
		return nil
	}
	return &n
}

func boolField(payload map[string]*pb.Value, key string) *bool {
	v, ok := payload[key]
	if !ok || v == nil {
		return nil
	}
	b, ok := v.GetKind().(*pb.Value_BoolValue)
	if !ok {
		return nil
	}
	val := b.BoolValue
	return &val
}
