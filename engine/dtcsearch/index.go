// Package dtcsearch answers free-text symptom queries ("rough idle and
// check engine light") with matching catalog trouble codes, using a Qdrant
// collection of embedded catalog rows.
package dtcsearch

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/obdpulse/obdpulse/engine/analyzer"
	"github.com/obdpulse/obdpulse/engine/domain"
	"github.com/obdpulse/obdpulse/pkg/fn"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const (
	DefaultTopK = 5
	MaxTopK     = 50

	embedWorkers = 4
	upsertBatch  = 64
)

// Match sources.
const (
	SourceCode   = "code"
	SourceVector = "vector"
)

// Embedder turns text into a vector. *ollama.Client satisfies it.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// PointsAPI is the subset of pb.PointsClient the index uses.
type PointsAPI interface {
	Upsert(ctx context.Context, in *pb.UpsertPoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
	Search(ctx context.Context, in *pb.SearchPoints, opts ...grpc.CallOption) (*pb.SearchResponse, error)
}

// CollectionsAPI is the subset of pb.CollectionsClient the index uses.
type CollectionsAPI interface {
	List(ctx context.Context, in *pb.ListCollectionsRequest, opts ...grpc.CallOption) (*pb.ListCollectionsResponse, error)
	Create(ctx context.Context, in *pb.CreateCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
}

// Hit is one search result.
type Hit struct {
	analyzer.DTCInfo
	Score  float32 `json:"score"`
	Source string  `json:"source"`
}

// Index owns the DTC collection in Qdrant.
type Index struct {
	conn        *grpc.ClientConn
	points      PointsAPI
	collections CollectionsAPI
	collection  string
	embedder    Embedder
}

// New connects to Qdrant at the gRPC address addr.
func New(addr, collection string, embedder Embedder) (*Index, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("dtcsearch: dial qdrant %s: %w", addr, err)
	}
	idx := NewWithClients(pb.NewPointsClient(conn), pb.NewCollectionsClient(conn), collection, embedder)
	idx.conn = conn
	return idx, nil
}

// NewWithClients builds an Index over existing clients.
func NewWithClients(points PointsAPI, collections CollectionsAPI, collection string, embedder Embedder) *Index {
	return &Index{
		points:      points,
		collections: collections,
		collection:  collection,
		embedder:    embedder,
	}
}

// Close closes the gRPC connection opened by New.
func (x *Index) Close() error {
	if x.conn == nil {
		return nil
	}
	return x.conn.Close()
}

// EnsureCollection creates the collection with cosine distance if missing.
func (x *Index) EnsureCollection(ctx context.Context, dims int) error {
	list, err := x.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("dtcsearch: list collections: %w", err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == x.collection {
			return nil
		}
	}
	_, err = x.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: x.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{Size: uint64(dims), Distance: pb.Distance_Cosine},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("dtcsearch: create collection %s: %w", x.collection, err)
	}
	return nil
}

var pointNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://obdpulse.dev/dtc"))

// PointID is the stable point ID of a catalog code, so re-indexing
// overwrites instead of duplicating.
func PointID(code string) string {
	return uuid.NewSHA1(pointNamespace, []byte(domain.NormalizeDTC(code))).String()
}

func documentText(d analyzer.DTCInfo) string {
	return fmt.Sprintf("%s %s. Affects the %s. Possible causes: %s.", d.Code, d.Description, d.PartAffected, d.PotentialCause)
}

// IndexCatalog embeds every catalog row and upserts it. It returns the
// number of points written.
func (x *Index) IndexCatalog(ctx context.Context) (int, error) {
	catalog := analyzer.Catalog()
	vectors := fn.ParMapResult(catalog, embedWorkers, func(d analyzer.DTCInfo) fn.Result[[]float32] {
		return fn.FromPair(x.embedder.Embed(ctx, documentText(d)))
	})
	embedded, err := fn.Collect(vectors).Unwrap()
	if err != nil {
		return 0, fmt.Errorf("dtcsearch: embed catalog: %w", err)
	}

	points := make([]*pb.PointStruct, len(catalog))
	for i, d := range catalog {
		points[i] = &pb.PointStruct{
			Id:      &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: PointID(d.Code)}},
			Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: embedded[i]}}},
			Payload: map[string]*pb.Value{
				"code":        stringValue(d.Code),
				"description": stringValue(d.Description),
				"part":        stringValue(d.PartAffected),
				"severity":    stringValue(string(d.Severity)),
			},
		}
	}

	wait := true
	written := 0
	for _, batch := range fn.Chunk(points, upsertBatch) {
		if _, err := x.points.Upsert(ctx, &pb.UpsertPoints{
			CollectionName: x.collection,
			Wait:           &wait,
			Points:         batch,
		}); err != nil {
			return written, fmt.Errorf("dtcsearch: upsert %d points: %w", len(batch), err)
		}
		written += len(batch)
	}
	return written, nil
}

func stringValue(s string) *pb.Value {
	return &pb.Value{Kind: &pb.Value_StringValue{StringValue: s}}
}

var codeRe = regexp.MustCompile(`\b[PCBU][0-3][0-9A-F]{3}\b`)

// Search returns up to topK catalog codes for query. Codes spelled out in
// the query come first with score 1, followed by vector matches; each code
// appears once.
func (x *Index) Search(ctx context.Context, query string, topK int) ([]Hit, error) {
	if topK <= 0 {
		topK = DefaultTopK
	}
	topK = min(topK, MaxTopK)

	hits := []Hit{}
	seen := map[string]bool{}
	for _, code := range codeRe.FindAllString(strings.ToUpper(query), -1) {
		info, ok := analyzer.LookupDTC(code)
		if !ok || seen[info.Code] {
			continue
		}
		seen[info.Code] = true
		hits = append(hits, Hit{DTCInfo: info, Score: 1, Source: SourceCode})
	}
	if len(hits) >= topK {
		return hits[:topK], nil
	}

	vec, err := x.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("dtcsearch: embed query: %w", err)
	}
	// Explicit hits can come back from the index too.
	limit := uint64(topK + len(hits))
	resp, err := x.points.Search(ctx, &pb.SearchPoints{
		CollectionName: x.collection,
		Vector:         vec,
		Limit:          limit,
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("dtcsearch: search: %w", err)
	}

	for _, r := range resp.GetResult() {
		code := r.GetPayload()["code"].GetStringValue()
		info, ok := analyzer.LookupDTC(code)
		if !ok || seen[info.Code] {
			continue
		}
		seen[info.Code] = true
		hits = append(hits, Hit{DTCInfo: info, Score: r.GetScore(), Source: SourceVector})
		if len(hits) == topK {
			break
		}
	}
	return hits, nil
}
