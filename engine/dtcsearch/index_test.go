package dtcsearch

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/obdpulse/obdpulse/engine/analyzer"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
)

type mockPoints struct {
	upserted  *pb.UpsertPoints
	upsertErr error
	searched  *pb.SearchPoints
	searchRes []*pb.ScoredPoint
	searchErr error
}

func (m *mockPoints) Upsert(_ context.Context, in *pb.UpsertPoints, _ ...grpc.CallOption) (*pb.PointsOperationResponse, error) {
	m.upserted = in
	return &pb.PointsOperationResponse{}, m.upsertErr
}

func (m *mockPoints) Search(_ context.Context, in *pb.SearchPoints, _ ...grpc.CallOption) (*pb.SearchResponse, error) {
	m.searched = in
	if m.searchErr != nil {
		return nil, m.searchErr
	}
	res := m.searchRes
	if n := int(in.GetLimit()); n < len(res) {
		res = res[:n]
	}
	return &pb.SearchResponse{Result: res}, nil
}

type mockCollections struct {
	existing  []string
	listErr   error
	created   *pb.CreateCollection
	createErr error
}

func (m *mockCollections) List(_ context.Context, _ *pb.ListCollectionsRequest, _ ...grpc.CallOption) (*pb.ListCollectionsResponse, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	resp := &pb.ListCollectionsResponse{}
	for _, name := range m.existing {
		resp.Collections = append(resp.Collections, &pb.CollectionDescription{Name: name})
	}
	return resp, nil
}

func (m *mockCollections) Create(_ context.Context, in *pb.CreateCollection, _ ...grpc.CallOption) (*pb.CollectionOperationResponse, error) {
	m.created = in
	return &pb.CollectionOperationResponse{Result: m.createErr == nil}, m.createErr
}

type fakeEmbedder struct {
	mu     sync.Mutex
	texts  []string
	failOn string
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	if f.failOn != "" && strings.Contains(text, f.failOn) {
		return nil, errors.New("embed failed")
	}
	return []float32{float32(len(text)), 1}, nil
}

func scored(code string, score float32) *pb.ScoredPoint {
	return &pb.ScoredPoint{
		Id:      &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: PointID(code)}},
		Score:   score,
		Payload: map[string]*pb.Value{"code": stringValue(code)},
	}
}

func TestEnsureCollection(t *testing.T) {
	cols := &mockCollections{existing: []string{"dtc_catalog"}}
	idx := NewWithClients(&mockPoints{}, cols, "dtc_catalog", &fakeEmbedder{})
	if err := idx.EnsureCollection(context.Background(), 768); err != nil {
		t.Fatal(err)
	}
	if cols.created != nil {
		t.Error("existing collection should not be recreated")
	}

	cols = &mockCollections{}
	idx = NewWithClients(&mockPoints{}, cols, "dtc_catalog", &fakeEmbedder{})
	if err := idx.EnsureCollection(context.Background(), 768); err != nil {
		t.Fatal(err)
	}
	if cols.created == nil || cols.created.GetVectorsConfig().GetParams().GetSize() != 768 {
		t.Errorf("created = %v", cols.created)
	}

	for _, cols := range []*mockCollections{{listErr: errors.New("down")}, {createErr: errors.New("denied")}} {
		idx := NewWithClients(&mockPoints{}, cols, "dtc_catalog", &fakeEmbedder{})
		if err := idx.EnsureCollection(context.Background(), 4); err == nil {
			t.Error("expected error")
		}
	}
}

func TestPointID_Stable(t *testing.T) {
	if PointID("p0300") != PointID(" P0300 ") {
		t.Error("PointID should normalize the code")
	}
	if PointID("P0300") == PointID("P0301") {
		t.Error("distinct codes should get distinct IDs")
	}
}

func TestIndexCatalog(t *testing.T) {
	pts := &mockPoints{}
	emb := &fakeEmbedder{}
	idx := NewWithClients(pts, &mockCollections{}, "dtc_catalog", emb)
	n, err := idx.IndexCatalog(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	catalog := analyzer.Catalog()
	if n != len(catalog) || len(pts.upserted.GetPoints()) != len(catalog) {
		t.Fatalf("n = %d, points = %d, want %d", n, len(pts.upserted.GetPoints()), len(catalog))
	}
	first := pts.upserted.GetPoints()[0]
	if first.GetId().GetUuid() != PointID(catalog[0].Code) {
		t.Error("point ID should derive from the code")
	}
	if first.GetPayload()["code"].GetStringValue() != catalog[0].Code {
		t.Errorf("payload = %v", first.GetPayload())
	}
	if len(emb.texts) != len(catalog) {
		t.Errorf("embedded %d texts", len(emb.texts))
	}

	failing := NewWithClients(&mockPoints{}, &mockCollections{}, "dtc_catalog", &fakeEmbedder{failOn: "P0420"})
	if _, err := failing.IndexCatalog(context.Background()); err == nil {
		t.Error("expected embed error")
	}
	upsertFail := NewWithClients(&mockPoints{upsertErr: errors.New("full")}, &mockCollections{}, "dtc_catalog", &fakeEmbedder{})
	if _, err := upsertFail.IndexCatalog(context.Background()); err == nil {
		t.Error("expected upsert error")
	}
}

func codes(hits []Hit) string {
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.Code
	}
	return strings.Join(out, ",")
}

func TestSearch_ExplicitCodesFirst(t *testing.T) {
	pts := &mockPoints{searchRes: []*pb.ScoredPoint{
		scored("P0171", 0.91),
		scored("P0300", 0.88),
		scored("P9999", 0.80),
		scored("P0128", 0.75),
	}}
	idx := NewWithClients(pts, &mockCollections{}, "dtc_catalog", &fakeEmbedder{})

	hits, err := idx.Search(context.Background(), "got p0300 and rough idle", 3)
	if err != nil {
		t.Fatal(err)
	}
	if got := codes(hits); got != "P0300,P0171,P0128" {
		t.Errorf("codes = %s", got)
	}
	if hits[0].Score != 1 || hits[0].Source != SourceCode {
		t.Errorf("explicit hit = %+v", hits[0])
	}
	if hits[1].Source != SourceVector || hits[1].Score != 0.91 {
		t.Errorf("vector hit = %+v", hits[1])
	}
	if pts.searched.GetLimit() != 4 || pts.searched.GetCollectionName() != "dtc_catalog" {
		t.Errorf("search request = %v", pts.searched)
	}
}

func TestSearch_FillsTopKPastDuplicates(t *testing.T) {
	pts := &mockPoints{searchRes: []*pb.ScoredPoint{
		scored("P0300", 0.95),
		scored("P9999", 0.90),
		scored("P0171", 0.85),
		scored("P0128", 0.80),
	}}
	idx := NewWithClients(pts, &mockCollections{}, "dtc_catalog", &fakeEmbedder{})

	hits, err := idx.Search(context.Background(), "P0300 misfire", 3)
	if err != nil {
		t.Fatal(err)
	}
	if got := codes(hits); got != "P0300,P0171,P0128" {
		t.Errorf("codes = %s, want three hits", got)
	}
}

func TestSearch_OnlyCodesSkipsVectorSearch(t *testing.T) {
	pts := &mockPoints{}
	emb := &fakeEmbedder{}
	idx := NewWithClients(pts, &mockCollections{}, "dtc_catalog", emb)
	hits, err := idx.Search(context.Background(), "P0420 P0420 P0171", 2)
	if err != nil {
		t.Fatal(err)
	}
	if got := codes(hits); got != "P0420,P0171" {
		t.Errorf("codes = %s", got)
	}
	if pts.searched != nil || len(emb.texts) != 0 {
		t.Error("vector search should be skipped once topK is filled")
	}
}

func TestSearch_Defaults(t *testing.T) {
	pts := &mockPoints{}
	idx := NewWithClients(pts, &mockCollections{}, "dtc_catalog", &fakeEmbedder{})
	if _, err := idx.Search(context.Background(), "squeal", 0); err != nil {
		t.Fatal(err)
	}
	if pts.searched.GetLimit() != DefaultTopK {
		t.Errorf("limit = %d", pts.searched.GetLimit())
	}
	if _, err := idx.Search(context.Background(), "squeal", 500); err != nil {
		t.Fatal(err)
	}
	if pts.searched.GetLimit() != MaxTopK {
		t.Errorf("limit = %d", pts.searched.GetLimit())
	}
}

func TestSearch_Errors(t *testing.T) {
	idx := NewWithClients(&mockPoints{}, &mockCollections{}, "c", &fakeEmbedder{failOn: "noise"})
	if _, err := idx.Search(context.Background(), "noise", 3); err == nil {
		t.Error("expected embed error")
	}
	idx = NewWithClients(&mockPoints{searchErr: errors.New("timeout")}, &mockCollections{}, "c", &fakeEmbedder{})
	if _, err := idx.Search(context.Background(), "noise", 3); err == nil {
		t.Error("expected search error")
	}
}

func TestClose_WithoutConn(t *testing.T) {
	if err := NewWithClients(&mockPoints{}, &mockCollections{}, "c", nil).Close(); err != nil {
		t.Error(err)
	}
}
