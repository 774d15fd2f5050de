package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/obdpulse/obdpulse/engine/analyzer"
	"github.com/obdpulse/obdpulse/engine/dtcsearch"
	"github.com/obdpulse/obdpulse/engine/fleet"
	"github.com/obdpulse/obdpulse/engine/history"
	"github.com/obdpulse/obdpulse/pkg/metrics"
	"github.com/obdpulse/obdpulse/pkg/repo"
	"github.com/obdpulse/obdpulse/pkg/resilience"
	"github.com/obdpulse/obdpulse/pkg/wshub"
)

var testNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

const fleetYAML = `
vehicles:
  - vehicle: {make: Toyota, model: Camry, year: 2020, vin: 4T1B11HK5LU123456}
    dtc_codes: [P0300]
    sensors: {engine_temp: 90, coolant_level: 85, battery_voltage: 12.6, engine_load: 35, intake_temp: 25, mileage: 50000}
`

const nominalBody = `{"vehicle":{"make":"Toyota","model":"Camry","year":2020},"dtc_codes":[],
"sensors":{"engine_temp":90,"coolant_level":85,"battery_voltage":12.6,"engine_load":35,"intake_temp":25,"mileage":50000}}`

type fakeHistory struct {
	records []history.Record
	err     error
}

func (f *fakeHistory) GetReport(_ context.Context, id string) (history.Record, error) {
	for _, r := range f.records {
		if r.ID == id {
			return r, nil
		}
	}
	return history.Record{}, fmt.Errorf("Report %s: %w", id, repo.ErrNotFound)
}

func (f *fakeHistory) ListReports(_ context.Context, vin string, _ int) ([]history.Record, error) {
	return f.records, f.err
}

func (f *fakeHistory) TopFlaggedComponents(context.Context, int) ([]history.ComponentCount, error) {
	return []history.ComponentCount{{Component: "Battery", Count: 3}}, f.err
}

type fakeSearch struct{ err error }

func (f fakeSearch) Search(_ context.Context, q string, k int) ([]dtcsearch.Hit, error) {
	if f.err != nil {
		return nil, f.err
	}
	info, _ := analyzer.LookupDTC("P0300")
	return []dtcsearch.Hit{{DTCInfo: info, Score: 0.9, Source: dtcsearch.SourceVector}}, nil
}

func newTestServer(t *testing.T) *server {
	t.Helper()
	f, err := fleet.Parse([]byte(fleetYAML))
	if err != nil {
		t.Fatal(err)
	}
	return &server{
		analyzer: analyzer.New(analyzer.At(testNow)),
		fleet:    fleet.NewStore(f),
		metrics:  metrics.NewSet(metrics.New()),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = bytes.NewBufferString(body)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, rd))
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return v
}

func TestHealth(t *testing.T) {
	h := newHandler(newTestServer(t), "*", nil)
	rec := do(t, h, "GET", "/api/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decode[map[string]any](t, rec)
	if body["status"] != "ok" || body["fleet"] != float64(1) || body["history"] != false {
		t.Errorf("body = %v", body)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("request id header missing")
	}
}

func TestAnalyze(t *testing.T) {
	s := newTestServer(t)
	h := newHandler(s, "*", nil)
	rec := do(t, h, "POST", "/api/analyze", nominalBody)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	report := decode[analyzer.Report](t, rec)
	if report.Health.Score != 100 || report.Resale.MarketValue != 21120 {
		t.Errorf("score = %d market = %v", report.Health.Score, report.Resale.MarketValue)
	}
	if !report.GeneratedAt.Equal(testNow) {
		t.Errorf("generated_at = %v", report.GeneratedAt)
	}

	out := s.metrics.Registry().Render()
	if !strings.Contains(out, `obdpulse_analyses_total{op="report"} 1`) {
		t.Error("analysis not counted")
	}
	if !strings.Contains(out, `route="POST /api/analyze"`) {
		t.Error("route pattern not recorded")
	}
}

func TestAnalyzeOperations(t *testing.T) {
	h := newHandler(newTestServer(t), "*", nil)
	hot := strings.Replace(nominalBody, `"engine_temp":90`, `"engine_temp":118`, 1)

	parts := decode[[]analyzer.DamagedPart](t, do(t, h, "POST", "/api/analyze/parts", hot))
	if len(parts) != 1 || parts[0].Issue != "Engine overheating" {
		t.Errorf("parts = %+v", parts)
	}

	items := decode[[]analyzer.MaintenanceItem](t, do(t, h, "POST", "/api/analyze/maintenance", nominalBody))
	if len(items) == 0 {
		t.Error("maintenance schedule empty")
	}

	val := decode[analyzer.ResaleValuation](t, do(t, h, "POST", "/api/analyze/resale", nominalBody))
	if val.BaseValue != 24000 || val.TradeInValue != 17318 {
		t.Errorf("valuation = %+v", val)
	}
}

func TestAnalyze_BadInput(t *testing.T) {
	h := newHandler(newTestServer(t), "*", nil)
	tests := []struct {
		name, body, field string
	}{
		{"not json", "nope", ""},
		{"bad sensor", strings.Replace(nominalBody, `"coolant_level":85`, `"coolant_level":140`, 1), "sensors.coolant_level"},
		{"bad dtc", strings.Replace(nominalBody, `"dtc_codes":[]`, `"dtc_codes":["OOPS"]`, 1), "dtc_codes[0]"},
		{"bad year", strings.Replace(nominalBody, `"year":2020`, `"year":1960`, 1), "year"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, "POST", "/api/analyze", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d", rec.Code)
			}
			if body := decode[errorResponse](t, rec); body.Field != tt.field {
				t.Errorf("field = %q, want %q", body.Field, tt.field)
			}
		})
	}
}

func TestDTCEndpoints(t *testing.T) {
	s := newTestServer(t)
	h := newHandler(s, "*", nil)

	rec := do(t, h, "GET", "/api/dtc/p0420", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if info := decode[analyzer.DTCInfo](t, rec); info.PartAffected != "Exhaust" {
		t.Errorf("info = %+v", info)
	}
	if rec := do(t, h, "GET", "/api/dtc/P1234", ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown code status = %d", rec.Code)
	}
	if rec := do(t, h, "GET", "/api/dtc/hello", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("malformed code status = %d", rec.Code)
	}
	if s.metrics.DTCHits.Value() != 1 || s.metrics.DTCMisses.Value() != 1 {
		t.Errorf("hits=%d misses=%d", s.metrics.DTCHits.Value(), s.metrics.DTCMisses.Value())
	}

	catalog := decode[[]analyzer.DTCInfo](t, do(t, h, "GET", "/api/dtc", ""))
	if len(catalog) != len(analyzer.Catalog()) {
		t.Errorf("catalog = %d rows", len(catalog))
	}
}

func TestDTCSearch(t *testing.T) {
	s := newTestServer(t)
	h := newHandler(s, "*", nil)
	if rec := do(t, h, "GET", "/api/dtc/search?q=misfire", ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("unconfigured status = %d", rec.Code)
	}

	s.search = fakeSearch{}
	rec := do(t, h, "GET", "/api/dtc/search?q=rough+idle&k=3", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if hits := decode[[]dtcsearch.Hit](t, rec); len(hits) != 1 || hits[0].Code != "P0300" {
		t.Errorf("hits = %+v", hits)
	}
	if rec := do(t, h, "GET", "/api/dtc/search", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("missing q status = %d", rec.Code)
	}
	if rec := do(t, h, "GET", "/api/dtc/search?q=x&k=-1", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("bad k status = %d", rec.Code)
	}

	s.search = fakeSearch{err: errors.New("qdrant down")}
	if rec := do(t, h, "GET", "/api/dtc/search?q=x", ""); rec.Code != http.StatusBadGateway {
		t.Errorf("backend error status = %d", rec.Code)
	}
}

func TestVehicles(t *testing.T) {
	h := newHandler(newTestServer(t), "*", nil)

	list := decode[[]vehicleSummary](t, do(t, h, "GET", "/api/vehicles", ""))
	if len(list) != 1 || list[0].DTCCount != 1 || list[0].Mileage != 50000 {
		t.Errorf("list = %+v", list)
	}

	rec := do(t, h, "GET", "/api/vehicles/4t1b11hk5lu123456/report", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if report := decode[analyzer.Report](t, rec); report.Health.Score != 75 {
		t.Errorf("score = %d, want 75", report.Health.Score)
	}
	if rec := do(t, h, "GET", "/api/vehicles/NOPE/report", ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown vin status = %d", rec.Code)
	}
}

func TestHistoryEndpoints(t *testing.T) {
	s := newTestServer(t)
	h := newHandler(s, "*", nil)
	for _, path := range []string{"/api/vehicles/X/history", "/api/reports/r1", "/api/components/flagged"} {
		if rec := do(t, h, "GET", path, ""); rec.Code != http.StatusServiceUnavailable {
			t.Errorf("%s unconfigured status = %d", path, rec.Code)
		}
	}

	s.history = &fakeHistory{records: []history.Record{{ID: "r1", VIN: "4T1B11HK5LU123456", HealthScore: 75}}}
	records := decode[[]history.Record](t, do(t, h, "GET", "/api/vehicles/4T1B11HK5LU123456/history?limit=5", ""))
	if len(records) != 1 || records[0].HealthScore != 75 {
		t.Errorf("records = %+v", records)
	}
	if rec := do(t, h, "GET", "/api/vehicles/X/history?limit=abc", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("bad limit status = %d", rec.Code)
	}
	if rec := do(t, h, "GET", "/api/reports/r1", ""); rec.Code != http.StatusOK {
		t.Errorf("report status = %d", rec.Code)
	}
	if rec := do(t, h, "GET", "/api/reports/missing", ""); rec.Code != http.StatusNotFound {
		t.Errorf("missing report status = %d", rec.Code)
	}
	counts := decode[[]history.ComponentCount](t, do(t, h, "GET", "/api/components/flagged", ""))
	if len(counts) != 1 || counts[0].Count != 3 {
		t.Errorf("counts = %+v", counts)
	}

	s.history = &fakeHistory{err: errors.New("neo4j down")}
	if rec := do(t, h, "GET", "/api/vehicles/X/history", ""); rec.Code != http.StatusInternalServerError {
		t.Errorf("backend error status = %d", rec.Code)
	}
}

func TestResaleQuote(t *testing.T) {
	h := newHandler(newTestServer(t), "*", nil)
	rec := do(t, h, "GET", "/api/resale/quote?vehicle=my+2020+toyota+camry&mileage=50000", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	q := decode[quoteResponse](t, rec)
	if q.Vehicle.Make != "Toyota" || q.Vehicle.Model != "Camry" || q.Valuation.MarketValue != 21120 {
		t.Errorf("quote = %+v", q)
	}

	if rec := do(t, h, "GET", "/api/resale/quote?vehicle=a+nice+car", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("unparseable status = %d", rec.Code)
	}
	if rec := do(t, h, "GET", "/api/resale/quote?vehicle=2020+toyota+camry&mileage=lots", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("bad mileage status = %d", rec.Code)
	}
}

func TestMiddlewareStack(t *testing.T) {
	s := newTestServer(t)
	limiter := resilience.NewKeyedLimiter(resilience.LimiterOpts{Rate: 0.001, Burst: 1})
	h := newHandler(s, "https://dash.example", limiter)

	rec := do(t, h, "OPTIONS", "/api/analyze", "")
	if rec.Code != http.StatusNoContent || rec.Header().Get("Access-Control-Allow-Origin") != "https://dash.example" {
		t.Errorf("preflight = %d %v", rec.Code, rec.Header())
	}
	if rec := do(t, h, "GET", "/api/health", ""); rec.Code != http.StatusOK {
		t.Errorf("first request status = %d", rec.Code)
	}
	if rec := do(t, h, "GET", "/api/health", ""); rec.Code != http.StatusTooManyRequests {
		t.Errorf("second request status = %d, want 429", rec.Code)
	}

	rec = do(t, newHandler(s, "*", nil), "GET", "/metrics", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "obdpulse_http_requests_total") {
		t.Errorf("metrics = %d %s", rec.Code, rec.Body)
	}
}

func TestFleetStats(t *testing.T) {
	h := newHandler(newTestServer(t), "*", nil)
	rec := do(t, h, "GET", "/api/fleet/stats", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	st := decode[fleet.Stats](t, rec)
	if st.Vehicles != 1 || st.HealthScore.Mean != 75 || st.HealthScore.StdDev != 0 {
		t.Errorf("stats = %+v", st)
	}
	if len(st.Components) != 1 || st.Components[0].Vehicles != 1 {
		t.Errorf("components = %+v", st.Components)
	}
}

func TestStream_BroadcastsAnalyses(t *testing.T) {
	s := newTestServer(t)
	s.stream = wshub.New("*")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.stream.Run(ctx)

	srv := httptest.NewServer(newHandler(s, "*", nil))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/api/stream", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	deadline := time.Now().Add(2 * time.Second)
	for s.stream.Count() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("stream client not registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	body := strings.Replace(nominalBody, `"year":2020}`, `"year":2020,"vin":"4T1B11HK5LU123456"}`, 1)
	resp, err := http.Post(srv.URL+"/api/analyze", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("analyze status = %d", resp.StatusCode)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg struct {
		Event string      `json:"event"`
		Data  reportEvent `json:"data"`
	}
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatal(err)
	}
	if msg.Event != "report" || msg.Data.Source != "api" || msg.Data.VIN != "4T1B11HK5LU123456" || msg.Data.HealthScore != 100 {
		t.Errorf("event = %+v", msg)
	}

	s.publish("worker", history.Record{ID: "r9", VIN: "1FTEW1E53KFA00001", HealthScore: 10})
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatal(err)
	}
	if msg.Data.Source != "worker" || msg.Data.ReportID != "r9" {
		t.Errorf("worker event = %+v", msg)
	}

	resp, err = http.Get(srv.URL + "/api/vehicles/4T1B11HK5LU123456/report")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("vehicle report status = %d", resp.StatusCode)
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var fleetMsg struct {
		Event string      `json:"event"`
		Data  reportEvent `json:"data"`
	}
	if err := conn.ReadJSON(&fleetMsg); err != nil {
		t.Fatal(err)
	}
	d := fleetMsg.Data
	if d.Source != "api" || d.HealthScore != 75 || len(d.DTCCodes) != 1 || d.DTCCodes[0] != "P0300" || d.ReportID == "" {
		t.Errorf("fleet report event = %+v", fleetMsg)
	}
}
