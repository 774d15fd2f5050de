package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/obdpulse/obdpulse/engine/analyzer"
	"github.com/obdpulse/obdpulse/engine/domain"
	"github.com/obdpulse/obdpulse/engine/dtcsearch"
	"github.com/obdpulse/obdpulse/engine/fleet"
	"github.com/obdpulse/obdpulse/engine/history"
	"github.com/obdpulse/obdpulse/pkg/metrics"
	"github.com/obdpulse/obdpulse/pkg/repo"
	"github.com/obdpulse/obdpulse/pkg/vehiclenlp"
	"github.com/obdpulse/obdpulse/pkg/wshub"
)

const maxBodyBytes = 1 << 20

// historyStore is satisfied by *history.Store.
type historyStore interface {
	GetReport(ctx context.Context, id string) (history.Record, error)
	ListReports(ctx context.Context, vin string, limit int) ([]history.Record, error)
	TopFlaggedComponents(ctx context.Context, limit int) ([]history.ComponentCount, error)
}

type server struct {
	analyzer *analyzer.Analyzer
	fleet    *fleet.Store
	history  historyStore       // nil when Neo4j is not configured
	search   dtcsearch.Searcher // nil when Qdrant is not configured
	stream   *wshub.Hub
	metrics  *metrics.Set
	logger   *slog.Logger
}

func (s *server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.Handle("GET /metrics", s.metrics.Registry().Handler())

	mux.HandleFunc("POST /api/analyze", s.handleAnalyze)
	mux.HandleFunc("POST /api/analyze/parts", s.handleParts)
	mux.HandleFunc("POST /api/analyze/maintenance", s.handleMaintenance)
	mux.HandleFunc("POST /api/analyze/resale", s.handleResale)

	mux.HandleFunc("GET /api/dtc", s.handleCatalog)
	mux.HandleFunc("GET /api/dtc/search", s.handleDTCSearch)
	mux.HandleFunc("GET /api/dtc/{code}", s.handleDTC)

	mux.HandleFunc("GET /api/fleet/stats", s.handleFleetStats)
	mux.HandleFunc("GET /api/vehicles", s.handleVehicles)
	mux.HandleFunc("GET /api/vehicles/{vin}/report", s.handleVehicleReport)
	mux.HandleFunc("GET /api/vehicles/{vin}/history", s.handleVehicleHistory)
	mux.HandleFunc("GET /api/reports/{id}", s.handleReport)
	mux.HandleFunc("GET /api/components/flagged", s.handleFlagged)

	mux.HandleFunc("GET /api/resale/quote", s.handleResaleQuote)
	if s.stream != nil {
		mux.Handle("GET /api/stream", s.stream)
	}
	return mux
}

// --- Helpers ---

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeDomainError maps validation failures to 400 and everything else to 500.
func (s *server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: verr.Error(), Field: verr.Field})
		return
	}
	if errors.Is(err, domain.ErrMissingVIN) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Error("request failed", "path", r.URL.Path, "err", err)
	writeError(w, http.StatusInternalServerError, "internal server error")
}

// decodeSnapshot reads and validates the request body.
func (s *server) decodeSnapshot(w http.ResponseWriter, r *http.Request) (domain.VehicleSnapshot, bool) {
	var snap domain.VehicleSnapshot
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&snap); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return snap, false
	}
	if err := domain.ValidateSnapshot(snap); err != nil {
		s.writeDomainError(w, r, err)
		return snap, false
	}
	return snap, true
}

func (s *server) countParts(parts []analyzer.DamagedPart) {
	for _, p := range parts {
		s.metrics.PartsFlagged(string(p.Status), 1)
	}
}

func queryInt(r *http.Request, key string, fallback int) (int, bool) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// --- Handlers ---

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"fleet":   s.fleet.Current().Len(),
		"history": s.history != nil,
		"search":  s.search != nil,
		"stream":  s.streamClients(),
	})
}

func (s *server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.decodeSnapshot(w, r)
	if !ok {
		return
	}
	start := time.Now()
	report := s.analyzer.Analyze(snap)
	s.metrics.Analysis("report", start)
	s.countParts(report.DamagedParts)
	s.publish("api", history.NewRecord(snap, report))
	writeJSON(w, http.StatusOK, report)
}

func (s *server) handleParts(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.decodeSnapshot(w, r)
	if !ok {
		return
	}
	start := time.Now()
	parts := s.analyzer.AnalyzeDamagedParts(snap)
	s.metrics.Analysis("parts", start)
	s.countParts(parts)
	writeJSON(w, http.StatusOK, parts)
}

func (s *server) handleMaintenance(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.decodeSnapshot(w, r)
	if !ok {
		return
	}
	start := time.Now()
	items := s.analyzer.EstimateMaintenanceSchedule(snap)
	s.metrics.Analysis("maintenance", start)
	writeJSON(w, http.StatusOK, items)
}

func (s *server) handleResale(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.decodeSnapshot(w, r)
	if !ok {
		return
	}
	start := time.Now()
	val := s.analyzer.EstimateResaleValue(snap)
	s.metrics.Analysis("resale", start)
	writeJSON(w, http.StatusOK, val)
}

func (s *server) handleCatalog(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, analyzer.Catalog())
}

func (s *server) handleDTC(w http.ResponseWriter, r *http.Request) {
	code := domain.NormalizeDTC(r.PathValue("code"))
	if !domain.ValidDTC(code) {
		writeError(w, http.StatusBadRequest, "invalid DTC code")
		return
	}
	info, ok := analyzer.LookupDTC(code)
	if !ok {
		s.metrics.DTCMisses.Inc()
		writeError(w, http.StatusNotFound, "unknown DTC code")
		return
	}
	s.metrics.DTCHits.Inc()
	writeJSON(w, http.StatusOK, info)
}

func (s *server) handleDTCSearch(w http.ResponseWriter, r *http.Request) {
	if s.search == nil {
		writeError(w, http.StatusServiceUnavailable, "dtc search is not configured")
		return
	}
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeError(w, http.StatusBadRequest, "q is required")
		return
	}
	k, ok := queryInt(r, "k", dtcsearch.DefaultTopK)
	if !ok {
		writeError(w, http.StatusBadRequest, "k must be a non-negative integer")
		return
	}
	hits, err := s.search.Search(r.Context(), q, k)
	if err != nil {
		s.logger.Error("dtc search failed", "err", err)
		writeError(w, http.StatusBadGateway, "dtc search failed")
		return
	}
	writeJSON(w, http.StatusOK, hits)
}

func (s *server) handleFleetStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, fleet.Summarize(s.fleet.Current(), s.analyzer))
}

// vehicleSummary is one row of GET /api/vehicles.
type vehicleSummary struct {
	VIN      string         `json:"vin"`
	Vehicle  domain.Vehicle `json:"vehicle"`
	Mileage  float64        `json:"mileage"`
	DTCCount int            `json:"dtc_count"`
}

func (s *server) handleVehicles(w http.ResponseWriter, _ *http.Request) {
	list := s.fleet.List()
	out := make([]vehicleSummary, 0, len(list))
	for _, snap := range list {
		out = append(out, vehicleSummary{
			VIN:      snap.Vehicle.VIN,
			Vehicle:  snap.Vehicle,
			Mileage:  snap.Sensors.Mileage,
			DTCCount: len(snap.DTCCodes),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *server) handleVehicleReport(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.fleet.Get(r.PathValue("vin"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown vehicle")
		return
	}
	start := time.Now()
	report := s.analyzer.Analyze(snap)
	s.metrics.Analysis("report", start)
	s.countParts(report.DamagedParts)
	s.publish("api", history.NewRecord(snap, report))
	writeJSON(w, http.StatusOK, report)
}

func (s *server) handleVehicleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, "report history is not configured")
		return
	}
	limit, ok := queryInt(r, "limit", history.DefaultListLimit)
	if !ok {
		writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
		return
	}
	records, err := s.history.ListReports(r.Context(), r.PathValue("vin"), limit)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *server) handleReport(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, "report history is not configured")
		return
	}
	rec, err := s.history.GetReport(r.Context(), r.PathValue("id"))
	if errors.Is(err, repo.ErrNotFound) {
		writeError(w, http.StatusNotFound, "report not found")
		return
	}
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *server) handleFlagged(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, "report history is not configured")
		return
	}
	limit, ok := queryInt(r, "limit", 10)
	if !ok {
		writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
		return
	}
	counts, err := s.history.TopFlaggedComponents(r.Context(), limit)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

// quoteResponse is the body of GET /api/resale/quote.
type quoteResponse struct {
	Vehicle   domain.Vehicle           `json:"vehicle"`
	Valuation analyzer.ResaleValuation `json:"valuation"`
}

// handleResaleQuote values a vehicle described in free text, assuming
// healthy sensors and no trouble codes.
func (s *server) handleResaleQuote(w http.ResponseWriter, r *http.Request) {
	v, ok := vehiclenlp.ParseVehicle(r.URL.Query().Get("vehicle"))
	if !ok {
		writeError(w, http.StatusBadRequest, "could not read year, make and model from vehicle")
		return
	}
	if err := domain.ValidateKnownVehicle(v); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	mileage, ok := queryInt(r, "mileage", 0)
	if !ok {
		writeError(w, http.StatusBadRequest, "mileage must be a non-negative integer")
		return
	}
	snap := nominalSnapshot(v, float64(mileage))
	start := time.Now()
	val := s.analyzer.EstimateResaleValue(snap)
	s.metrics.Analysis("resale", start)
	writeJSON(w, http.StatusOK, quoteResponse{Vehicle: v, Valuation: val})
}

// nominalSnapshot is a healthy snapshot of v at mileage.
func nominalSnapshot(v domain.Vehicle, mileage float64) domain.VehicleSnapshot {
	return domain.VehicleSnapshot{
		Vehicle:  v,
		DTCCodes: []string{},
		Sensors: domain.Sensors{
			EngineTemp:     90,
			CoolantLevel:   90,
			BatteryVoltage: 12.6,
			EngineLoad:     40,
			IntakeTemp:     25,
			Mileage:        mileage,
		},
	}
}

// reportEvent is streamed to /api/stream clients for every finished
// analysis, from this API or from the analyzer worker.
type reportEvent struct {
	Source      string         `json:"source"`
	ReportID    string         `json:"report_id"`
	VIN         string         `json:"vin,omitempty"`
	Vehicle     domain.Vehicle `json:"vehicle"`
	GeneratedAt time.Time      `json:"generated_at"`
	HealthScore int            `json:"health_score"`
	MarketValue float64        `json:"market_value"`
	IssueCount  int            `json:"issue_count"`
	DTCCodes    []string       `json:"dtc_codes"`
}

func (s *server) publish(source string, rec history.Record) {
	if s.stream == nil {
		return
	}
	_, err := s.stream.Broadcast("report", reportEvent{
		Source:      source,
		ReportID:    rec.ID,
		VIN:         rec.VIN,
		Vehicle:     rec.Vehicle,
		GeneratedAt: rec.GeneratedAt,
		HealthScore: rec.HealthScore,
		MarketValue: rec.MarketValue,
		IssueCount:  rec.IssueCount,
		DTCCodes:    rec.DTCCodes,
	})
	if err != nil {
		s.logger.Error("stream broadcast", "err", err)
	}
}

func (s *server) streamClients() int {
	if s.stream == nil {
		return 0
	}
	return s.stream.Count()
}
