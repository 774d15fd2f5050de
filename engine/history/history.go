// Package history persists analysis reports in Neo4j:
//
//	(:Vehicle {vin})-[:HAS_REPORT]->(:Report)
//	(:Report)-[:FLAGGED]->(:Component {name})
//	(:Report)-[:REPORTED]->(:DTC {code})
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/obdpulse/obdpulse/engine/analyzer"
	"github.com/obdpulse/obdpulse/engine/domain"
	"github.com/obdpulse/obdpulse/pkg/fn"
	"github.com/obdpulse/obdpulse/pkg/repo"
)

// DefaultListLimit applies when ListReports is called without a limit.
const DefaultListLimit = 20

// Record is one stored report with its summary fields.
type Record struct {
	ID          string          `json:"id"`
	VIN         string          `json:"vin"`
	Vehicle     domain.Vehicle  `json:"vehicle"`
	GeneratedAt time.Time       `json:"generated_at"`
	HealthScore int             `json:"health_score"`
	MarketValue float64         `json:"market_value"`
	IssueCount  int             `json:"issue_count"`
	DTCCount    int             `json:"dtc_count"`
	DTCCodes    []string        `json:"dtc_codes"`
	Report      analyzer.Report `json:"report"`
}

// NewRecord wraps report for storage under a fresh random ID.
func NewRecord(snap domain.VehicleSnapshot, report analyzer.Report) Record {
	return Record{
		ID:          uuid.NewString(),
		VIN:         strings.ToUpper(strings.TrimSpace(snap.Vehicle.VIN)),
		Vehicle:     snap.Vehicle,
		GeneratedAt: report.GeneratedAt,
		HealthScore: report.Health.Score,
		MarketValue: report.Resale.MarketValue,
		IssueCount:  len(report.DamagedParts),
		DTCCount:    len(snap.DTCCodes),
		DTCCodes:    uniqueCodes(snap.DTCCodes),
		Report:      report,
	}
}

// ComponentCount is how often a component was flagged across all reports.
type ComponentCount struct {
	Component string `json:"component"`
	Count     int64  `json:"count"`
}

// Store reads and writes report history.
type Store struct {
	sessions repo.SessionFactory
	reports  *repo.Neo4jRepo[Record, string]
}

// New creates a Store. Use repo.DriverSessions to build sessions from a driver.
func New(sessions repo.SessionFactory) *Store {
	return &Store{
		sessions: sessions,
		reports:  repo.NewNeo4jRepo[Record, string](sessions, "Report", recordFromNode),
	}
}

const saveCypher = `MERGE (v:Vehicle {vin: $vin})
SET v.make = $make, v.model = $model, v.year = $year
CREATE (r:Report {id: $id, vin: $vin, make: $make, model: $model, year: $year,
  generated_at: $generated_at, health_score: $health_score, market_value: $market_value,
  issue_count: $issue_count, dtc_count: $dtc_count, dtc_codes: $dtc_codes,
  report_json: $report_json})
CREATE (v)-[:HAS_REPORT]->(r)
FOREACH (p IN $parts |
  MERGE (c:Component {name: p.component})
  CREATE (r)-[:FLAGGED {status: p.status, severity: p.severity}]->(c))
FOREACH (code IN $dtc_codes |
  MERGE (d:DTC {code: code})
  CREATE (r)-[:REPORTED]->(d))`

// SaveReport writes rec, its vehicle and its graph links in one statement.
func (s *Store) SaveReport(ctx context.Context, rec Record) error {
	if rec.VIN == "" {
		return domain.ErrMissingVIN
	}
	body, err := json.Marshal(rec.Report)
	if err != nil {
		return fmt.Errorf("history: encode report: %w", err)
	}

	parts := make([]any, 0, len(rec.Report.DamagedParts))
	for _, p := range rec.Report.DamagedParts {
		parts = append(parts, map[string]any{
			"component": p.Component,
			"status":    string(p.Status),
			"severity":  string(p.Severity),
		})
	}
	dtcs := make([]any, 0, len(rec.DTCCodes))
	for _, code := range rec.DTCCodes {
		dtcs = append(dtcs, code)
	}

	params := map[string]any{
		"id":           rec.ID,
		"vin":          rec.VIN,
		"make":         rec.Vehicle.Make,
		"model":        rec.Vehicle.Model,
		"year":         int64(rec.Vehicle.Year),
		"generated_at": rec.GeneratedAt.UTC().UnixMilli(),
		"health_score": int64(rec.HealthScore),
		"market_value": rec.MarketValue,
		"issue_count":  int64(rec.IssueCount),
		"dtc_count":    int64(rec.DTCCount),
		"dtc_codes":    dtcs,
		"report_json":  string(body),
		"parts":        parts,
	}

	sess := s.sessions(ctx)
	defer sess.Close(ctx)
	res, err := sess.Run(ctx, saveCypher, params)
	if err != nil {
		return fmt.Errorf("history: save report: %w", err)
	}
	for res.Next(ctx) {
	}
	if err := res.Err(); err != nil {
		return fmt.Errorf("history: save report: %w", err)
	}
	return nil
}

// GetReport returns the report with id, or an error wrapping repo.ErrNotFound.
func (s *Store) GetReport(ctx context.Context, id string) (Record, error) {
	return s.reports.Get(ctx, id)
}

// ListReports returns the reports for vin, newest first.
func (s *Store) ListReports(ctx context.Context, vin string, limit int) ([]Record, error) {
	vin = strings.ToUpper(strings.TrimSpace(vin))
	if vin == "" {
		return nil, domain.ErrMissingVIN
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}
	return s.reports.List(ctx, repo.ListOpts{
		Limit:   limit,
		Filter:  map[string]any{"vin": vin},
		OrderBy: "generated_at",
		Desc:    true,
	})
}

const topFlaggedCypher = `MATCH (:Report)-[f:FLAGGED]->(c:Component)
RETURN c.name AS component, count(f) AS flagged
ORDER BY flagged DESC, component ASC
LIMIT $limit`

// TopFlaggedComponents returns the most frequently flagged components.
func (s *Store) TopFlaggedComponents(ctx context.Context, limit int) ([]ComponentCount, error) {
	if limit <= 0 {
		limit = 10
	}
	sess := s.sessions(ctx)
	defer sess.Close(ctx)

	res, err := sess.Run(ctx, topFlaggedCypher, map[string]any{"limit": int64(limit)})
	if err != nil {
		return nil, fmt.Errorf("history: top flagged: %w", err)
	}
	out := []ComponentCount{}
	for res.Next(ctx) {
		rec := res.Record()
		name, _, err := neo4j.GetRecordValue[string](rec, "component")
		if err != nil {
			return nil, fmt.Errorf("history: top flagged: %w", err)
		}
		n, _, err := neo4j.GetRecordValue[int64](rec, "flagged")
		if err != nil {
			return nil, fmt.Errorf("history: top flagged: %w", err)
		}
		out = append(out, ComponentCount{Component: name, Count: n})
	}
	if err := res.Err(); err != nil {
		return nil, fmt.Errorf("history: top flagged: %w", err)
	}
	return out, nil
}

func recordFromNode(rec *neo4j.Record) (Record, error) {
	node, _, err := neo4j.GetRecordValue[neo4j.Node](rec, "n")
	if err != nil {
		return Record{}, fmt.Errorf("history: decode report: %w", err)
	}
	p := node.Props
	r := Record{
		ID:  str(p["id"]),
		VIN: str(p["vin"]),
		Vehicle: domain.Vehicle{
			Make:  str(p["make"]),
			Model: str(p["model"]),
			Year:  int(i64(p["year"])),
			VIN:   str(p["vin"]),
		},
		GeneratedAt: time.UnixMilli(i64(p["generated_at"])).UTC(),
		HealthScore: int(i64(p["health_score"])),
		MarketValue: f64(p["market_value"]),
		IssueCount:  int(i64(p["issue_count"])),
		DTCCount:    int(i64(p["dtc_count"])),
		DTCCodes:    []string{},
	}
	if codes, ok := p["dtc_codes"].([]any); ok {
		for _, c := range codes {
			r.DTCCodes = append(r.DTCCodes, str(c))
		}
	}
	if raw := str(p["report_json"]); raw != "" {
		if err := json.Unmarshal([]byte(raw), &r.Report); err != nil {
			return Record{}, fmt.Errorf("history: decode report %s: %w", r.ID, err)
		}
	}
	return r, nil
}

// uniqueCodes normalizes codes and drops repeats, keeping first-seen order.
func uniqueCodes(codes []string) []string {
	valid := fn.Filter(fn.Map(codes, domain.NormalizeDTC), func(c string) bool { return c != "" })
	out := fn.UniqueBy(valid, func(c string) string { return c })
	if out == nil {
		return []string{}
	}
	return out
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

func i64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	}
	return 0
}

func f64(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	}
	return 0
}
