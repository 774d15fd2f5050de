package metrics

import "time"

// Set is the metric set shared by the API and the analyzer worker.
type Set struct {
	reg *Registry

	AnalysisDuration *Histogram
	DTCHits          *Counter
	DTCMisses        *Counter
	ReportsSaved     *Counter
	FleetVehicles    *Gauge
}

// NewSet registers the obdpulse metrics on reg.
func NewSet(reg *Registry) *Set {
	return &Set{
		reg:              reg,
		AnalysisDuration: reg.Histogram("obdpulse_analysis_duration_seconds", "Time spent running the rule engine", nil),
		DTCHits:          reg.Counter(WithLabels("obdpulse_dtc_lookups_total", "result", "hit"), "DTC catalog lookups"),
		DTCMisses:        reg.Counter(WithLabels("obdpulse_dtc_lookups_total", "result", "miss"), ""),
		ReportsSaved:     reg.Counter("obdpulse_reports_saved_total", "Reports written to history"),
		FleetVehicles:    reg.Gauge("obdpulse_fleet_vehicles", "Vehicles in the loaded fleet file"),
	}
}

// Registry returns the underlying registry.
func (s *Set) Registry() *Registry { return s.reg }

// Analysis records one analysis of the named operation.
func (s *Set) Analysis(op string, started time.Time) {
	s.reg.Counter(WithLabels("obdpulse_analyses_total", "op", op), "Analyses run by operation").Inc()
	s.AnalysisDuration.Since(started)
}

// PartsFlagged counts damaged parts by status.
func (s *Set) PartsFlagged(status string, n int) {
	s.reg.Counter(WithLabels("obdpulse_parts_flagged_total", "status", status), "Damaged parts detected").Add(int64(n))
}

// PipelineMessage counts worker messages by outcome (ok, retry, dlq, malformed).
func (s *Set) PipelineMessage(outcome string) {
	s.reg.Counter(WithLabels("obdpulse_pipeline_messages_total", "outcome", outcome), "Snapshots consumed by the worker").Inc()
}

// BreakerState exports a breaker's state as 0 closed, 1 open, 2 half-open.
func (s *Set) BreakerState(name string, state int) {
	s.reg.Gauge(WithLabels("obdpulse_breaker_state", "name", name), "Circuit breaker state").Set(int64(state))
}
