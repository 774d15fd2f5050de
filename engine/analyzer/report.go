package analyzer

import (
	"time"

	"github.com/obdpulse/obdpulse/engine/domain"
)

// Report is the full analysis of one snapshot.
type Report struct {
	Vehicle      domain.Vehicle    `json:"vehicle"`
	GeneratedAt  time.Time         `json:"generated_at"`
	Health       Health            `json:"health"`
	Readings     []SensorReading   `json:"readings"`
	DamagedParts []DamagedPart     `json:"damaged_parts"`
	Maintenance  []MaintenanceItem `json:"maintenance"`
	Resale       ResaleValuation   `json:"resale"`
	DTCs         DTCSummary        `json:"dtcs"`
}

// Analyze runs every derivation over snap.
func (a *Analyzer) Analyze(snap domain.VehicleSnapshot) Report {
	parts := a.AnalyzeDamagedParts(snap)
	return Report{
		Vehicle:      snap.Vehicle,
		GeneratedAt:  a.now().UTC(),
		Health:       Summarize(snap, parts),
		Readings:     Readings(snap.Sensors),
		DamagedParts: parts,
		Maintenance:  a.EstimateMaintenanceSchedule(snap),
		Resale:       a.EstimateResaleValue(snap),
		DTCs:         SummarizeDTCs(snap.DTCCodes),
	}
}
