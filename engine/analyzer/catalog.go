package analyzer

import (
	"sort"

	"github.com/obdpulse/obdpulse/engine/domain"
)

// DTCInfo is one row of the diagnostic trouble code catalog.
type DTCInfo struct {
	Code           string            `json:"code"`
	Description    string            `json:"description"`
	PartAffected   string            `json:"part_affected"`
	Severity       domain.Severity   `json:"severity"`
	PotentialCause string            `json:"potential_cause"`
	Complexity     domain.Complexity `json:"repair_complexity"`
	EstimatedCost  float64           `json:"estimated_cost"`
}

// Urgency maps catalog severity to repair urgency.
func (d DTCInfo) Urgency() domain.Urgency {
	if d.Severity == domain.SeverityHigh {
		return domain.UrgencySoon
	}
	return domain.UrgencySchedule
}

// Status maps catalog severity to part status.
func (d DTCInfo) Status() domain.PartStatus {
	if d.Severity == domain.SeverityHigh {
		return domain.StatusCritical
	}
	return domain.StatusWarning
}

var dtcCatalog = map[string]DTCInfo{
	"P0300": {"P0300", "Random/Multiple Cylinder Misfire Detected", "Engine", domain.SeverityHigh,
		"Worn spark plugs, faulty ignition coils, vacuum leak or low fuel pressure", domain.ComplexityModerate, 250},
	"P0420": {"P0420", "Catalyst System Efficiency Below Threshold", "Exhaust", domain.SeverityHigh,
		"Failing catalytic converter or faulty downstream oxygen sensor", domain.ComplexityComplex, 1200},
	"P0171": {"P0171", "System Too Lean (Bank 1)", "Fuel System", domain.SeverityMedium,
		"Vacuum leak, dirty MAF sensor or weak fuel pump", domain.ComplexityModerate, 150},
	"P0128": {"P0128", "Coolant Thermostat Below Regulating Temperature", "Cooling System", domain.SeverityMedium,
		"Thermostat stuck open or faulty coolant temperature sensor", domain.ComplexitySimple, 120},
	"P0442": {"P0442", "Evaporative Emission System Leak Detected (Small Leak)", "EVAP System", domain.SeverityLow,
		"Loose or damaged gas cap, cracked EVAP hose", domain.ComplexitySimple, 100},
	"P0100": {"P0100", "Mass Air Flow Circuit Malfunction", "Air Intake", domain.SeverityMedium,
		"Dirty or failed MAF sensor, damaged wiring", domain.ComplexityModerate, 180},
	"P0700": {"P0700", "Transmission Control System Malfunction", "Transmission", domain.SeverityHigh,
		"Fault stored in the transmission control module", domain.ComplexityComplex, 800},
	"P0715": {"P0715", "Input/Turbine Speed Sensor Circuit Malfunction", "Transmission", domain.SeverityMedium,
		"Failed input speed sensor or damaged connector", domain.ComplexityModerate, 300},
	"P0601": {"P0601", "Internal Control Module Memory Check Sum Error", "ECU", domain.SeverityHigh,
		"Corrupted ECM memory or failing control module", domain.ComplexityComplex, 900},
	"P0602": {"P0602", "Control Module Programming Error", "ECU", domain.SeverityMedium,
		"ECM not programmed or interrupted software update", domain.ComplexityComplex, 400},
	"P0455": {"P0455", "Evaporative Emission System Leak Detected (Large Leak)", "EVAP System", domain.SeverityMedium,
		"Missing gas cap, disconnected or cracked EVAP line", domain.ComplexitySimple, 150},
	"P0016": {"P0016", "Crankshaft/Camshaft Position Correlation (Bank 1 Sensor A)", "Engine", domain.SeverityHigh,
		"Stretched timing chain, faulty cam phaser or sensor", domain.ComplexityComplex, 700},
	"P0401": {"P0401", "Exhaust Gas Recirculation Flow Insufficient", "Exhaust", domain.SeverityMedium,
		"Clogged EGR passages or failed EGR valve", domain.ComplexityModerate, 350},
	"P0506": {"P0506", "Idle Control System RPM Lower Than Expected", "Air Intake", domain.SeverityLow,
		"Dirty throttle body or idle air control valve", domain.ComplexitySimple, 120},
	"P0562": {"P0562", "System Voltage Low", "Charging System", domain.SeverityMedium,
		"Weak alternator, loose belt or failing battery", domain.ComplexityModerate, 250},
}

// LookupDTC returns the catalog row for code. Lookup is case-insensitive
// and ignores surrounding whitespace; unknown codes return false.
func LookupDTC(code string) (DTCInfo, bool) {
	info, ok := dtcCatalog[domain.NormalizeDTC(code)]
	return info, ok
}

// Catalog returns every catalog row sorted by code.
func Catalog() []DTCInfo {
	out := make([]DTCInfo, 0, len(dtcCatalog))
	for _, info := range dtcCatalog {
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}
