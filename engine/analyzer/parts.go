package analyzer

import "github.com/obdpulse/obdpulse/engine/domain"

// partRule inspects one sensor and reports at most one damaged part.
type partRule func(s domain.Sensors) (DamagedPart, bool)

// partRules run in this order; DTC-derived parts follow.
var partRules = []partRule{
	engineTempRule,
	coolantRule,
	batteryRule,
	engineLoadRule,
	fuelRule,
	transmissionRule,
	brakeRule,
}

func engineTempRule(s domain.Sensors) (DamagedPart, bool) {
	t := mustThreshold(SensorEngineTemp)
	p := DamagedPart{
		Component:    "Engine Cooling System",
		CurrentValue: SensorValue(s.EngineTemp),
		NormalRange:  t.Normal,
	}
	switch t.Classify(s.EngineTemp) {
	case LevelCritical:
		p.Status, p.Severity = domain.StatusCritical, domain.SeverityHigh
		p.Issue = "Engine overheating"
		p.RepairCost, p.Urgency = 800, domain.UrgencyImmediate
	case LevelWarning:
		p.Status, p.Severity = domain.StatusWarning, domain.SeverityMedium
		p.Issue = "Engine temperature running high"
		p.RepairCost, p.Urgency = 300, domain.UrgencySoon
	default:
		return DamagedPart{}, false
	}
	return p, true
}

func coolantRule(s domain.Sensors) (DamagedPart, bool) {
	t := mustThreshold(SensorCoolantLevel)
	if s.CoolantLevel >= t.Critical {
		return DamagedPart{}, false
	}
	return DamagedPart{
		Component:    "Coolant System",
		Status:       domain.StatusCritical,
		Issue:        "Coolant level critically low",
		Severity:     domain.SeverityHigh,
		CurrentValue: SensorValue(s.CoolantLevel),
		NormalRange:  t.Normal,
		RepairCost:   150,
		Urgency:      domain.UrgencyImmediate,
	}, true
}

func batteryRule(s domain.Sensors) (DamagedPart, bool) {
	t := mustThreshold(SensorBatteryVoltage)
	if s.BatteryVoltage >= t.Critical {
		return DamagedPart{}, false
	}
	return DamagedPart{
		Component:    "Battery",
		Status:       domain.StatusCritical,
		Issue:        "Low voltage, battery failing",
		Severity:     domain.SeverityHigh,
		CurrentValue: SensorValue(s.BatteryVoltage),
		NormalRange:  t.Normal,
		RepairCost:   150,
		Urgency:      domain.UrgencyImmediate,
	}, true
}

func engineLoadRule(s domain.Sensors) (DamagedPart, bool) {
	t := mustThreshold(SensorEngineLoad)
	if s.EngineLoad <= t.Warning.High {
		return DamagedPart{}, false
	}
	return DamagedPart{
		Component:    "Engine",
		Status:       domain.StatusWarning,
		Issue:        "Sustained excessive engine load",
		Severity:     domain.SeverityMedium,
		CurrentValue: SensorValue(s.EngineLoad),
		NormalRange:  t.Normal,
		RepairCost:   400,
		Urgency:      domain.UrgencySchedule,
	}, true
}

func fuelRule(s domain.Sensors) (DamagedPart, bool) {
	t := mustThreshold(SensorFuelLevel)
	if s.FuelLevel == nil || *s.FuelLevel >= t.Warning.Low {
		return DamagedPart{}, false
	}
	return DamagedPart{
		Component:    "Fuel System",
		Status:       domain.StatusWarning,
		Issue:        "Fuel level low",
		Severity:     domain.SeverityLow,
		CurrentValue: SensorValue(*s.FuelLevel),
		NormalRange:  t.Normal,
		RepairCost:   0,
		Urgency:      domain.UrgencySoon,
	}, true
}

func transmissionRule(s domain.Sensors) (DamagedPart, bool) {
	t := mustThreshold(SensorTransmissionTemp)
	if s.TransmissionTemp == nil || *s.TransmissionTemp <= t.Critical {
		return DamagedPart{}, false
	}
	return DamagedPart{
		Component:    "Transmission",
		Status:       domain.StatusCritical,
		Issue:        "Transmission overheating",
		Severity:     domain.SeverityHigh,
		CurrentValue: SensorValue(*s.TransmissionTemp),
		NormalRange:  t.Normal,
		RepairCost:   1200,
		Urgency:      domain.UrgencyImmediate,
	}, true
}

func brakeRule(s domain.Sensors) (DamagedPart, bool) {
	t := mustThreshold(SensorBrakePressure)
	if s.BrakePressure == nil || *s.BrakePressure >= t.Critical {
		return DamagedPart{}, false
	}
	return DamagedPart{
		Component:    "Brake System",
		Status:       domain.StatusCritical,
		Issue:        "Brake pressure critically low",
		Severity:     domain.SeverityHigh,
		CurrentValue: SensorValue(*s.BrakePressure),
		NormalRange:  t.Normal,
		RepairCost:   600,
		Urgency:      domain.UrgencyImmediate,
	}, true
}

func dtcPart(info DTCInfo) DamagedPart {
	return DamagedPart{
		Component:    info.PartAffected,
		Status:       info.Status(),
		Issue:        info.Description,
		Severity:     info.Severity,
		CurrentValue: CodeValue(info.Code),
		NormalRange:  Described("No codes"),
		RepairCost:   info.EstimatedCost,
		Urgency:      info.Urgency(),
	}
}

// AnalyzeDamagedParts runs the sensor rules in declared order, then appends
// one part per catalogued DTC in list order. Unknown codes are skipped.
// The result is never nil.
func (a *Analyzer) AnalyzeDamagedParts(snap domain.VehicleSnapshot) []DamagedPart {
	parts := make([]DamagedPart, 0, len(partRules)+len(snap.DTCCodes))
	for _, rule := range partRules {
		if p, ok := rule(snap.Sensors); ok {
			parts = append(parts, p)
		}
	}
	for _, code := range snap.DTCCodes {
		if info, ok := LookupDTC(code); ok {
			parts = append(parts, dtcPart(info))
		}
	}
	return parts
}
