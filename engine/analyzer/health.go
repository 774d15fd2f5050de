package analyzer

import "github.com/obdpulse/obdpulse/engine/domain"

// SystemHealth is the score of one vehicle system.
type SystemHealth struct {
	System string `json:"system"`
	Score  int    `json:"score"`
	Status string `json:"status"`
}

// Health is the overall condition of a vehicle.
type Health struct {
	Score   int            `json:"score"`
	Label   string         `json:"label"`
	Systems []SystemHealth `json:"systems"`
}

// Summarize scores the vehicle: 100 less 15 per damaged part and 10 per
// DTC, floored at 0.
func Summarize(snap domain.VehicleSnapshot, parts []DamagedPart) Health {
	score := max(0, 100-15*len(parts)-10*len(snap.DTCCodes))
	return Health{
		Score:   score,
		Label:   healthLabel(score),
		Systems: systemBreakdown(snap.Sensors),
	}
}

func healthLabel(score int) string {
	switch {
	case score >= 80:
		return "Excellent Condition"
	case score >= 60:
		return "Good Condition"
	default:
		return "Needs Attention"
	}
}

func systemBreakdown(s domain.Sensors) []SystemHealth {
	engine := SystemHealth{"Engine", 95, "Optimal"}
	if s.EngineTemp > 95 {
		engine = SystemHealth{"Engine", 65, "Warning"}
	}
	battery := SystemHealth{"Battery", 90, "Good"}
	if s.BatteryVoltage < 12.4 {
		battery = SystemHealth{"Battery", 45, "Low"}
	}
	fuel := SystemHealth{"Fuel System", 80, "Unknown"}
	if s.FuelLevel != nil {
		fuel = SystemHealth{"Fuel System", 88, "Normal"}
		if *s.FuelLevel < 25 {
			fuel = SystemHealth{"Fuel System", 60, "Low"}
		}
	}
	trans := SystemHealth{"Transmission", 85, "Normal"}
	if s.TransmissionTemp != nil {
		trans = SystemHealth{"Transmission", 92, "Normal"}
		if *s.TransmissionTemp > 95 {
			trans = SystemHealth{"Transmission", 55, "High Temp"}
		}
	}
	return []SystemHealth{engine, battery, fuel, trans}
}

// SensorReading is a present sensor value with its tier.
type SensorReading struct {
	Sensor Sensor  `json:"sensor"`
	Label  string  `json:"label"`
	Value  float64 `json:"value"`
	Unit   string  `json:"unit"`
	Status Level   `json:"status"`
	Normal Range   `json:"normal_range"`
}

// Readings classifies every present monitored sensor in table order.
func Readings(s domain.Sensors) []SensorReading {
	values := map[Sensor]*float64{
		SensorEngineTemp:       &s.EngineTemp,
		SensorCoolantLevel:     &s.CoolantLevel,
		SensorBatteryVoltage:   &s.BatteryVoltage,
		SensorEngineLoad:       &s.EngineLoad,
		SensorIntakeTemp:       &s.IntakeTemp,
		SensorFuelLevel:        s.FuelLevel,
		SensorTransmissionTemp: s.TransmissionTemp,
		SensorBrakePressure:    s.BrakePressure,
		SensorTireTread:        s.TireTread,
	}
	var out []SensorReading
	for _, t := range Thresholds() {
		v := values[t.Sensor]
		if v == nil {
			continue
		}
		out = append(out, SensorReading{
			Sensor: t.Sensor,
			Label:  t.Label,
			Value:  *v,
			Unit:   t.Unit,
			Status: t.Classify(*v),
			Normal: t.Normal,
		})
	}
	return out
}
