// Package domain defines the vehicle snapshot consumed by the health engine,
// the shared enumerations of its output records, and the validation gate
// applied at every entry point (HTTP, NATS, fixture files).
package domain

import "time"

// Vehicle identifies the car a snapshot was taken from.
type Vehicle struct {
	Make  string `json:"make" yaml:"make"`
	Model string `json:"model" yaml:"model"`
	Year  int    `json:"year" yaml:"year"`
	VIN   string `json:"vin,omitempty" yaml:"vin,omitempty"`
}

// Key returns the "Make Model" key used by the price table.
func (v Vehicle) Key() string {
	return v.Make + " " + v.Model
}

// Sensors holds the OBD readings of one snapshot. Pointer fields are
// sensors that not every vehicle carries; nil means the sensor is absent.
type Sensors struct {
	EngineTemp     float64 `json:"engine_temp" yaml:"engine_temp"`         // °C
	CoolantLevel   float64 `json:"coolant_level" yaml:"coolant_level"`     // %
	BatteryVoltage float64 `json:"battery_voltage" yaml:"battery_voltage"` // V
	EngineLoad     float64 `json:"engine_load" yaml:"engine_load"`         // %
	IntakeTemp     float64 `json:"intake_temp" yaml:"intake_temp"`         // °C
	Mileage        float64 `json:"mileage" yaml:"mileage"`

	RPM                float64 `json:"rpm,omitempty" yaml:"rpm,omitempty"`
	ThrottlePosition   float64 `json:"throttle_position,omitempty" yaml:"throttle_position,omitempty"`
	BarometricPressure float64 `json:"barometric_pressure,omitempty" yaml:"barometric_pressure,omitempty"`

	FuelLevel        *float64   `json:"fuel_level,omitempty" yaml:"fuel_level,omitempty"`
	TransmissionTemp *float64   `json:"transmission_temp,omitempty" yaml:"transmission_temp,omitempty"`
	BrakePressure    *float64   `json:"brake_pressure,omitempty" yaml:"brake_pressure,omitempty"`
	TireTread        *float64   `json:"tire_tread,omitempty" yaml:"tire_tread,omitempty"` // mm
	OilLastService   *time.Time `json:"oil_last_service,omitempty" yaml:"oil_last_service,omitempty"`
}

// VehicleSnapshot is one read-only capture of a vehicle's state.
type VehicleSnapshot struct {
	Vehicle  Vehicle  `json:"vehicle" yaml:"vehicle"`
	DTCCodes []string `json:"dtc_codes" yaml:"dtc_codes"`
	Sensors  Sensors  `json:"sensors" yaml:"sensors"`
}

// Float returns a pointer to v, for populating optional sensors.
func Float(v float64) *float64 { return &v }

// Severity grades a DTC or a detected issue.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// PartStatus is the status of a damaged part.
type PartStatus string

const (
	StatusWarning  PartStatus = "Warning"
	StatusCritical PartStatus = "Critical"
)

// Urgency tells the owner how soon to act on a damaged part.
type Urgency string

const (
	UrgencyImmediate Urgency = "Immediate"
	UrgencySoon      Urgency = "Soon"
	UrgencySchedule  Urgency = "Schedule"
)

// Priority orders maintenance items.
type Priority string

const (
	PriorityHigh   Priority = "High"
	PriorityMedium Priority = "Medium"
	PriorityLow    Priority = "Low"
)

// Weight returns the sort weight of a priority (High=3, Medium=2, Low=1).
func (p Priority) Weight() int {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	default:
		return 0
	}
}

// Complexity is the repair-complexity tier of a DTC.
type Complexity string

const (
	ComplexitySimple   Complexity = "Simple"
	ComplexityModerate Complexity = "Moderate"
	ComplexityComplex  Complexity = "Complex"
)
