package domain

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// VIN format: 17 alphanumeric characters, excluding I, O, Q.
var vinRegex = regexp.MustCompile(`^[A-HJ-NPR-Z0-9]{17}$`)

// DTC format: system letter, standard/manufacturer digit, three hex digits.
var dtcRegex = regexp.MustCompile(`^[PCBU][0-3][0-9A-F]{3}$`)

// NormalizeDTC upper-cases and trims a trouble code.
func NormalizeDTC(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidDTC reports whether code, once normalized, is a well-formed DTC.
func ValidDTC(code string) bool {
	return dtcRegex.MatchString(NormalizeDTC(code))
}

// ValidVIN reports whether vin is a well-formed 17-character VIN.
func ValidVIN(vin string) bool {
	return vinRegex.MatchString(strings.ToUpper(vin))
}

// ValidateVehicle checks the identity fields of a vehicle. Unknown
// make/model pairs are accepted; the engine values them at the fallback price.
func ValidateVehicle(v Vehicle) error {
	if strings.TrimSpace(v.Make) == "" {
		return NewValidationError("make", v.Make, ErrInvalidVehicle)
	}
	if strings.TrimSpace(v.Model) == "" {
		return NewValidationError("model", v.Model, ErrInvalidVehicle)
	}
	if v.Year < MinModelYear || v.Year > MaxModelYear {
		return NewValidationError("year", strconv.Itoa(v.Year), ErrYearOutOfRange)
	}
	// VIN is optional but if provided must be valid.
	if v.VIN != "" && !ValidVIN(v.VIN) {
		return NewValidationError("vin", v.VIN, ErrInvalidVIN)
	}
	return nil
}

// ValidateKnownVehicle is ValidateVehicle plus a check that the make is in
// SupportedMakes and the model belongs to it.
func ValidateKnownVehicle(v Vehicle) error {
	if err := ValidateVehicle(v); err != nil {
		return err
	}
	if _, ok := CanonicalModel(v.Make, v.Model); !ok {
		return NewValidationError("make", v.Key(), ErrUnsupportedMake)
	}
	return nil
}

// ValidateSnapshot validates a snapshot before it reaches the engine.
func ValidateSnapshot(s VehicleSnapshot) error {
	if err := ValidateVehicle(s.Vehicle); err != nil {
		return err
	}
	for i, code := range s.DTCCodes {
		if !ValidDTC(code) {
			return NewValidationError(fmt.Sprintf("dtc_codes[%d]", i), code, ErrInvalidDTC)
		}
	}
	return validateSensors(s.Sensors)
}

type sensorCheck struct {
	field    string
	value    *float64
	min, max float64
}

func validateSensors(s Sensors) error {
	inf := math.Inf(1)
	checks := []sensorCheck{
		{"engine_temp", &s.EngineTemp, -60, 200},
		{"coolant_level", &s.CoolantLevel, 0, 100},
		{"battery_voltage", &s.BatteryVoltage, 0, 30},
		{"engine_load", &s.EngineLoad, 0, 100},
		{"intake_temp", &s.IntakeTemp, -60, 150},
		{"mileage", &s.Mileage, 0, inf},
		{"rpm", &s.RPM, 0, 20000},
		{"throttle_position", &s.ThrottlePosition, 0, 100},
		{"barometric_pressure", &s.BarometricPressure, 0, 255},
		{"fuel_level", s.FuelLevel, 0, 100},
		{"transmission_temp", s.TransmissionTemp, -60, 200},
		{"brake_pressure", s.BrakePressure, 0, 300},
		{"tire_tread", s.TireTread, 0, 30},
	}
	for _, c := range checks {
		if c.value == nil {
			continue
		}
		v := *c.value
		if math.IsNaN(v) || math.IsInf(v, 0) || v < c.min || v > c.max {
			return NewValidationError("sensors."+c.field, strconv.FormatFloat(v, 'f', -1, 64), ErrInvalidSensor)
		}
	}
	return nil
}
