package domain

import (
	"errors"
	"math"
	"testing"
)

func validSnapshot() VehicleSnapshot {
	return VehicleSnapshot{
		Vehicle:  Vehicle{Make: "Toyota", Model: "Camry", Year: 2020, VIN: "4T1B11HK5LU123456"},
		DTCCodes: []string{"P0300", "p0420"},
		Sensors: Sensors{
			EngineTemp:     92,
			CoolantLevel:   85,
			BatteryVoltage: 12.6,
			EngineLoad:     35,
			IntakeTemp:     25,
			Mileage:        50000,
			FuelLevel:      Float(60),
		},
	}
}

func TestValidateVehicle_Valid(t *testing.T) {
	cases := []Vehicle{
		{Make: "Toyota", Model: "Camry", Year: 2020},
		{Make: "Tesla", Model: "Model 3", Year: 2024, VIN: "5YJ3E1EA1NF123456"},
		{Make: "Ford", Model: "F-150", Year: 1980},
		{Make: "BMW", Model: "3 Series", Year: 2027},
		{Make: "Lada", Model: "Niva", Year: 2010},
	}
	for _, v := range cases {
		if err := ValidateVehicle(v); err != nil {
			t.Errorf("expected valid for %+v, got %v", v, err)
		}
	}
}

func TestValidateVehicle_MissingFields(t *testing.T) {
	if !errors.Is(ValidateVehicle(Vehicle{Model: "Camry", Year: 2020}), ErrInvalidVehicle) {
		t.Error("expected ErrInvalidVehicle for empty make")
	}
	if !errors.Is(ValidateVehicle(Vehicle{Make: "Toyota", Model: "  ", Year: 2020}), ErrInvalidVehicle) {
		t.Error("expected ErrInvalidVehicle for blank model")
	}
}

func TestValidateVehicle_YearOutOfRange(t *testing.T) {
	err := ValidateVehicle(Vehicle{Make: "Toyota", Model: "Camry", Year: 1970})
	if !errors.Is(err, ErrYearOutOfRange) {
		t.Errorf("expected ErrYearOutOfRange, got %v", err)
	}
	err = ValidateVehicle(Vehicle{Make: "Toyota", Model: "Camry", Year: 2099})
	if !errors.Is(err, ErrYearOutOfRange) {
		t.Errorf("expected ErrYearOutOfRange, got %v", err)
	}
}

func TestValidateVehicle_InvalidVIN(t *testing.T) {
	err := ValidateVehicle(Vehicle{Make: "Toyota", Model: "Camry", Year: 2020, VIN: "INVALID"})
	if !errors.Is(err, ErrInvalidVIN) {
		t.Errorf("expected ErrInvalidVIN, got %v", err)
	}
	// VIN with I (forbidden)
	err = ValidateVehicle(Vehicle{Make: "Toyota", Model: "Camry", Year: 2020, VIN: "5YJ3E1EA1IF123456"})
	if !errors.Is(err, ErrInvalidVIN) {
		t.Errorf("expected ErrInvalidVIN for VIN with I, got %v", err)
	}
}

func TestValidateKnownVehicle(t *testing.T) {
	if err := ValidateKnownVehicle(Vehicle{Make: "honda", Model: "civic", Year: 2019}); err != nil {
		t.Errorf("expected case-insensitive match, got %v", err)
	}
	err := ValidateKnownVehicle(Vehicle{Make: "Lada", Model: "Niva", Year: 2020})
	if !errors.Is(err, ErrUnsupportedMake) {
		t.Errorf("expected ErrUnsupportedMake, got %v", err)
	}
	err = ValidateKnownVehicle(Vehicle{Make: "Toyota", Model: "FakeModel", Year: 2020})
	if !errors.Is(err, ErrUnsupportedMake) {
		t.Errorf("expected ErrUnsupportedMake for unknown model, got %v", err)
	}
}

func TestCanonicalModel(t *testing.T) {
	v, ok := CanonicalModel("TESLA", "model 3")
	if !ok || v.Make != "Tesla" || v.Model != "Model 3" {
		t.Errorf("got %+v %v", v, ok)
	}
	if _, ok := CanonicalModel("Tesla", "Camry"); ok {
		t.Error("Camry is not a Tesla")
	}
}

func TestValidateSnapshot_Valid(t *testing.T) {
	if err := ValidateSnapshot(validSnapshot()); err != nil {
		t.Fatalf("expected valid, got %v", err)
	}
}

func TestValidateSnapshot_NoCodesNoOptionals(t *testing.T) {
	s := validSnapshot()
	s.DTCCodes = nil
	s.Sensors.FuelLevel = nil
	if err := ValidateSnapshot(s); err != nil {
		t.Fatalf("expected valid, got %v", err)
	}
}

func TestValidateSnapshot_InvalidDTC(t *testing.T) {
	for _, code := range []string{"", "P030", "X0300", "P4300", "P03G0"} {
		s := validSnapshot()
		s.DTCCodes = []string{"P0300", code}
		err := ValidateSnapshot(s)
		if !errors.Is(err, ErrInvalidDTC) {
			t.Errorf("code %q: expected ErrInvalidDTC, got %v", code, err)
			continue
		}
		var ve *ValidationError
		if errors.As(err, &ve) && ve.Field != "dtc_codes[1]" {
			t.Errorf("code %q: field = %s", code, ve.Field)
		}
	}
}

func TestValidateSnapshot_InvalidSensor(t *testing.T) {
	cases := map[string]func(*Sensors){
		"negative mileage": func(s *Sensors) { s.Mileage = -1 },
		"coolant over 100": func(s *Sensors) { s.CoolantLevel = 101 },
		"NaN engine temp":  func(s *Sensors) { s.EngineTemp = math.NaN() },
		"inf voltage":      func(s *Sensors) { s.BatteryVoltage = math.Inf(1) },
		"negative fuel":    func(s *Sensors) { s.FuelLevel = Float(-5) },
		"negative tread":   func(s *Sensors) { s.TireTread = Float(-0.1) },
	}
	for name, mutate := range cases {
		s := validSnapshot()
		mutate(&s.Sensors)
		if err := ValidateSnapshot(s); !errors.Is(err, ErrInvalidSensor) {
			t.Errorf("%s: expected ErrInvalidSensor, got %v", name, err)
		}
	}
}

func TestValidateSnapshot_VehicleFirst(t *testing.T) {
	s := validSnapshot()
	s.Vehicle.Year = 1900
	s.DTCCodes = []string{"bogus"}
	if err := ValidateSnapshot(s); !errors.Is(err, ErrYearOutOfRange) {
		t.Errorf("expected ErrYearOutOfRange, got %v", err)
	}
}

func TestNormalizeDTC(t *testing.T) {
	if got := NormalizeDTC("  p0171 "); got != "P0171" {
		t.Errorf("got %q", got)
	}
}

func TestValidationError_Unwrap(t *testing.T) {
	ve := NewValidationError("make", "Lada", ErrUnsupportedMake)
	if !errors.Is(ve, ErrUnsupportedMake) {
		t.Errorf("Unwrap should expose ErrUnsupportedMake")
	}
	var target *ValidationError
	if !errors.As(ve, &target) {
		t.Errorf("errors.As should work for *ValidationError")
	}
	if target.Field != "make" {
		t.Errorf("expected field=make, got %s", target.Field)
	}
}

func TestPriorityWeight(t *testing.T) {
	if PriorityHigh.Weight() <= PriorityMedium.Weight() || PriorityMedium.Weight() <= PriorityLow.Weight() {
		t.Error("expected High > Medium > Low")
	}
	if Priority("bogus").Weight() != 0 {
		t.Error("unknown priority should weigh 0")
	}
}

func TestValidDTC(t *testing.T) {
	for code, want := range map[string]bool{
		"P0300":   true,
		" p0a1f ": true,
		"U3FFF":   true,
		"P4000":   false,
		"X0300":   false,
		"P030":    false,
	} {
		if got := ValidDTC(code); got != want {
			t.Errorf("ValidDTC(%q) = %v, want %v", code, got, want)
		}
	}
}
