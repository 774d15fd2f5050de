package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for validation failures.
var (
	ErrInvalidVehicle  = errors.New("invalid vehicle")
	ErrUnsupportedMake = errors.New("unsupported make")
	ErrYearOutOfRange  = errors.New("year out of range")
	ErrInvalidVIN      = errors.New("invalid VIN")
	ErrMissingVIN      = errors.New("missing VIN")
	ErrInvalidDTC      = errors.New("invalid DTC code")
	ErrInvalidSensor   = errors.New("invalid sensor reading")
)

// ValidationError wraps a sentinel with context.
type ValidationError struct {
	Field   string
	Value   string
	Wrapped error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s (value=%q)", e.Wrapped, e.Field, e.Value)
}

func (e *ValidationError) Unwrap() error { return e.Wrapped }

// NewValidationError creates a ValidationError.
func NewValidationError(field, value string, wrapped error) *ValidationError {
	return &ValidationError{Field: field, Value: value, Wrapped: wrapped}
}
