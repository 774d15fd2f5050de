// Package fleet loads the fixture fleet of vehicle snapshots served by the
// API and the CLI, and hot-reloads it when the file changes.
package fleet

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/obdpulse/obdpulse/engine/domain"
	"gopkg.in/yaml.v3"
)

// ErrDuplicateVIN is returned when two fleet entries share a VIN.
var ErrDuplicateVIN = errors.New("fleet: duplicate vin")

type file struct {
	Vehicles []domain.VehicleSnapshot `yaml:"vehicles"`
}

// Fleet is an immutable, validated set of snapshots keyed by VIN.
type Fleet struct {
	order []string
	byVIN map[string]domain.VehicleSnapshot
}

// Load reads and validates the fleet file at path.
func Load(path string) (*Fleet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("fleet: read file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a fleet document. Every entry must carry a VIN and pass
// snapshot validation.
func Parse(data []byte) (*Fleet, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("fleet: parse yaml: %w", err)
	}

	fl := &Fleet{byVIN: make(map[string]domain.VehicleSnapshot, len(f.Vehicles))}
	for i, snap := range f.Vehicles {
		vin := strings.ToUpper(strings.TrimSpace(snap.Vehicle.VIN))
		if vin == "" {
			return nil, fmt.Errorf("fleet: vehicles[%d]: %w", i, domain.ErrMissingVIN)
		}
		snap.Vehicle.VIN = vin
		if err := domain.ValidateSnapshot(snap); err != nil {
			return nil, fmt.Errorf("fleet: vehicles[%d]: %w", i, err)
		}
		if _, dup := fl.byVIN[vin]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateVIN, vin)
		}
		fl.byVIN[vin] = snap
		fl.order = append(fl.order, vin)
	}
	return fl, nil
}

// Get returns the snapshot for vin. Lookup is case-insensitive.
func (f *Fleet) Get(vin string) (domain.VehicleSnapshot, bool) {
	if f == nil {
		return domain.VehicleSnapshot{}, false
	}
	snap, ok := f.byVIN[strings.ToUpper(strings.TrimSpace(vin))]
	return snap, ok
}

// List returns every snapshot in file order.
func (f *Fleet) List() []domain.VehicleSnapshot {
	if f == nil {
		return nil
	}
	out := make([]domain.VehicleSnapshot, 0, len(f.order))
	for _, vin := range f.order {
		out = append(out, f.byVIN[vin])
	}
	return out
}

func (f *Fleet) Len() int {
	if f == nil {
		return 0
	}
	return len(f.order)
}
