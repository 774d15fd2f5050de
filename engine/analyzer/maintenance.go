package analyzer

import (
	"fmt"
	"math"
	"sort"

	"github.com/obdpulse/obdpulse/engine/domain"
)

// Service intervals in distance units.
const (
	oilInterval          = 5000
	airFilterInterval    = 15000
	brakeInterval        = 25000
	transmissionInterval = 60000
	tireGoodRemaining    = 15000
	batteryLifeYears     = 4
)

// remainingOf returns interval − (mileage mod interval).
func remainingOf(mileage float64, interval float64) float64 {
	return interval - math.Mod(mileage, interval)
}

// formatTimeToService converts a remaining distance into a human string
// assuming AnnualDistance per year.
func formatTimeToService(remaining float64) string {
	months := int(math.Round(remaining / AnnualDistance * 12))
	switch {
	case months < 1:
		return "Due now"
	case months == 1:
		return "1 month"
	case months < 12:
		return fmt.Sprintf("%d months", months)
	}
	years, rest := months/12, months%12
	if rest == 0 {
		return pluralYears(years)
	}
	return fmt.Sprintf("%dy %dm", years, rest)
}

func pluralYears(n int) string {
	if n == 1 {
		return "1 year"
	}
	return fmt.Sprintf("%d years", n)
}

func (a *Analyzer) oilItem(s domain.Sensors) MaintenanceItem {
	item := MaintenanceItem{Component: "Engine Oil", EstimatedCost: 75}
	var remaining float64
	if s.OilLastService != nil {
		switch {
		case a.oilOverdue(s, 6):
			item.Condition, remaining = "Overdue", 0
		case a.oilOverdue(s, 4):
			item.Condition, remaining = "Due Soon", 500
		default:
			item.Condition, remaining = "Good", oilInterval
		}
	} else {
		item.Condition, remaining = "Good", remainingOf(s.Mileage, oilInterval)
	}
	item.Remaining = Units(remaining)
	item.TimeToService = formatTimeToService(remaining)
	item.Priority = domain.PriorityMedium
	if remaining == 0 {
		item.Priority = domain.PriorityHigh
	}
	return item
}

func airFilterItem(s domain.Sensors) MaintenanceItem {
	remaining := remainingOf(s.Mileage, airFilterInterval)
	item := MaintenanceItem{
		Component:     "Air Filter",
		TimeToService: formatTimeToService(remaining),
		Remaining:     Units(remaining),
		Condition:     "Good",
		Priority:      domain.PriorityLow,
		EstimatedCost: 35,
	}
	if s.IntakeTemp > mustThreshold(SensorIntakeTemp).Normal.High {
		item.Condition = "Degrading"
	}
	if remaining < 2000 {
		item.Priority = domain.PriorityHigh
	}
	return item
}

func brakeItem(s domain.Sensors) MaintenanceItem {
	remaining := remainingOf(s.Mileage, brakeInterval)
	attention := s.BrakePressure != nil && *s.BrakePressure < mustThreshold(SensorBrakePressure).Normal.Low
	item := MaintenanceItem{
		Component:     "Brake Pads",
		TimeToService: formatTimeToService(remaining),
		Remaining:     Units(remaining),
		Condition:     "Good",
		Priority:      domain.PriorityMedium,
		EstimatedCost: 300,
	}
	if attention {
		item.Condition = "Needs Attention"
	}
	if remaining < 3000 || attention {
		item.Priority = domain.PriorityHigh
	}
	return item
}

func (a *Analyzer) batteryItem(snap domain.VehicleSnapshot) MaintenanceItem {
	years := batteryLifeYears - (a.currentYear() - snap.Vehicle.Year)
	weak := snap.Sensors.BatteryVoltage < 12.0
	item := MaintenanceItem{
		Component:     "Battery",
		TimeToService: pluralYears(max(0, years)),
		Remaining:     Labeled("Age-based"),
		Condition:     "Good",
		Priority:      domain.PriorityLow,
		EstimatedCost: 150,
	}
	if weak {
		item.Condition = "Weak"
	}
	if weak || years < 1 {
		item.Priority = domain.PriorityHigh
	}
	return item
}

func transmissionItem(s domain.Sensors) (MaintenanceItem, bool) {
	if s.TransmissionTemp == nil {
		return MaintenanceItem{}, false
	}
	remaining := remainingOf(s.Mileage, transmissionInterval)
	item := MaintenanceItem{
		Component:     "Transmission Service",
		TimeToService: formatTimeToService(remaining),
		Remaining:     Units(remaining),
		Condition:     "Good",
		Priority:      domain.PriorityLow,
		EstimatedCost: 180,
	}
	if *s.TransmissionTemp > 100 {
		item.Condition, item.Priority = "Overheating", domain.PriorityHigh
	}
	return item, true
}

func tireItem(s domain.Sensors) (MaintenanceItem, bool) {
	if s.TireTread == nil {
		return MaintenanceItem{}, false
	}
	item := MaintenanceItem{Component: "Tires", EstimatedCost: 400}
	switch tread := *s.TireTread; {
	case tread < 2.0:
		item.Condition, item.Priority = "Replace Immediately", domain.PriorityHigh
		item.TimeToService, item.Remaining = "Overdue", Units(0)
	case tread < 3.0:
		item.Condition, item.Priority = "Replace Soon", domain.PriorityMedium
		item.TimeToService, item.Remaining = "6 months", Units(5000)
	default:
		item.Condition, item.Priority = "Good", domain.PriorityLow
		item.TimeToService, item.Remaining = formatTimeToService(tireGoodRemaining), Units(tireGoodRemaining)
	}
	return item, true
}

// EstimateMaintenanceSchedule returns oil, air filter, brakes and battery
// items, plus transmission and tire items when those sensors are present,
// stable-sorted by priority High > Medium > Low.
func (a *Analyzer) EstimateMaintenanceSchedule(snap domain.VehicleSnapshot) []MaintenanceItem {
	s := snap.Sensors
	items := []MaintenanceItem{
		a.oilItem(s),
		airFilterItem(s),
		brakeItem(s),
		a.batteryItem(snap),
	}
	if item, ok := transmissionItem(s); ok {
		items = append(items, item)
	}
	if item, ok := tireItem(s); ok {
		items = append(items, item)
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Priority.Weight() > items[j].Priority.Weight()
	})
	return items
}

// oilOverdue reports whether the last oil service is more than months old.
func (a *Analyzer) oilOverdue(s domain.Sensors, months int) bool {
	return s.OilLastService != nil && a.now().After(s.OilLastService.AddDate(0, months, 0))
}
