package analyzer

import (
	"math"

	"github.com/obdpulse/obdpulse/engine/domain"
)

const (
	mileageRate       = 0.15
	marketFactor      = 0.88
	marketFloor       = 0.35
	tradeInFactor     = 0.82
	privatePartyRatio = 1.12
)

// dtcImpact is the fraction of base value lost per catalogued DTC.
var dtcImpact = map[domain.Severity]float64{
	domain.SeverityHigh:   0.25,
	domain.SeverityMedium: 0.12,
	domain.SeverityLow:    0.08,
}

// conditionPenalty is a fixed fraction of base value lost when a sensor
// is in a degraded state.
type conditionPenalty struct {
	fraction float64
	applies  func(a *Analyzer, s domain.Sensors) bool
}

var conditionPenalties = []conditionPenalty{
	{0.05, func(_ *Analyzer, s domain.Sensors) bool { return s.EngineTemp > 105 }},
	{0.02, func(_ *Analyzer, s domain.Sensors) bool { return s.BatteryVoltage < 12.0 }},
	{0.03, func(_ *Analyzer, s domain.Sensors) bool { return s.CoolantLevel < 70 }},
	{0.04, func(_ *Analyzer, s domain.Sensors) bool { return s.TransmissionTemp != nil && *s.TransmissionTemp > 95 }},
	{0.03, func(_ *Analyzer, s domain.Sensors) bool { return s.BrakePressure != nil && *s.BrakePressure < 80 }},
	{0.02, func(_ *Analyzer, s domain.Sensors) bool { return s.TireTread != nil && *s.TireTread < 3.0 }},
	{0.01, func(a *Analyzer, s domain.Sensors) bool { return a.oilOverdue(s, 8) }},
}

func (a *Analyzer) healthDepreciation(snap domain.VehicleSnapshot, base float64) float64 {
	var dep float64
	for _, code := range snap.DTCCodes {
		if info, ok := LookupDTC(code); ok {
			dep += base * dtcImpact[info.Severity]
		}
	}
	for _, p := range conditionPenalties {
		if p.applies(a, snap.Sensors) {
			dep += base * p.fraction
		}
	}
	return dep
}

// EstimateResaleValue values the vehicle from the price table, adjusted for
// excess mileage and health. The market value never drops below 35% of the
// base value. Money outputs are rounded to whole units.
func (a *Analyzer) EstimateResaleValue(snap domain.VehicleSnapshot) ResaleValuation {
	base, _ := BaseValue(snap.Vehicle)

	expected := float64(a.currentYear()-snap.Vehicle.Year) * AnnualDistance
	excess := math.Max(0, snap.Sensors.Mileage-expected)
	mileageDep := excess * mileageRate
	healthDep := a.healthDepreciation(snap, base)

	adjusted := base - mileageDep - healthDep
	market := math.Max(adjusted*marketFactor, base*marketFloor)

	return ResaleValuation{
		BaseValue:         math.Round(base),
		MarketValue:       math.Round(market),
		TradeInValue:      math.Round(market * tradeInFactor),
		PrivatePartyValue: math.Round(market * privatePartyRatio),
		Depreciation: Depreciation{
			Mileage: math.Round(mileageDep),
			Health:  math.Round(healthDep),
			Total:   math.Round(base - market),
		},
		Factors: ValuationFactors{
			Mileage:       snap.Sensors.Mileage,
			ExcessMileage: math.Round(excess),
			HealthScore:   int(math.Round(math.Max(0, (1-healthDep/base)*100))),
			DTCCount:      len(snap.DTCCodes),
		},
	}
}
