package analyzer

import (
	"encoding/json"
	"strconv"

	"github.com/obdpulse/obdpulse/engine/domain"
)

// Reading is the value that triggered a damaged part: either a sensor
// number or a DTC code.
type Reading struct {
	Value float64
	Code  string
}

// SensorValue wraps a numeric reading.
func SensorValue(v float64) Reading { return Reading{Value: v} }

// CodeValue wraps a DTC code.
func CodeValue(code string) Reading { return Reading{Code: code} }

// IsCode reports whether the reading is a DTC code.
func (r Reading) IsCode() bool { return r.Code != "" }

func (r Reading) String() string {
	if r.IsCode() {
		return r.Code
	}
	return strconv.FormatFloat(r.Value, 'f', -1, 64)
}

// MarshalJSON encodes a number or a string.
func (r Reading) MarshalJSON() ([]byte, error) {
	if r.IsCode() {
		return json.Marshal(r.Code)
	}
	return json.Marshal(r.Value)
}

// UnmarshalJSON accepts a number or a string.
func (r *Reading) UnmarshalJSON(b []byte) error {
	var code string
	if err := json.Unmarshal(b, &code); err == nil {
		*r = CodeValue(code)
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*r = SensorValue(v)
	return nil
}

// Range is a normal operating range: a numeric pair or a description.
type Range struct {
	Low, High float64
	Text      string
}

// Between builds a numeric range.
func Between(low, high float64) Range { return Range{Low: low, High: high} }

// Described builds a descriptive range.
func Described(text string) Range { return Range{Text: text} }

func (r Range) String() string {
	if r.Text != "" {
		return r.Text
	}
	return strconv.FormatFloat(r.Low, 'f', -1, 64) + "-" + strconv.FormatFloat(r.High, 'f', -1, 64)
}

// MarshalJSON encodes [low, high] or the description.
func (r Range) MarshalJSON() ([]byte, error) {
	if r.Text != "" {
		return json.Marshal(r.Text)
	}
	return json.Marshal([2]float64{r.Low, r.High})
}

// UnmarshalJSON accepts [low, high] or a string.
func (r *Range) UnmarshalJSON(b []byte) error {
	var text string
	if err := json.Unmarshal(b, &text); err == nil {
		*r = Described(text)
		return nil
	}
	var pair [2]float64
	if err := json.Unmarshal(b, &pair); err != nil {
		return err
	}
	*r = Between(pair[0], pair[1])
	return nil
}

// Distance is the distance left before service, or a label when the item
// is not mileage based.
type Distance struct {
	Value float64
	Label string
}

// Units wraps a numeric distance.
func Units(v float64) Distance { return Distance{Value: v} }

// Labeled wraps a descriptive distance.
func Labeled(label string) Distance { return Distance{Label: label} }

func (d Distance) String() string {
	if d.Label != "" {
		return d.Label
	}
	return strconv.FormatFloat(d.Value, 'f', 0, 64)
}

// MarshalJSON encodes a number or the label.
func (d Distance) MarshalJSON() ([]byte, error) {
	if d.Label != "" {
		return json.Marshal(d.Label)
	}
	return json.Marshal(d.Value)
}

// UnmarshalJSON accepts a number or a string.
func (d *Distance) UnmarshalJSON(b []byte) error {
	var label string
	if err := json.Unmarshal(b, &label); err == nil {
		*d = Labeled(label)
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*d = Units(v)
	return nil
}

// DamagedPart is one detected issue.
type DamagedPart struct {
	Component    string            `json:"component"`
	Status       domain.PartStatus `json:"status"`
	Issue        string            `json:"issue"`
	Severity     domain.Severity   `json:"severity"`
	CurrentValue Reading           `json:"current_value"`
	NormalRange  Range             `json:"normal_range"`
	RepairCost   float64           `json:"repair_cost"`
	Urgency      domain.Urgency    `json:"urgency"`
}

// MaintenanceItem is one entry of the maintenance schedule.
type MaintenanceItem struct {
	Component     string          `json:"component"`
	TimeToService string          `json:"time_to_service"`
	Remaining     Distance        `json:"remaining"`
	Condition     string          `json:"condition"`
	Priority      domain.Priority `json:"priority"`
	EstimatedCost float64         `json:"estimated_cost"`
}

// Depreciation breaks down the loss from base value.
type Depreciation struct {
	Mileage float64 `json:"mileage"`
	Health  float64 `json:"health"`
	Total   float64 `json:"total"`
}

// ValuationFactors summarizes the inputs of a valuation.
type ValuationFactors struct {
	Mileage       float64 `json:"mileage"`
	ExcessMileage float64 `json:"excess_mileage"`
	HealthScore   int     `json:"health_score"`
	DTCCount      int     `json:"dtc_count"`
}

// ResaleValuation is the resale estimate for a snapshot.
type ResaleValuation struct {
	BaseValue         float64          `json:"base_value"`
	MarketValue       float64          `json:"market_value"`
	TradeInValue      float64          `json:"trade_in_value"`
	PrivatePartyValue float64          `json:"private_party_value"`
	Depreciation      Depreciation     `json:"depreciation"`
	Factors           ValuationFactors `json:"factors"`
}
