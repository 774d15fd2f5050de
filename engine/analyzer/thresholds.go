package analyzer

// Sensor names a monitored sensor in the threshold table.
type Sensor string

const (
	SensorEngineTemp       Sensor = "engine_temp"
	SensorCoolantLevel     Sensor = "coolant_level"
	SensorBatteryVoltage   Sensor = "battery_voltage"
	SensorEngineLoad       Sensor = "engine_load"
	SensorIntakeTemp       Sensor = "intake_temp"
	SensorFuelLevel        Sensor = "fuel_level"
	SensorTransmissionTemp Sensor = "transmission_temp"
	SensorBrakePressure    Sensor = "brake_pressure"
	SensorTireTread        Sensor = "tire_tread"
)

// Direction says which side of the normal range is degraded.
type Direction int

const (
	HighIsBad Direction = iota
	LowIsBad
)

// Level is the tier a reading falls into.
type Level string

const (
	LevelNormal   Level = "normal"
	LevelWarning  Level = "warning"
	LevelCritical Level = "critical"
)

// Threshold is the three-tier band of one sensor.
type Threshold struct {
	Sensor    Sensor
	Label     string
	Unit      string
	Normal    Range
	Warning   Range
	Critical  float64
	Direction Direction
}

// Classify places v in a tier. Comparisons are strict: a value equal to a
// cutoff stays in the milder tier.
func (t Threshold) Classify(v float64) Level {
	switch t.Direction {
	case LowIsBad:
		if v < t.Critical {
			return LevelCritical
		}
		if v < t.Normal.Low {
			return LevelWarning
		}
	default:
		if v > t.Critical {
			return LevelCritical
		}
		if v > t.Normal.High {
			return LevelWarning
		}
	}
	return LevelNormal
}

var thresholdOrder = []Sensor{
	SensorEngineTemp, SensorCoolantLevel, SensorBatteryVoltage, SensorEngineLoad,
	SensorIntakeTemp, SensorFuelLevel, SensorTransmissionTemp, SensorBrakePressure,
	SensorTireTread,
}

var thresholds = map[Sensor]Threshold{
	SensorEngineTemp:       {SensorEngineTemp, "Engine Temp", "°C", Between(80, 105), Between(105, 115), 115, HighIsBad},
	SensorCoolantLevel:     {SensorCoolantLevel, "Coolant Level", "%", Between(70, 100), Between(50, 70), 50, LowIsBad},
	SensorBatteryVoltage:   {SensorBatteryVoltage, "Battery", "V", Between(12.4, 14.4), Between(11.8, 12.4), 11.8, LowIsBad},
	SensorEngineLoad:       {SensorEngineLoad, "Engine Load", "%", Between(0, 80), Between(80, 95), 95, HighIsBad},
	SensorIntakeTemp:       {SensorIntakeTemp, "Intake Temp", "°C", Between(10, 40), Between(40, 60), 60, HighIsBad},
	SensorFuelLevel:        {SensorFuelLevel, "Fuel Level", "%", Between(25, 100), Between(10, 25), 10, LowIsBad},
	SensorTransmissionTemp: {SensorTransmissionTemp, "Transmission", "°C", Between(70, 95), Between(95, 110), 110, HighIsBad},
	SensorBrakePressure:    {SensorBrakePressure, "Brake Pressure", "%", Between(80, 100), Between(60, 80), 60, LowIsBad},
	SensorTireTread:        {SensorTireTread, "Tire Tread", "mm", Between(4, 8), Between(2, 4), 2, LowIsBad},
}

// ThresholdFor returns the band for s.
func ThresholdFor(s Sensor) (Threshold, bool) {
	t, ok := thresholds[s]
	return t, ok
}

// Thresholds returns every band in table order.
func Thresholds() []Threshold {
	out := make([]Threshold, 0, len(thresholdOrder))
	for _, s := range thresholdOrder {
		out = append(out, thresholds[s])
	}
	return out
}

func mustThreshold(s Sensor) Threshold {
	t, ok := thresholds[s]
	if !ok {
		panic("analyzer: no threshold for " + string(s))
	}
	return t
}
