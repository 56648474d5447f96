package domain

import "time"

// Source identifies which upstream produced a measurement.
type Source string

const (
	SourceOpenAQ    Source = "openaq"
	SourceIQAir     Source = "iqair"
	SourceSynthetic Source = "synthetic"
)

// Pollutant is a typed key into the threshold table. AQI is included because
// the composite index participates in the same statistical and threshold
// checks as raw concentrations.
type Pollutant string

const (
	PollutantPM25 Pollutant = "pm25"
	PollutantPM10 Pollutant = "pm10"
	PollutantCO   Pollutant = "co"
	PollutantNO2  Pollutant = "no2"
	PollutantO3   Pollutant = "o3"
	PollutantSO2  Pollutant = "so2"
	PollutantAQI  Pollutant = "aqi"
)

// Pollutants lists every pollutant in a fixed order. Detection strategies
// iterate this slice so output ordering is deterministic.
var Pollutants = []Pollutant{
	PollutantPM25, PollutantPM10, PollutantCO,
	PollutantNO2, PollutantO3, PollutantSO2, PollutantAQI,
}

// Location is a monitored site with fixed coordinates from configuration.
type Location struct {
	ID      string
	Country string
	Lat     float64
	Lon     float64
}

// Measurement is one canonical reading for one location at one timestamp.
// Concentration fields are pointers because upstream sources report
// different subsets; nil means "not reported", not zero. A measurement is
// immutable once persisted; newer timestamps supersede, never update.
type Measurement struct {
	LocationID string    `json:"location_id" db:"location_id"`
	Country    string    `json:"country,omitempty" db:"country"`
	Latitude   float64   `json:"latitude" db:"latitude"`
	Longitude  float64   `json:"longitude" db:"longitude"`
	Timestamp  time.Time `json:"timestamp" db:"timestamp"`

	PM25 *float64 `json:"pm25,omitempty" db:"pm25"`
	PM10 *float64 `json:"pm10,omitempty" db:"pm10"`
	CO   *float64 `json:"co,omitempty" db:"co"`
	NO2  *float64 `json:"no2,omitempty" db:"no2"`
	O3   *float64 `json:"o3,omitempty" db:"o3"`
	SO2  *float64 `json:"so2,omitempty" db:"so2"`

	// AQI is the derived 0-500 index; 0 means not yet derived.
	AQI         int    `json:"aqi,omitempty" db:"aqi"`
	AQICategory string `json:"aqi_category,omitempty" db:"aqi_category"`

	Temperature *float64 `json:"temperature,omitempty" db:"temperature"`
	Humidity    *float64 `json:"humidity,omitempty" db:"humidity"`
	Pressure    *float64 `json:"pressure,omitempty" db:"pressure"`
	WindSpeed   *float64 `json:"wind_speed,omitempty" db:"wind_speed"`

	Source     Source    `json:"source" db:"source"`
	IngestedAt time.Time `json:"ingested_at" db:"ingested_at"`
}

// Value returns the reading for the given pollutant, or false when the
// source did not report it.
func (m Measurement) Value(p Pollutant) (float64, bool) {
	switch p {
	case PollutantPM25:
		return deref(m.PM25)
	case PollutantPM10:
		return deref(m.PM10)
	case PollutantCO:
		return deref(m.CO)
	case PollutantNO2:
		return deref(m.NO2)
	case PollutantO3:
		return deref(m.O3)
	case PollutantSO2:
		return deref(m.SO2)
	case PollutantAQI:
		if m.AQI == 0 {
			return 0, false
		}
		return float64(m.AQI), true
	}
	return 0, false
}

func deref(v *float64) (float64, bool) {
	if v == nil {
		return 0, false
	}
	return *v, true
}

// EnrichMeasurement derives the AQI and its category when absent and stamps
// the ingestion time from the package clock. PM2.5 is the reference
// pollutant for derivation, matching the EPA convention.
func EnrichMeasurement(m Measurement) Measurement {
	if m.AQI == 0 && m.PM25 != nil {
		m.AQI = DeriveAQI(*m.PM25)
	}
	if m.AQI > 0 && m.AQICategory == "" {
		m.AQICategory = CategoryForAQI(m.AQI)
	}
	m.IngestedAt = Now()
	return m
}

// pm25Breakpoints is the US EPA piecewise-linear table mapping a PM2.5
// concentration (µg/m³) onto the 0-500 AQI scale.
var pm25Breakpoints = []struct {
	concLow, concHigh float64
	aqiLow, aqiHigh   int
}{
	{0, 12.0, 0, 50},
	{12.1, 35.4, 51, 100},
	{35.5, 55.4, 101, 150},
	{55.5, 150.4, 151, 200},
	{150.5, 250.4, 201, 300},
	{250.5, 500.4, 301, 500},
}

// DeriveAQI converts a PM2.5 concentration into an AQI value by linear
// interpolation within its breakpoint band. Concentrations beyond the table
// clamp to 500.
func DeriveAQI(pm25 float64) int {
	if pm25 < 0 {
		return 0
	}
	for _, bp := range pm25Breakpoints {
		if pm25 >= bp.concLow && pm25 <= bp.concHigh {
			span := (float64(bp.aqiHigh-bp.aqiLow) / (bp.concHigh - bp.concLow)) * (pm25 - bp.concLow)
			return bp.aqiLow + int(span)
		}
	}
	return 500
}

// CategoryForAQI maps an AQI value to its EPA category label.
func CategoryForAQI(aqi int) string {
	switch {
	case aqi <= 50:
		return "Good"
	case aqi <= 100:
		return "Moderate"
	case aqi <= 150:
		return "Unhealthy for Sensitive Groups"
	case aqi <= 200:
		return "Unhealthy"
	case aqi <= 300:
		return "Very Unhealthy"
	default:
		return "Hazardous"
	}
}
