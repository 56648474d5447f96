// Package domain models air quality measurements, anomaly findings, and
// pollution alerts.
//
// # Measurement shape
//
// Every upstream source is normalized into one canonical Measurement per
// location per timestamp. Concentration fields are optional because sources
// report different subsets: OpenAQ reports individual parameter rows, IQAir
// reports a single US AQI value plus weather, and the synthetic generator
// reports the full set. At least one of {concentrations, AQI} is always
// present; when AQI is absent it is derived from PM2.5.
//
// # AQI derivation
//
// The Air Quality Index is the US EPA 0-500 scale. Derivation uses the EPA
// PM2.5 breakpoint table with linear interpolation inside each band:
//
//	0.0-12.0  µg/m³ → AQI   0-50   Good
//	12.1-35.4       → AQI  51-100  Moderate
//	35.5-55.4       → AQI 101-150  Unhealthy for Sensitive Groups
//	55.5-150.4      → AQI 151-200  Unhealthy
//	150.5-250.4     → AQI 201-300  Very Unhealthy
//	250.5-500.4     → AQI 301-500  Hazardous
//
// Concentrations beyond the last band clamp to 500.
//
// # Severity scale
//
// Findings and alerts carry a four-level, totally ordered severity:
// info < warning < alert < critical. Severity is a pure function of
// (pollutant, value) over the shared threshold table, so findings from
// different strategies are directly comparable. Band boundaries follow WHO
// and EPA guidance; see [DefaultThresholds].
//
// # Deduplication key
//
// Candidate findings collapse to at most one alert per (location,
// pollutant, hour bucket), keeping the highest severity. Exact severity
// ties keep the first candidate seen.
package domain
