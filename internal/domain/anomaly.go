package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// DetectionType names the strategy that produced a candidate finding.
type DetectionType string

const (
	DetectionStatistical  DetectionType = "statistical"
	DetectionMultivariate DetectionType = "multivariate"
	DetectionCorrelated   DetectionType = "correlated_condition"
	DetectionThreshold    DetectionType = "threshold"
)

// Severity is a totally ordered alert level. The numeric values are the
// comparison weights; larger means more severe.
type Severity int

const (
	SeverityInfo Severity = iota + 1
	SeverityWarning
	SeverityAlert
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityAlert:
		return "alert"
	case SeverityCritical:
		return "critical"
	}
	return fmt.Sprintf("severity(%d)", int(s))
}

// ParseSeverity converts a severity label to its typed value.
func ParseSeverity(s string) (Severity, error) {
	switch s {
	case "info":
		return SeverityInfo, nil
	case "warning":
		return SeverityWarning, nil
	case "alert":
		return SeverityAlert, nil
	case "critical":
		return SeverityCritical, nil
	}
	return 0, fmt.Errorf("unknown severity %q", s)
}

// MarshalJSON serializes the severity as its label.
func (s Severity) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON parses a severity label.
func (s *Severity) UnmarshalJSON(data []byte) error {
	var label string
	if err := json.Unmarshal(data, &label); err != nil {
		return err
	}
	parsed, err := ParseSeverity(label)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Range is an expected low/high band for a flagged value.
type Range struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

// Anomaly is one candidate finding emitted by a detection strategy.
// Candidates are transient: only the deduplicated, highest-severity subset
// becomes persisted alerts.
type Anomaly struct {
	Type          DetectionType `json:"type"`
	LocationID    string        `json:"location_id"`
	Timestamp     time.Time     `json:"timestamp"`
	Pollutant     Pollutant     `json:"pollutant"`
	Value         float64       `json:"value"`
	ExpectedRange *Range        `json:"expected_range,omitempty"`
	Severity      Severity      `json:"severity"`

	// Methods records which sub-tests flagged the point, e.g. z_score, iqr.
	Methods []string `json:"methods,omitempty"`

	Message string `json:"message"`

	// Threshold holds the band boundary exceeded; only set by the threshold
	// strategy and by rule violations.
	Threshold float64 `json:"threshold,omitempty"`

	HealthImpact    string   `json:"health_impact,omitempty"`
	Recommendations []string `json:"recommendations,omitempty"`

	Latitude  float64 `json:"latitude,omitempty"`
	Longitude float64 `json:"longitude,omitempty"`
}

// DedupKey is the composite grouping key for deduplication: one surviving
// finding per location, pollutant, and hour bucket.
type DedupKey struct {
	LocationID string
	Pollutant  Pollutant
	HourBucket time.Time
}

// Key returns the anomaly's dedup group, with the timestamp truncated to
// the hour in UTC.
func (a Anomaly) Key() DedupKey {
	return DedupKey{
		LocationID: a.LocationID,
		Pollutant:  a.Pollutant,
		HourBucket: a.Timestamp.UTC().Truncate(time.Hour),
	}
}
