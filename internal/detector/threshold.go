package detector

import (
	"fmt"
	"strings"

	"github.com/couchcryptid/air-quality-sentinel/internal/domain"
)

// detectThreshold checks only the latest record per location against the
// static threshold table and any active alert rules. Older records in the
// window are the statistical strategies' business; threshold violations are
// about current air.
func (d *Detector) detectThreshold(locations []locationSeries, rules []domain.AlertRule) []domain.Anomaly {
	var out []domain.Anomaly
	for _, loc := range locations {
		latest := loc.measurements[len(loc.measurements)-1]
		for _, p := range domain.Pollutants {
			v, ok := latest.Value(p)
			if !ok {
				continue
			}
			if threshold, severity, violated := d.thresholds.Violation(p, v); violated {
				out = append(out, d.thresholdAnomaly(loc.id, latest, p, v, threshold, severity, nil))
			}
			for _, rule := range rules {
				if !rule.Active || rule.Pollutant != p || !rule.AppliesTo(loc.id) {
					continue
				}
				if v >= rule.Threshold {
					out = append(out, d.thresholdAnomaly(loc.id, latest, p, v, rule.Threshold, rule.Severity,
						[]string{"rule:" + rule.Name}))
				}
			}
		}
	}
	return out
}

func (d *Detector) thresholdAnomaly(locationID string, m domain.Measurement, p domain.Pollutant, value, threshold float64, severity domain.Severity, methods []string) domain.Anomaly {
	if methods == nil {
		methods = []string{"static_threshold"}
	}
	return domain.Anomaly{
		Type:       domain.DetectionThreshold,
		LocationID: locationID,
		Timestamp:  m.Timestamp,
		Pollutant:  p,
		Value:      value,
		Severity:   severity,
		Threshold:  threshold,
		Methods:    methods,
		Message: fmt.Sprintf("%s level exceeds %s threshold in %s: %.2f (threshold: %g)",
			strings.ToUpper(string(p)), severity, locationID, value, threshold),
		HealthImpact:    healthImpact(p, severity),
		Recommendations: recommendations(severity),
		Latitude:        m.Latitude,
		Longitude:       m.Longitude,
	}
}

func healthImpact(p domain.Pollutant, severity domain.Severity) string {
	switch p {
	case domain.PollutantPM25, domain.PollutantPM10:
		if severity >= domain.SeverityCritical {
			return "Serious risk of respiratory and cardiovascular effects for everyone"
		}
		if severity >= domain.SeverityAlert {
			return "Increased respiratory symptoms likely; sensitive groups at serious risk"
		}
		return "Sensitive groups may experience respiratory symptoms"
	case domain.PollutantO3:
		if severity >= domain.SeverityAlert {
			return "Breathing discomfort and reduced lung function likely during outdoor activity"
		}
		return "People with asthma may experience breathing discomfort outdoors"
	case domain.PollutantNO2:
		return "Airway inflammation possible, especially near heavy traffic"
	case domain.PollutantCO:
		return "Reduced oxygen delivery; chest pain possible for people with heart disease"
	case domain.PollutantSO2:
		return "Breathing difficulty possible for people with asthma"
	default:
		if severity >= domain.SeverityAlert {
			return "Health effects likely for the general population"
		}
		return "Health effects possible for sensitive groups"
	}
}

func recommendations(severity domain.Severity) []string {
	switch {
	case severity >= domain.SeverityCritical:
		return []string{
			"Stay indoors with windows closed",
			"Run air purifiers if available",
			"Avoid all outdoor physical activity",
		}
	case severity >= domain.SeverityAlert:
		return []string{
			"Limit prolonged outdoor exertion",
			"Sensitive groups should stay indoors",
			"Wear an N95 mask if going outside",
		}
	default:
		return []string{
			"Sensitive groups should reduce prolonged outdoor exertion",
			"Keep windows closed during peak pollution hours",
		}
	}
}
