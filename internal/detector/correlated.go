package detector

import (
	"fmt"

	"github.com/couchcryptid/air-quality-sentinel/internal/domain"
)

const (
	stagnantWindMax  = 2.0
	humidHumidityMin = 85.0
)

// detectCorrelated flags records where weather conditions compound a
// pollution reading: stagnant air trapping particulates, and high humidity
// aggravating their health effects.
func (d *Detector) detectCorrelated(locations []locationSeries) []domain.Anomaly {
	moderate := d.thresholds[domain.PollutantPM25].Moderate
	sensitive := d.thresholds[domain.PollutantPM25].UnhealthySensitive

	var out []domain.Anomaly
	for _, loc := range locations {
		if len(loc.measurements) < minCorrelatedSamples {
			continue
		}
		for _, m := range loc.measurements {
			pm25, ok := m.Value(domain.PollutantPM25)
			if !ok || pm25 <= moderate {
				continue
			}
			if m.WindSpeed != nil && *m.WindSpeed <= stagnantWindMax {
				severity := domain.SeverityWarning
				if pm25 >= sensitive {
					severity = domain.SeverityAlert
				}
				out = append(out, domain.Anomaly{
					Type:       domain.DetectionCorrelated,
					LocationID: loc.id,
					Timestamp:  m.Timestamp,
					Pollutant:  domain.PollutantPM25,
					Value:      pm25,
					Severity:   severity,
					Methods:    []string{"stagnant_air"},
					Message: fmt.Sprintf("High pollution during stagnant air conditions in %s: PM2.5 %.1f µg/m³, wind %.1f m/s",
						loc.id, pm25, *m.WindSpeed),
					Latitude:  m.Latitude,
					Longitude: m.Longitude,
				})
			}
			if m.Humidity != nil && *m.Humidity >= humidHumidityMin {
				out = append(out, domain.Anomaly{
					Type:       domain.DetectionCorrelated,
					LocationID: loc.id,
					Timestamp:  m.Timestamp,
					Pollutant:  domain.PollutantPM25,
					Value:      pm25,
					Severity:   domain.SeverityWarning,
					Methods:    []string{"humid_haze"},
					Message: fmt.Sprintf("High pollution with high humidity in %s: PM2.5 %.1f µg/m³, humidity %.0f%%",
						loc.id, pm25, *m.Humidity),
					Latitude:  m.Latitude,
					Longitude: m.Longitude,
				})
			}
		}
	}
	return out
}
