package detector

import (
	"fmt"
	"math"
	"strings"

	"github.com/couchcryptid/air-quality-sentinel/internal/domain"
)

const (
	zScoreCutoff     = 3.0
	iqrFenceFactor   = 1.5
	rollingWindow    = 12
	rollingMinSeries = 24
	rollingSigma     = 2.0
)

// detectStatistical flags per-pollutant series outliers using three
// overlapping tests: z-score against the series mean, Tukey IQR fences, and
// a centered rolling-window z-score on longer series. A point flagged by
// more than one test yields a single anomaly tagged with every method that
// fired.
func (d *Detector) detectStatistical(locations []locationSeries) []domain.Anomaly {
	var out []domain.Anomaly
	for _, loc := range locations {
		for _, p := range domain.Pollutants {
			if p == domain.PollutantAQI {
				continue
			}
			values, indexes := seriesFor(loc.measurements, p)
			if len(values) < minStatisticalSamples {
				continue
			}
			out = append(out, d.seriesAnomalies(loc, p, values, indexes)...)
		}
	}
	return out
}

// seriesFor extracts the non-missing values of one pollutant and the
// measurement indexes they came from.
func seriesFor(measurements []domain.Measurement, p domain.Pollutant) ([]float64, []int) {
	var values []float64
	var indexes []int
	for i, m := range measurements {
		if v, ok := m.Value(p); ok {
			values = append(values, v)
			indexes = append(indexes, i)
		}
	}
	return values, indexes
}

func (d *Detector) seriesAnomalies(loc locationSeries, p domain.Pollutant, values []float64, indexes []int) []domain.Anomaly {
	m := mean(values)
	sd := sampleStd(values, m)

	q1 := quantile(values, 0.25)
	q3 := quantile(values, 0.75)
	iqr := q3 - q1
	lowFence := q1 - iqrFenceFactor*iqr
	highFence := q3 + iqrFenceFactor*iqr

	rolling := rollingFlags(values)

	expected := &domain.Range{
		Low:  quantile(values, 0.10),
		High: quantile(values, 0.90),
	}

	var out []domain.Anomaly
	for i, v := range values {
		var methods []string
		if sd > 0 && math.Abs(v-m)/sd > zScoreCutoff {
			methods = append(methods, "z_score")
		}
		if v < lowFence || v > highFence {
			methods = append(methods, "iqr")
		}
		if rolling != nil && rolling[i] {
			methods = append(methods, "rolling")
		}
		if len(methods) == 0 {
			continue
		}

		src := loc.measurements[indexes[i]]
		out = append(out, domain.Anomaly{
			Type:          domain.DetectionStatistical,
			LocationID:    loc.id,
			Timestamp:     src.Timestamp,
			Pollutant:     p,
			Value:         v,
			ExpectedRange: expected,
			Severity:      d.thresholds.SeverityFor(p, v),
			Methods:       methods,
			Message: fmt.Sprintf("Statistical anomaly detected: %s level of %.2f in %s",
				strings.ToUpper(string(p)), v, loc.id),
			Latitude:  src.Latitude,
			Longitude: src.Longitude,
		})
	}
	return out
}

// rollingFlags marks points more than rollingSigma deviations from the mean
// of a centered window of rollingWindow neighbours. Edge points without a
// full window are never flagged. Returns nil for series too short to test.
func rollingFlags(values []float64) []bool {
	if len(values) < rollingMinSeries {
		return nil
	}
	half := rollingWindow / 2
	flags := make([]bool, len(values))
	for i := half; i+half <= len(values); i++ {
		window := values[i-half : i+half]
		wm := mean(window)
		wsd := sampleStd(window, wm)
		if wsd > 0 && math.Abs(values[i]-wm)/wsd > rollingSigma {
			flags[i] = true
		}
	}
	return flags
}
