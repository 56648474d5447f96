// Package detector runs four independent anomaly detection strategies over
// a recent window of measurements and deduplicates the candidate findings.
//
// The strategies are pure functions over the same immutable snapshot:
// statistical outliers per pollutant series, multivariate outliers over the
// standardized pollutant+weather feature space, correlated weather/pollution
// conditions, and static or rule-supplied threshold violations. Their
// outputs are concatenated; no strategy suppresses another before
// deduplication.
package detector

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/couchcryptid/air-quality-sentinel/internal/domain"
	"github.com/couchcryptid/air-quality-sentinel/internal/observability"
)

const (
	// minStatisticalSamples gates the per-series statistical tests.
	minStatisticalSamples = 10
	// minMultivariateSamples gates the multivariate tests per location.
	minMultivariateSamples = 20
	// minCorrelatedSamples gates the correlated-condition checks per location.
	minCorrelatedSamples = 10
)

// Detector coordinates the detection strategies.
type Detector struct {
	thresholds domain.ThresholdTable
	scorer     Scorer
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// New creates a Detector. A nil scorer selects the Mahalanobis default.
func New(thresholds domain.ThresholdTable, scorer Scorer, logger *slog.Logger, metrics *observability.Metrics) *Detector {
	if scorer == nil {
		scorer = NewMahalanobisScorer()
	}
	return &Detector{
		thresholds: thresholds,
		scorer:     scorer,
		logger:     logger,
		metrics:    metrics,
	}
}

// Detect runs all four strategies over the window and returns the
// concatenated candidates. Strategies run concurrently; the merge order is
// fixed (statistical, multivariate, correlated, threshold) so output is
// deterministic regardless of completion order.
func (d *Detector) Detect(window []domain.Measurement, rules []domain.AlertRule) []domain.Anomaly {
	if len(window) == 0 {
		return nil
	}

	byLocation := groupByLocation(window)

	results := make([][]domain.Anomaly, 4)
	var wg sync.WaitGroup
	run := func(slot int, fn func() []domain.Anomaly) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[slot] = fn()
		}()
	}

	run(0, func() []domain.Anomaly { return d.detectStatistical(byLocation) })
	run(1, func() []domain.Anomaly { return d.detectMultivariate(byLocation) })
	run(2, func() []domain.Anomaly { return d.detectCorrelated(byLocation) })
	run(3, func() []domain.Anomaly { return d.detectThreshold(byLocation, rules) })
	wg.Wait()

	var all []domain.Anomaly
	for slot, batch := range results {
		all = append(all, batch...)
		d.metrics.AnomaliesDetected.WithLabelValues(strategyNames[slot]).Add(float64(len(batch)))
	}

	d.logger.Info("detection complete",
		"window_size", len(window),
		"locations", len(byLocation),
		"candidates", len(all),
	)
	return all
}

var strategyNames = [4]string{"statistical", "multivariate", "correlated_condition", "threshold"}

// locationSeries is one location's measurements ordered oldest first.
type locationSeries struct {
	id           string
	measurements []domain.Measurement
}

// groupByLocation splits the window per location, sorted by time within a
// location and by location ID across the result for determinism.
func groupByLocation(window []domain.Measurement) []locationSeries {
	byID := make(map[string][]domain.Measurement)
	for _, m := range window {
		byID[m.LocationID] = append(byID[m.LocationID], m)
	}

	out := make([]locationSeries, 0, len(byID))
	for id, measurements := range byID {
		sort.SliceStable(measurements, func(i, j int) bool {
			return measurements[i].Timestamp.Before(measurements[j].Timestamp)
		})
		out = append(out, locationSeries{id: id, measurements: measurements})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}
