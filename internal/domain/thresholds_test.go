package domain_test

import (
	"testing"

	"github.com/couchcryptid/air-quality-sentinel/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeverityFor_PM25Bands(t *testing.T) {
	table := domain.DefaultThresholds()

	assert.Equal(t, domain.SeverityInfo, table.SeverityFor(domain.PollutantPM25, 20))
	assert.Equal(t, domain.SeverityWarning, table.SeverityFor(domain.PollutantPM25, 60))
	assert.Equal(t, domain.SeverityAlert, table.SeverityFor(domain.PollutantPM25, 200))
	assert.Equal(t, domain.SeverityAlert, table.SeverityFor(domain.PollutantPM25, 300))
	assert.Equal(t, domain.SeverityCritical, table.SeverityFor(domain.PollutantPM25, 500))
}

func TestSeverityFor_UnknownPollutantDefaultsToWarning(t *testing.T) {
	table := domain.ThresholdTable{}
	assert.Equal(t, domain.SeverityWarning, table.SeverityFor(domain.PollutantPM25, 1000))
}

func TestViolation_HighestBandExceeded(t *testing.T) {
	table := domain.DefaultThresholds()

	// 200 exceeds unhealthy (150) but not very-unhealthy (250).
	threshold, severity, ok := table.Violation(domain.PollutantPM25, 200)
	require.True(t, ok)
	assert.InEpsilon(t, 150.0, threshold, 1e-9)
	assert.Equal(t, domain.SeverityAlert, severity)

	threshold, severity, ok = table.Violation(domain.PollutantPM25, 600)
	require.True(t, ok)
	assert.InEpsilon(t, 500.0, threshold, 1e-9)
	assert.Equal(t, domain.SeverityCritical, severity)

	_, _, ok = table.Violation(domain.PollutantPM25, 30)
	assert.False(t, ok)
}

func TestAlertRule_AppliesTo(t *testing.T) {
	all := domain.AlertRule{Name: "pm25-global", Pollutant: domain.PollutantPM25}
	assert.True(t, all.AppliesTo("Paris"))

	scoped := domain.AlertRule{
		Name:            "pm25-delhi",
		Pollutant:       domain.PollutantPM25,
		TargetLocations: []string{"Delhi", "Beijing"},
	}
	assert.True(t, scoped.AppliesTo("Delhi"))
	assert.False(t, scoped.AppliesTo("Paris"))
}
