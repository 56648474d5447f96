package domain_test

import (
	"testing"
	"time"

	"github.com/couchcryptid/air-quality-sentinel/internal/domain"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func f64(v float64) *float64 { return &v }

func TestDeriveAQI_Breakpoints(t *testing.T) {
	aqi := domain.DeriveAQI(10.0)
	assert.GreaterOrEqual(t, aqi, 0)
	assert.LessOrEqual(t, aqi, 50)
	assert.Equal(t, "Good", domain.CategoryForAQI(aqi))

	aqi = domain.DeriveAQI(100.0)
	assert.GreaterOrEqual(t, aqi, 151)
	assert.LessOrEqual(t, aqi, 200)
	assert.Equal(t, "Unhealthy", domain.CategoryForAQI(aqi))

	// Beyond the last band clamps to the scale maximum.
	assert.Equal(t, 500, domain.DeriveAQI(900))
	assert.Equal(t, 0, domain.DeriveAQI(-1))
}

func TestEnrichMeasurement_DerivesAQIFromPM25(t *testing.T) {
	fakeClock := clockwork.NewFakeClockAt(time.Date(2026, time.March, 14, 9, 0, 0, 0, time.UTC))
	domain.SetClock(fakeClock)
	t.Cleanup(func() { domain.SetClock(nil) })

	m := domain.EnrichMeasurement(domain.Measurement{
		LocationID: "Delhi",
		PM25:       f64(100.0),
		Source:     domain.SourceOpenAQ,
	})

	require.NotZero(t, m.AQI)
	assert.Equal(t, "Unhealthy", m.AQICategory)
	assert.Equal(t, fakeClock.Now().UTC(), m.IngestedAt)
}

func TestEnrichMeasurement_KeepsProvidedAQI(t *testing.T) {
	m := domain.EnrichMeasurement(domain.Measurement{
		LocationID: "Tokyo",
		AQI:        42,
		Source:     domain.SourceIQAir,
	})
	assert.Equal(t, 42, m.AQI)
	assert.Equal(t, "Good", m.AQICategory)
}

func TestMeasurement_Value(t *testing.T) {
	m := domain.Measurement{PM25: f64(12.5), AQI: 52}

	v, ok := m.Value(domain.PollutantPM25)
	require.True(t, ok)
	assert.InEpsilon(t, 12.5, v, 1e-9)

	v, ok = m.Value(domain.PollutantAQI)
	require.True(t, ok)
	assert.InEpsilon(t, 52.0, v, 1e-9)

	_, ok = m.Value(domain.PollutantSO2)
	assert.False(t, ok)
}

func TestSeverity_TotalOrder(t *testing.T) {
	ordered := []domain.Severity{
		domain.SeverityInfo,
		domain.SeverityWarning,
		domain.SeverityAlert,
		domain.SeverityCritical,
	}
	for i := 1; i < len(ordered); i++ {
		assert.Less(t, ordered[i-1], ordered[i])
	}
}

func TestSeverity_RoundTrip(t *testing.T) {
	for _, s := range []domain.Severity{
		domain.SeverityInfo, domain.SeverityWarning,
		domain.SeverityAlert, domain.SeverityCritical,
	} {
		parsed, err := domain.ParseSeverity(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, parsed)
	}

	_, err := domain.ParseSeverity("catastrophic")
	assert.Error(t, err)
}

func TestAnomaly_KeyTruncatesToHour(t *testing.T) {
	a := domain.Anomaly{
		LocationID: "Beijing",
		Pollutant:  domain.PollutantPM25,
		Timestamp:  time.Date(2026, time.March, 14, 9, 42, 31, 0, time.UTC),
	}
	b := a
	b.Timestamp = time.Date(2026, time.March, 14, 9, 3, 0, 0, time.UTC)

	assert.Equal(t, a.Key(), b.Key())
	assert.Equal(t, time.Date(2026, time.March, 14, 9, 0, 0, 0, time.UTC), a.Key().HourBucket)
}
