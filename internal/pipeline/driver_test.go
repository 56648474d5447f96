package pipeline

import (
	"context"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/air-quality-sentinel/internal/detector"
	"github.com/couchcryptid/air-quality-sentinel/internal/domain"
	"github.com/couchcryptid/air-quality-sentinel/internal/observability"
	"github.com/couchcryptid/air-quality-sentinel/internal/publisher"
	"github.com/couchcryptid/air-quality-sentinel/internal/store"
)

var steadyPM25 = []float64{
	48.2, 51.7, 49.5, 53.1, 46.8, 50.4, 52.9, 47.3, 50.0, 54.6,
	45.9, 49.1, 51.2, 48.8, 52.3, 50.7, 47.6, 53.8, 49.9, 51.5,
}

type fakeCollector struct {
	batch []domain.Measurement
	calls atomic.Int32
}

func (f *fakeCollector) CollectAll(_ context.Context, _ []domain.Location) []domain.Measurement {
	f.calls.Add(1)
	return f.batch
}

type fakeSink struct {
	alerts []domain.Alert
}

func (s *fakeSink) PublishAlert(_ context.Context, alert domain.Alert) error {
	s.alerts = append(s.alerts, alert)
	return nil
}

type fakeStreams struct {
	measurementBatches atomic.Int32
	weatherBatches     atomic.Int32
}

func (s *fakeStreams) PublishMeasurements(_ context.Context, _ []domain.Measurement) error {
	s.measurementBatches.Add(1)
	return nil
}

func (s *fakeStreams) PublishWeather(_ context.Context, _ []domain.Measurement) error {
	s.weatherBatches.Add(1)
	return nil
}

// twoLocationBatch builds 48 hourly measurements per location ending at now.
// Location B carries one injected pollution spike 24 hours back.
func twoLocationBatch(now time.Time) []domain.Measurement {
	var out []domain.Measurement
	for _, loc := range []string{"Chicago", "Delhi"} {
		for i := 0; i < 48; i++ {
			v := steadyPM25[i%len(steadyPM25)]
			if loc == "Delhi" && i == 24 {
				v = 300
			}
			pm25 := v
			out = append(out, domain.Measurement{
				LocationID: loc,
				Timestamp:  now.Add(time.Duration(i-47) * time.Hour),
				PM25:       &pm25,
				Source:     domain.SourceSynthetic,
			})
		}
	}
	return out
}

type harness struct {
	driver    *Driver
	collector *fakeCollector
	sink      *fakeSink
	streams   *fakeStreams
	store     *store.Memory
	clock     *clockwork.FakeClock
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	fc := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC))
	domain.SetClock(fc)
	t.Cleanup(func() { domain.SetClock(nil) })

	logger := slog.New(slog.DiscardHandler)
	metrics := observability.NewMetricsForTesting()
	st := store.NewMemory()
	sink := &fakeSink{}
	streams := &fakeStreams{}
	col := &fakeCollector{batch: twoLocationBatch(fc.Now().UTC())}

	det := detector.New(domain.DefaultThresholds(), nil, logger, metrics)
	pub := publisher.New(st, sink, publisher.Options{
		SeverityFloor:     domain.SeverityWarning,
		SuppressionWindow: time.Hour,
		PublishTimeout:    time.Second,
	}, logger, metrics)

	d := New(col, det, pub, streams, st, Options{
		Locations: []domain.Location{
			{ID: "Chicago"}, {ID: "Delhi"},
		},
		DetectionWindow: 48 * time.Hour,
		CollectInterval: 5 * time.Minute,
		Clock:           fc,
	}, logger, metrics)

	return &harness{driver: d, collector: col, sink: sink, streams: streams, store: st, clock: fc}
}

func TestRunOnce_EndToEnd(t *testing.T) {
	h := newHarness(t)

	stats, err := h.driver.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 96, stats.Collected)
	assert.Equal(t, 96, stats.WindowSize)
	assert.NotEmpty(t, stats.CycleID)
	assert.Zero(t, stats.Errors)

	require.Len(t, h.sink.alerts, 1, "only the injected spike should alert")
	alert := h.sink.alerts[0]
	assert.Equal(t, "Delhi", alert.LocationID)
	assert.Equal(t, domain.PollutantPM25, alert.Pollutant)
	assert.InEpsilon(t, 300.0, alert.Value, 1e-9)
	assert.Equal(t, domain.SeverityAlert, alert.Severity)

	for _, a := range h.store.Alerts() {
		assert.NotEqual(t, "Chicago", a.LocationID, "steady location must stay quiet")
	}

	assert.EqualValues(t, 1, h.streams.measurementBatches.Load())
	assert.NoError(t, h.driver.CheckReadiness(context.Background()))
}

func TestRunOnce_RepeatIsSuppressed(t *testing.T) {
	h := newHarness(t)

	first, err := h.driver.RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, first.Published)

	second, err := h.driver.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Zero(t, second.Published, "unchanged data must not re-alert")
	assert.GreaterOrEqual(t, second.Suppressed, 1)
	assert.Len(t, h.store.Alerts(), 1)
	assert.Len(t, h.sink.alerts, 1)
}

func TestRunOnce_NotReadyBeforeFirstCycle(t *testing.T) {
	h := newHarness(t)
	assert.Error(t, h.driver.CheckReadiness(context.Background()))
}

func TestRunOnce_StoreFailureDegradesToCollectedBatch(t *testing.T) {
	h := newHarness(t)
	failing := &failingStore{Memory: h.store}
	h.driver.store = failing

	stats, err := h.driver.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 96, stats.WindowSize, "detection falls back to the collected batch")
	assert.GreaterOrEqual(t, stats.Errors, 2, "insert and window load both failed")
	require.Len(t, h.sink.alerts, 1, "detection still runs on the in-memory batch")
}

type failingStore struct {
	*store.Memory
}

func (f *failingStore) InsertMeasurements(_ context.Context, _ []domain.Measurement) error {
	return store.ErrUnavailable
}

func (f *failingStore) RecentMeasurements(_ context.Context, _ time.Time) ([]domain.Measurement, error) {
	return nil, store.ErrUnavailable
}

func TestStatusSnapshot(t *testing.T) {
	h := newHarness(t)

	_, err := h.driver.RunOnce(context.Background())
	require.NoError(t, err)

	snap, ok := h.driver.Status().(struct {
		State     State      `json:"state"`
		Ready     bool       `json:"ready"`
		LastCycle CycleStats `json:"last_cycle"`
	})
	require.True(t, ok)
	assert.Equal(t, StateIdle, snap.State)
	assert.True(t, snap.Ready)
	assert.Equal(t, 96, snap.LastCycle.Collected)
}

func TestRunContinuous_CyclesOnInterval(t *testing.T) {
	h := newHarness(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.driver.RunContinuous(ctx) }()

	require.Eventually(t, func() bool {
		return h.collector.calls.Load() == 1
	}, 2*time.Second, 5*time.Millisecond, "first cycle runs immediately")

	h.clock.BlockUntil(1)
	h.clock.Advance(5 * time.Minute)

	require.Eventually(t, func() bool {
		return h.collector.calls.Load() == 2
	}, 2*time.Second, 5*time.Millisecond, "second cycle fires on the interval")

	cancel()
	require.NoError(t, <-done)
}

func TestRunScheduled_AlignsToHourBoundary(t *testing.T) {
	h := newHarness(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.driver.RunScheduled(ctx) }()

	require.Eventually(t, func() bool {
		return h.collector.calls.Load() == 1
	}, 2*time.Second, 5*time.Millisecond)

	// Clock starts at 12:30; the next cycle is due at 13:00.
	h.clock.BlockUntil(1)
	h.clock.Advance(29 * time.Minute)
	time.Sleep(20 * time.Millisecond)
	assert.EqualValues(t, 1, h.collector.calls.Load(), "nothing fires before the hour boundary")

	h.clock.Advance(time.Minute)
	require.Eventually(t, func() bool {
		return h.collector.calls.Load() == 2
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}
