package publisher

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/air-quality-sentinel/internal/domain"
	"github.com/couchcryptid/air-quality-sentinel/internal/observability"
	"github.com/couchcryptid/air-quality-sentinel/internal/store"
)

type sinkCall struct {
	alert domain.Alert
}

type fakeSink struct {
	calls    []sinkCall
	failures int
}

func (s *fakeSink) PublishAlert(_ context.Context, alert domain.Alert) error {
	if s.failures > 0 {
		s.failures--
		return errors.New("broker unavailable")
	}
	s.calls = append(s.calls, sinkCall{alert: alert})
	return nil
}

type fakeEmailer struct {
	digests [][]domain.Alert
	err     error
}

func (e *fakeEmailer) SendDigest(_ context.Context, alerts []domain.Alert) error {
	if e.err != nil {
		return e.err
	}
	e.digests = append(e.digests, alerts)
	return nil
}

func frozenClock(t *testing.T) *clockwork.FakeClock {
	t.Helper()
	fc := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 14, 0, 0, 0, time.UTC))
	domain.SetClock(fc)
	t.Cleanup(func() { domain.SetClock(nil) })
	return fc
}

func newTestPublisher(t *testing.T, st store.AlertStore, sink AlertSink, emailer Emailer) *Publisher {
	t.Helper()
	return New(st, sink, Options{
		SeverityFloor:     domain.SeverityCritical,
		SuppressionWindow: time.Hour,
		PublishTimeout:    time.Second,
		Emailer:           emailer,
	}, slog.New(slog.DiscardHandler), observability.NewMetricsForTesting())
}

func criticalAnomaly(location string) domain.Anomaly {
	return domain.Anomaly{
		Type:       domain.DetectionThreshold,
		LocationID: location,
		Timestamp:  domain.Now(),
		Pollutant:  domain.PollutantPM25,
		Value:      510,
		Threshold:  500,
		Severity:   domain.SeverityCritical,
		Message:    "PM25 level exceeds critical threshold in " + location + ": 510.00 (threshold: 500)",
	}
}

func TestPublish_PersistsAndStreams(t *testing.T) {
	frozenClock(t)
	st := store.NewMemory()
	sink := &fakeSink{}
	emailer := &fakeEmailer{}
	p := newTestPublisher(t, st, sink, emailer)

	res, err := p.Publish(context.Background(), []domain.Anomaly{criticalAnomaly("Delhi")})
	require.NoError(t, err)

	require.Len(t, res.Published, 1)
	assert.NotZero(t, res.Published[0].ID, "insert should assign the ID")
	require.Len(t, sink.calls, 1)
	assert.Equal(t, "Delhi", sink.calls[0].alert.LocationID)
	require.Len(t, emailer.digests, 1)
	assert.Len(t, emailer.digests[0], 1)
	assert.Len(t, st.Alerts(), 1)
}

func TestPublish_DropsBelowSeverityFloor(t *testing.T) {
	frozenClock(t)
	st := store.NewMemory()
	sink := &fakeSink{}
	p := newTestPublisher(t, st, sink, nil)

	a := criticalAnomaly("Delhi")
	a.Severity = domain.SeverityAlert

	res, err := p.Publish(context.Background(), []domain.Anomaly{a})
	require.NoError(t, err)

	assert.Equal(t, 1, res.BelowFloor)
	assert.Empty(t, res.Published)
	assert.Empty(t, sink.calls)
	assert.Empty(t, st.Alerts())
}

func TestPublish_SuppressesRepeatWithinWindow(t *testing.T) {
	fc := frozenClock(t)
	st := store.NewMemory()
	sink := &fakeSink{}
	p := newTestPublisher(t, st, sink, nil)

	first, err := p.Publish(context.Background(), []domain.Anomaly{criticalAnomaly("Delhi")})
	require.NoError(t, err)
	require.Len(t, first.Published, 1)

	fc.Advance(30 * time.Minute)
	second, err := p.Publish(context.Background(), []domain.Anomaly{criticalAnomaly("Delhi")})
	require.NoError(t, err)

	assert.Empty(t, second.Published)
	assert.Equal(t, 1, second.Suppressed)
	assert.Len(t, st.Alerts(), 1, "the repeat must not be persisted")
	assert.Len(t, sink.calls, 1)
}

func TestPublish_RepeatAfterWindowPublishesAgain(t *testing.T) {
	fc := frozenClock(t)
	st := store.NewMemory()
	sink := &fakeSink{}
	p := newTestPublisher(t, st, sink, nil)

	_, err := p.Publish(context.Background(), []domain.Anomaly{criticalAnomaly("Delhi")})
	require.NoError(t, err)

	fc.Advance(2 * time.Hour)
	res, err := p.Publish(context.Background(), []domain.Anomaly{criticalAnomaly("Delhi")})
	require.NoError(t, err)

	require.Len(t, res.Published, 1)
	assert.Len(t, st.Alerts(), 2)
}

func TestPublish_AcknowledgeLiftsSuppression(t *testing.T) {
	fc := frozenClock(t)
	st := store.NewMemory()
	sink := &fakeSink{}
	p := newTestPublisher(t, st, sink, nil)

	first, err := p.Publish(context.Background(), []domain.Anomaly{criticalAnomaly("Delhi")})
	require.NoError(t, err)
	require.Len(t, first.Published, 1)

	require.NoError(t, p.Acknowledge(context.Background(), first.Published[0].ID))

	fc.Advance(10 * time.Minute)
	res, err := p.Publish(context.Background(), []domain.Anomaly{criticalAnomaly("Delhi")})
	require.NoError(t, err)

	require.Len(t, res.Published, 1, "acknowledged alerts must not suppress repeats")
	assert.Len(t, st.Alerts(), 2)
}

func TestPublish_RetriesStreamWriteOnce(t *testing.T) {
	frozenClock(t)
	st := store.NewMemory()
	sink := &fakeSink{failures: 1}
	p := newTestPublisher(t, st, sink, nil)

	res, err := p.Publish(context.Background(), []domain.Anomaly{criticalAnomaly("Delhi")})
	require.NoError(t, err)

	require.Len(t, res.Published, 1, "a single transient failure should be retried")
	assert.Zero(t, res.Errors)
	require.Len(t, sink.calls, 1)
}

func TestPublish_StreamFailureKeepsAlertPersisted(t *testing.T) {
	frozenClock(t)
	st := store.NewMemory()
	sink := &fakeSink{failures: 2}
	p := newTestPublisher(t, st, sink, nil)

	res, err := p.Publish(context.Background(), []domain.Anomaly{criticalAnomaly("Delhi")})
	require.NoError(t, err)

	assert.Empty(t, res.Published)
	assert.Equal(t, 1, res.Errors)
	assert.Len(t, st.Alerts(), 1, "persisted even though the stream write failed")
}

func TestPublish_PerAlertFailureDoesNotStopOthers(t *testing.T) {
	frozenClock(t)
	st := store.NewMemory()
	sink := &fakeSink{failures: 2}
	p := newTestPublisher(t, st, sink, nil)

	res, err := p.Publish(context.Background(), []domain.Anomaly{
		criticalAnomaly("Delhi"),
		criticalAnomaly("Beijing"),
	})
	require.NoError(t, err)

	require.Len(t, res.Published, 1)
	assert.Equal(t, "Beijing", res.Published[0].LocationID)
	assert.Equal(t, 1, res.Errors)
}

func TestPublish_DigestFailureDoesNotFailCycle(t *testing.T) {
	frozenClock(t)
	st := store.NewMemory()
	sink := &fakeSink{}
	emailer := &fakeEmailer{err: errors.New("smtp timeout")}
	p := newTestPublisher(t, st, sink, emailer)

	res, err := p.Publish(context.Background(), []domain.Anomaly{criticalAnomaly("Delhi")})
	require.NoError(t, err)
	assert.Len(t, res.Published, 1)
}

func TestDigestBody(t *testing.T) {
	alerts := []domain.Alert{
		{
			LocationID: "Delhi",
			Severity:   domain.SeverityAlert,
			Pollutant:  domain.PollutantPM25,
			Value:      160,
			Threshold:  150,
			Message:    "PM25 level exceeds alert threshold in Delhi: 160.00 (threshold: 150)",
			Timestamp:  time.Date(2026, 3, 1, 14, 0, 0, 0, time.UTC),
		},
		{
			LocationID: "Beijing",
			Severity:   domain.SeverityCritical,
			Pollutant:  domain.PollutantPM25,
			Value:      510,
			Threshold:  500,
			Message:    "PM25 level exceeds critical threshold in Beijing: 510.00 (threshold: 500)",
			Timestamp:  time.Date(2026, 3, 1, 14, 0, 0, 0, time.UTC),
		},
	}

	body := string(digestBody("sender@example.com", "oncall@example.com", alerts))

	assert.Contains(t, body, "Subject: Air quality digest: 2 alert(s), max severity critical")
	assert.Contains(t, body, "[ALERT] PM25 level exceeds alert threshold in Delhi")
	assert.Contains(t, body, "[CRITICAL] PM25 level exceeds critical threshold in Beijing")
	assert.Contains(t, body, "To: oncall@example.com")
}
