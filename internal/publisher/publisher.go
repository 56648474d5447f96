// Package publisher turns deduplicated anomalies into persisted, published
// alerts. It applies the severity floor, enforces the suppression window
// against the store, fans alerts out to Kafka, and batches one email digest
// per cycle.
package publisher

import (
	"context"
	"log/slog"
	"time"

	"github.com/couchcryptid/air-quality-sentinel/internal/domain"
	"github.com/couchcryptid/air-quality-sentinel/internal/observability"
	"github.com/couchcryptid/air-quality-sentinel/internal/store"
)

// suppressionCacheSize bounds the fast-path cache; evictions fall back to
// the store check, so the bound affects latency only.
const suppressionCacheSize = 1024

// AlertSink publishes one alert to the stream.
type AlertSink interface {
	PublishAlert(ctx context.Context, alert domain.Alert) error
}

// Emailer sends one digest for a cycle's published alerts.
type Emailer interface {
	SendDigest(ctx context.Context, alerts []domain.Alert) error
}

// Options configures a Publisher.
type Options struct {
	// SeverityFloor drops anomalies below this level before any other work.
	SeverityFloor domain.Severity
	// SuppressionWindow is how long an unacknowledged alert mutes repeats
	// with the same location and message.
	SuppressionWindow time.Duration
	// PublishTimeout bounds each Kafka write attempt.
	PublishTimeout time.Duration
	// Emailer may be nil when no email sink is configured.
	Emailer Emailer
}

// Result summarizes one publishing pass.
type Result struct {
	Published  []domain.Alert
	BelowFloor int
	Suppressed int
	Errors     int
}

// Publisher persists and fans out alerts.
type Publisher struct {
	store   store.AlertStore
	sink    AlertSink
	emailer Emailer
	cache   *suppressionCache

	floor          domain.Severity
	window         time.Duration
	publishTimeout time.Duration

	logger  *slog.Logger
	metrics *observability.Metrics
}

// New creates a Publisher.
func New(alerts store.AlertStore, sink AlertSink, opts Options, logger *slog.Logger, metrics *observability.Metrics) *Publisher {
	return &Publisher{
		store:          alerts,
		sink:           sink,
		emailer:        opts.Emailer,
		cache:          newSuppressionCache(suppressionCacheSize),
		floor:          opts.SeverityFloor,
		window:         opts.SuppressionWindow,
		publishTimeout: opts.PublishTimeout,
		logger:         logger,
		metrics:        metrics,
	}
}

// Publish processes one cycle's deduplicated anomalies. Alerts below the
// severity floor are dropped, suppressed repeats are counted but not
// persisted, and everything else is inserted, streamed, and included in the
// cycle's email digest. Per-alert failures are contained: one bad alert does
// not stop the rest.
func (p *Publisher) Publish(ctx context.Context, anomalies []domain.Anomaly) (Result, error) {
	var res Result
	now := domain.Now()
	cutoff := now.Add(-p.window)

	for _, a := range anomalies {
		if a.Severity < p.floor {
			res.BelowFloor++
			continue
		}

		alert := domain.AnomalyToAlert(a)
		signature := alert.LocationID + "|" + alert.Message

		if p.cache.seenSince(signature, cutoff) {
			res.Suppressed++
			p.metrics.AlertsSuppressed.Inc()
			continue
		}

		inserted, err := p.store.InsertAlertIfNew(ctx, &alert, cutoff)
		if err != nil {
			res.Errors++
			p.metrics.PublishErrors.Inc()
			p.logger.Error("alert insert failed", "location", alert.LocationID, "error", err)
			continue
		}
		if !inserted {
			res.Suppressed++
			p.metrics.AlertsSuppressed.Inc()
			p.cache.record(signature, now)
			continue
		}

		if err := p.publishWithRetry(ctx, alert); err != nil {
			res.Errors++
			p.metrics.PublishErrors.Inc()
			p.logger.Error("alert publish failed",
				"location", alert.LocationID,
				"severity", alert.Severity,
				"error", err,
			)
			// The alert is persisted; suppression still applies even though
			// the stream write was lost.
			p.cache.record(signature, now)
			continue
		}

		p.cache.record(signature, now)
		p.metrics.AlertsPublished.Inc()
		res.Published = append(res.Published, alert)
		p.logger.Info("alert published",
			"location", alert.LocationID,
			"pollutant", alert.Pollutant,
			"severity", alert.Severity,
			"value", alert.Value,
		)
	}

	p.sendDigest(ctx, res.Published)
	return res, nil
}

// publishWithRetry attempts the stream write twice, each attempt bounded by
// the publish timeout.
func (p *Publisher) publishWithRetry(ctx context.Context, alert domain.Alert) error {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, p.publishTimeout)
		lastErr = p.sink.PublishAlert(attemptCtx, alert)
		cancel()
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return lastErr
		}
	}
	return lastErr
}

func (p *Publisher) sendDigest(ctx context.Context, published []domain.Alert) {
	if p.emailer == nil || len(published) == 0 {
		return
	}
	if err := p.emailer.SendDigest(ctx, published); err != nil {
		p.logger.Error("alert digest email failed", "alerts", len(published), "error", err)
		return
	}
	p.metrics.EmailsSent.Inc()
}

// Acknowledge marks an alert as handled, which also lifts its suppression.
func (p *Publisher) Acknowledge(ctx context.Context, id int64) error {
	if err := p.store.AcknowledgeAlert(ctx, id); err != nil {
		return err
	}
	p.cache.purge()
	return nil
}
