// Package pipeline orchestrates the collect-detect-publish cycle and owns
// run scheduling and readiness.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/air-quality-sentinel/internal/domain"
	"github.com/couchcryptid/air-quality-sentinel/internal/observability"
	"github.com/couchcryptid/air-quality-sentinel/internal/publisher"
	"github.com/couchcryptid/air-quality-sentinel/internal/store"
)

// Collector gathers one measurement batch across all monitored locations.
type Collector interface {
	CollectAll(ctx context.Context, locations []domain.Location) []domain.Measurement
}

// Detector runs the detection strategies and collapses duplicates.
type Detector interface {
	Detect(window []domain.Measurement, rules []domain.AlertRule) []domain.Anomaly
	Dedupe(candidates []domain.Anomaly) []domain.Anomaly
}

// AlertPublisher persists and fans out the deduplicated findings.
type AlertPublisher interface {
	Publish(ctx context.Context, anomalies []domain.Anomaly) (publisher.Result, error)
}

// StreamWriter publishes the cycle's measurements and weather snapshots.
// May be nil when the service runs without a broker.
type StreamWriter interface {
	PublishMeasurements(ctx context.Context, measurements []domain.Measurement) error
	PublishWeather(ctx context.Context, measurements []domain.Measurement) error
}

// State is the driver's current stage, exposed on the status endpoint.
type State string

const (
	StateIdle       State = "idle"
	StateCollecting State = "collecting"
	StateDetecting  State = "detecting"
	StatePublishing State = "publishing"
)

// CycleStats summarizes one completed cycle.
type CycleStats struct {
	CycleID    string        `json:"cycle_id"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration"`
	Collected  int           `json:"collected"`
	WindowSize int           `json:"window_size"`
	Candidates int           `json:"candidates"`
	Deduped    int           `json:"deduped"`
	Published  int           `json:"published"`
	Suppressed int           `json:"suppressed"`
	Errors     int           `json:"errors"`
}

// Options configures a Driver.
type Options struct {
	Locations       []domain.Location
	DetectionWindow time.Duration
	CollectInterval time.Duration
	// Clock defaults to the real clock; tests inject a fake.
	Clock clockwork.Clock
}

// Driver runs collect-detect-publish cycles over the wired stages.
type Driver struct {
	collector Collector
	detector  Detector
	publisher AlertPublisher
	streams   StreamWriter
	store     store.Store

	locations []domain.Location
	window    time.Duration
	interval  time.Duration
	clock     clockwork.Clock

	logger  *slog.Logger
	metrics *observability.Metrics

	ready atomic.Bool

	mu        sync.Mutex
	state     State
	lastCycle CycleStats
}

// New creates a Driver.
func New(c Collector, d Detector, p AlertPublisher, streams StreamWriter, st store.Store, opts Options, logger *slog.Logger, metrics *observability.Metrics) *Driver {
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Driver{
		collector: c,
		detector:  d,
		publisher: p,
		streams:   streams,
		store:     st,
		locations: opts.Locations,
		window:    opts.DetectionWindow,
		interval:  opts.CollectInterval,
		clock:     clock,
		logger:    logger,
		metrics:   metrics,
		state:     StateIdle,
	}
}

// CheckReadiness returns nil once the first cycle has completed.
func (d *Driver) CheckReadiness(_ context.Context) error {
	if !d.ready.Load() {
		return errors.New("pipeline has not completed a cycle yet")
	}
	return nil
}

// Status returns a snapshot for the status endpoint.
func (d *Driver) Status() any {
	d.mu.Lock()
	defer d.mu.Unlock()
	return struct {
		State     State      `json:"state"`
		Ready     bool       `json:"ready"`
		LastCycle CycleStats `json:"last_cycle"`
	}{
		State:     d.state,
		Ready:     d.ready.Load(),
		LastCycle: d.lastCycle,
	}
}

func (d *Driver) setState(s State) {
	d.mu.Lock()
	d.state = s
	d.mu.Unlock()
}

// RunOnce executes a single cycle. Stage failures are contained: a dead
// store degrades detection to the freshly collected batch, a dead broker
// loses stream output but not persistence, and the cycle always completes.
func (d *Driver) RunOnce(ctx context.Context) (CycleStats, error) {
	start := d.clock.Now()
	stats := CycleStats{
		CycleID:   uuid.NewString(),
		StartedAt: start.UTC(),
	}
	logger := d.logger.With("cycle_id", stats.CycleID)

	defer func() {
		d.setState(StateIdle)
		stats.Duration = d.clock.Since(start)
		d.metrics.CycleDuration.Observe(stats.Duration.Seconds())
		if stats.Errors > 0 {
			d.metrics.CycleErrors.Inc()
		}
		d.mu.Lock()
		d.lastCycle = stats
		d.mu.Unlock()
		d.ready.Store(true)
		logger.Info("cycle complete",
			"collected", stats.Collected,
			"window_size", stats.WindowSize,
			"candidates", stats.Candidates,
			"published", stats.Published,
			"suppressed", stats.Suppressed,
			"errors", stats.Errors,
			"duration", stats.Duration,
		)
	}()

	d.setState(StateCollecting)
	collected := d.collector.CollectAll(ctx, d.locations)
	stats.Collected = len(collected)

	if err := d.store.InsertMeasurements(ctx, collected); err != nil {
		stats.Errors++
		logger.Error("persist measurements failed", "error", err)
	}
	d.streamOut(ctx, logger, collected, &stats)

	d.setState(StateDetecting)
	window, err := d.store.RecentMeasurements(ctx, start.UTC().Add(-d.window))
	if err != nil {
		stats.Errors++
		logger.Error("load detection window failed, using collected batch", "error", err)
		window = collected
	}
	stats.WindowSize = len(window)

	rules, err := d.store.ActiveRules(ctx)
	if err != nil {
		stats.Errors++
		logger.Error("load alert rules failed", "error", err)
	}

	candidates := d.detector.Detect(window, rules)
	stats.Candidates = len(candidates)
	deduped := d.detector.Dedupe(candidates)
	stats.Deduped = len(deduped)

	d.setState(StatePublishing)
	res, err := d.publisher.Publish(ctx, deduped)
	if err != nil {
		stats.Errors++
		logger.Error("publish failed", "error", err)
	}
	stats.Published = len(res.Published)
	stats.Suppressed = res.Suppressed
	stats.Errors += res.Errors

	return stats, ctx.Err()
}

func (d *Driver) streamOut(ctx context.Context, logger *slog.Logger, collected []domain.Measurement, stats *CycleStats) {
	if d.streams == nil {
		return
	}
	if err := d.streams.PublishMeasurements(ctx, collected); err != nil {
		stats.Errors++
		logger.Error("stream measurements failed", "error", err)
	}
	if err := d.streams.PublishWeather(ctx, collected); err != nil {
		stats.Errors++
		logger.Error("stream weather failed", "error", err)
	}
}

// RunContinuous runs a first cycle immediately, then one per collect
// interval until the context is cancelled.
func (d *Driver) RunContinuous(ctx context.Context) error {
	d.logger.Info("pipeline started", "mode", "continuous", "interval", d.interval)
	d.metrics.PipelineRunning.Set(1)
	defer d.metrics.PipelineRunning.Set(0)

	if _, err := d.RunOnce(ctx); err != nil {
		return nil
	}

	ticker := d.clock.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("pipeline stopping", "reason", ctx.Err())
			return nil
		case <-ticker.Chan():
			if _, err := d.RunOnce(ctx); err != nil {
				d.logger.Info("pipeline stopping", "reason", err)
				return nil
			}
		}
	}
}

// RunScheduled aligns cycles to the top of each hour, matching the hourly
// cadence of the upstream sources. A first cycle runs immediately so the
// service is ready before the first boundary.
func (d *Driver) RunScheduled(ctx context.Context) error {
	d.logger.Info("pipeline started", "mode", "scheduled")
	d.metrics.PipelineRunning.Set(1)
	defer d.metrics.PipelineRunning.Set(0)

	if _, err := d.RunOnce(ctx); err != nil {
		return nil
	}

	for {
		now := d.clock.Now()
		next := now.Truncate(time.Hour).Add(time.Hour)
		timer := d.clock.NewTimer(next.Sub(now))

		select {
		case <-ctx.Done():
			timer.Stop()
			d.logger.Info("pipeline stopping", "reason", ctx.Err())
			return nil
		case <-timer.Chan():
			if _, err := d.RunOnce(ctx); err != nil {
				d.logger.Info("pipeline stopping", "reason", err)
				return nil
			}
		}
	}
}
