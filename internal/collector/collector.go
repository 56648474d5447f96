// Package collector polls upstream air quality and weather sources and
// normalizes their heterogeneous schemas into the canonical measurement
// shape. When every live source fails for a location it falls back to a
// synthetic measurement so the pipeline never stalls on an unreachable
// upstream.
package collector

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/couchcryptid/air-quality-sentinel/internal/domain"
	"github.com/couchcryptid/air-quality-sentinel/internal/observability"
)

// ErrSourceUnavailable marks an upstream whose retry budget is exhausted.
// Never fatal: collection falls back to synthetic data.
var ErrSourceUnavailable = errors.New("source unavailable")

// Source fetches measurements for one location from one upstream and
// normalizes them. Implementations must be safe for concurrent use.
type Source interface {
	Name() domain.Source
	Fetch(ctx context.Context, loc domain.Location) ([]domain.Measurement, error)
}

// WeatherProvider supplies weather covariates merged into each measurement.
type WeatherProvider interface {
	Weather(ctx context.Context, loc domain.Location) (Weather, error)
}

// Weather is the covariate set attached to measurements.
type Weather struct {
	Temperature *float64
	Humidity    *float64
	Pressure    *float64
	WindSpeed   *float64
}

// Collector polls all configured sources for each monitored location.
type Collector struct {
	sources   []Source
	weather   WeatherProvider
	synthetic *Synthetic
	workers   int
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// Options configures a Collector.
type Options struct {
	Sources   []Source
	Weather   WeatherProvider // nil disables covariate enrichment
	Synthetic *Synthetic
	Workers   int
}

// New creates a Collector.
func New(opts Options, logger *slog.Logger, metrics *observability.Metrics) *Collector {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Synthetic == nil {
		opts.Synthetic = NewSynthetic(0)
	}
	return &Collector{
		sources:   opts.Sources,
		weather:   opts.Weather,
		synthetic: opts.Synthetic,
		workers:   opts.Workers,
		logger:    logger,
		metrics:   metrics,
	}
}

// Collect gathers measurements for one location from every source. Source
// failures are logged and skipped; when all sources fail, exactly one
// synthetic measurement is returned. The result is never empty and Collect
// never returns an error.
func (c *Collector) Collect(ctx context.Context, loc domain.Location) []domain.Measurement {
	var collected []domain.Measurement

	for _, src := range c.sources {
		measurements, err := src.Fetch(ctx, loc)
		if err != nil {
			c.logger.Warn("source fetch failed",
				"source", src.Name(), "location", loc.ID, "error", err)
			continue
		}
		collected = append(collected, measurements...)
	}

	if len(collected) == 0 {
		c.logger.Info("all sources failed, generating synthetic measurement", "location", loc.ID)
		c.metrics.CollectorFallbacks.Inc()
		collected = []domain.Measurement{c.synthetic.Generate(loc)}
	}

	weather := c.fetchWeather(ctx, loc)

	for i := range collected {
		collected[i] = mergeWeather(collected[i], weather)
		collected[i] = domain.EnrichMeasurement(collected[i])
		c.metrics.MeasurementsCollected.WithLabelValues(string(collected[i].Source)).Inc()
	}
	return collected
}

// CollectAll gathers measurements for every location on a bounded worker
// pool. All workers complete (or exhaust their retries) before CollectAll
// returns, so callers always see a consistent snapshot. Per-source rate
// limits are enforced inside the sources, not here.
func (c *Collector) CollectAll(ctx context.Context, locations []domain.Location) []domain.Measurement {
	results := make([][]domain.Measurement, len(locations))

	sem := make(chan struct{}, c.workers)
	var wg sync.WaitGroup
	for i, loc := range locations {
		wg.Add(1)
		go func(i int, loc domain.Location) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results[i] = c.Collect(ctx, loc)
		}(i, loc)
	}
	wg.Wait()

	var all []domain.Measurement
	for _, batch := range results {
		all = append(all, batch...)
	}
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].LocationID != all[j].LocationID {
			return all[i].LocationID < all[j].LocationID
		}
		return all[i].Timestamp.Before(all[j].Timestamp)
	})
	return all
}

func (c *Collector) fetchWeather(ctx context.Context, loc domain.Location) Weather {
	if c.weather == nil {
		return Weather{}
	}
	w, err := c.weather.Weather(ctx, loc)
	if err != nil {
		c.logger.Warn("weather fetch failed", "location", loc.ID, "error", err)
		return Weather{}
	}
	return w
}

// mergeWeather fills covariates the source did not already report.
func mergeWeather(m domain.Measurement, w Weather) domain.Measurement {
	if m.Temperature == nil {
		m.Temperature = w.Temperature
	}
	if m.Humidity == nil {
		m.Humidity = w.Humidity
	}
	if m.Pressure == nil {
		m.Pressure = w.Pressure
	}
	if m.WindSpeed == nil {
		m.WindSpeed = w.WindSpeed
	}
	return m
}

// rateLimiter enforces a minimum delay between requests to one upstream.
// The limit is per source, not global: two sources may be polled
// concurrently, but no single upstream sees bursts.
type rateLimiter struct {
	mu    sync.Mutex
	delay time.Duration
	next  time.Time
}

func newRateLimiter(delay time.Duration) *rateLimiter {
	return &rateLimiter{delay: delay}
}

// wait blocks until a request slot is available or the context ends.
func (r *rateLimiter) wait(ctx context.Context) error {
	r.mu.Lock()
	now := time.Now()
	sleep := r.next.Sub(now)
	if sleep < 0 {
		sleep = 0
	}
	r.next = now.Add(sleep + r.delay)
	r.mu.Unlock()

	if sleep == 0 {
		return nil
	}
	timer := time.NewTimer(sleep)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
