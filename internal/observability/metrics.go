package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// collection and alerting pipeline.
type Metrics struct {
	MeasurementsCollected *prometheus.CounterVec // labels: source={openaq,iqair,synthetic}
	CollectorRetries      prometheus.Counter
	CollectorFallbacks    prometheus.Counter

	AnomaliesDetected *prometheus.CounterVec // labels: strategy
	DedupDropped      prometheus.Counter

	AlertsPublished  prometheus.Counter
	AlertsSuppressed prometheus.Counter
	PublishErrors    prometheus.Counter
	EmailsSent       prometheus.Counter

	CycleDuration   prometheus.Histogram
	CycleErrors     prometheus.Counter
	PipelineRunning prometheus.Gauge
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.MeasurementsCollected,
		m.CollectorRetries,
		m.CollectorFallbacks,
		m.AnomaliesDetected,
		m.DedupDropped,
		m.AlertsPublished,
		m.AlertsSuppressed,
		m.PublishErrors,
		m.EmailsSent,
		m.CycleDuration,
		m.CycleErrors,
		m.PipelineRunning,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		MeasurementsCollected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aq_sentinel",
			Name:      "measurements_collected_total",
			Help:      "Measurements collected, by upstream source.",
		}, []string{"source"}),
		CollectorRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "aq_sentinel",
			Name:      "collector_retries_total",
			Help:      "HTTP request retries against upstream sources.",
		}),
		CollectorFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "aq_sentinel",
			Name:      "collector_fallbacks_total",
			Help:      "Cycles where a location fell back to synthetic data.",
		}),
		AnomaliesDetected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aq_sentinel",
			Name:      "anomalies_detected_total",
			Help:      "Candidate findings emitted, by detection strategy.",
		}, []string{"strategy"}),
		DedupDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "aq_sentinel",
			Name:      "dedup_dropped_total",
			Help:      "Candidate findings collapsed by deduplication.",
		}),
		AlertsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "aq_sentinel",
			Name:      "alerts_published_total",
			Help:      "Alerts persisted and published to the alerts topic.",
		}),
		AlertsSuppressed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "aq_sentinel",
			Name:      "alerts_suppressed_total",
			Help:      "Alerts skipped by the duplicate-suppression window.",
		}),
		PublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "aq_sentinel",
			Name:      "publish_errors_total",
			Help:      "Broker publish failures, including ack timeouts.",
		}),
		EmailsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "aq_sentinel",
			Name:      "emails_sent_total",
			Help:      "Alert digest emails sent via SMTP.",
		}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "aq_sentinel",
			Name:      "cycle_duration_seconds",
			Help:      "Duration of a complete collect-detect-publish cycle.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		CycleErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "aq_sentinel",
			Name:      "cycle_errors_total",
			Help:      "Cycles that recorded at least one stage error.",
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "aq_sentinel",
			Name:      "pipeline_running",
			Help:      "1 when the pipeline driver is active, 0 when shut down.",
		}),
	}
}
