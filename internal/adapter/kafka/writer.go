// Package kafka publishes the pipeline's outputs to the three stream topics:
// canonical measurements, weather snapshots, and pollution alerts.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/air-quality-sentinel/internal/config"
	"github.com/couchcryptid/air-quality-sentinel/internal/domain"
)

// Writer produces messages to the service's Kafka topics. One underlying
// writer per topic; all share the same delivery guarantees: acks from all
// in-sync replicas, gzip compression, and a bounded write timeout.
type Writer struct {
	measurements *kafkago.Writer
	weather      *kafkago.Writer
	alerts       *kafkago.Writer
	logger       *slog.Logger
}

// NewWriter creates producers for the configured topics.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	newTopic := func(topic string) *kafkago.Writer {
		return &kafkago.Writer{
			Addr:         kafkago.TCP(cfg.KafkaBrokers...),
			Topic:        topic,
			Balancer:     &kafkago.LeastBytes{},
			RequiredAcks: kafkago.RequireAll,
			Compression:  kafkago.Gzip,
			WriteTimeout: cfg.PublishTimeout,
			BatchTimeout: 50 * time.Millisecond,
		}
	}
	return &Writer{
		measurements: newTopic(cfg.KafkaMeasurementsTopic),
		weather:      newTopic(cfg.KafkaWeatherTopic),
		alerts:       newTopic(cfg.KafkaAlertsTopic),
		logger:       logger,
	}
}

// PublishMeasurements writes a cycle's canonical measurements in a single
// batched call, keyed by location so per-location ordering holds.
func (w *Writer) PublishMeasurements(ctx context.Context, measurements []domain.Measurement) error {
	if len(measurements) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(measurements))
	for i := range measurements {
		msg, err := serializeMeasurement(measurements[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	return w.measurements.WriteMessages(ctx, msgs...)
}

// weatherSnapshot is the weather-topic payload, carrying only the covariates
// of a measurement.
type weatherSnapshot struct {
	LocationID  string    `json:"location_id"`
	Timestamp   time.Time `json:"timestamp"`
	Temperature *float64  `json:"temperature,omitempty"`
	Humidity    *float64  `json:"humidity,omitempty"`
	Pressure    *float64  `json:"pressure,omitempty"`
	WindSpeed   *float64  `json:"wind_speed,omitempty"`
}

// PublishWeather writes the weather covariates of measurements that carry
// any. Measurements without weather are skipped silently.
func (w *Writer) PublishWeather(ctx context.Context, measurements []domain.Measurement) error {
	var msgs []kafkago.Message
	for _, m := range measurements {
		if m.Temperature == nil && m.Humidity == nil && m.Pressure == nil && m.WindSpeed == nil {
			continue
		}
		data, err := json.Marshal(weatherSnapshot{
			LocationID:  m.LocationID,
			Timestamp:   m.Timestamp,
			Temperature: m.Temperature,
			Humidity:    m.Humidity,
			Pressure:    m.Pressure,
			WindSpeed:   m.WindSpeed,
		})
		if err != nil {
			return fmt.Errorf("serialize weather snapshot: %w", err)
		}
		msgs = append(msgs, kafkago.Message{Key: []byte(m.LocationID), Value: data})
	}
	if len(msgs) == 0 {
		return nil
	}
	return w.weather.WriteMessages(ctx, msgs...)
}

// PublishAlert writes one persisted alert to the alerts topic.
func (w *Writer) PublishAlert(ctx context.Context, alert domain.Alert) error {
	msg, err := serializeAlert(alert)
	if err != nil {
		return err
	}
	return w.alerts.WriteMessages(ctx, msg)
}

func (w *Writer) Close() error {
	var firstErr error
	for _, kw := range []*kafkago.Writer{w.measurements, w.weather, w.alerts} {
		if err := kw.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// serializeMeasurement marshals a measurement into a Kafka message keyed by
// location, with source and ingestion time as headers.
func serializeMeasurement(m domain.Measurement) (kafkago.Message, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize measurement: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(m.LocationID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "source", Value: []byte(m.Source)},
			{Key: "ingested_at", Value: []byte(m.IngestedAt.Format(time.RFC3339))},
		},
	}, nil
}

// serializeAlert marshals an alert keyed by location, with the severity as a
// header so consumers can route without decoding the payload.
func serializeAlert(alert domain.Alert) (kafkago.Message, error) {
	data, err := json.Marshal(alert)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize alert: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(alert.LocationID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "severity", Value: []byte(alert.Severity.String())},
			{Key: "pollutant", Value: []byte(alert.Pollutant)},
		},
	}, nil
}
