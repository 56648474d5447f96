//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"

	kafkaadapter "github.com/couchcryptid/air-quality-sentinel/internal/adapter/kafka"
	"github.com/couchcryptid/air-quality-sentinel/internal/config"
	"github.com/couchcryptid/air-quality-sentinel/internal/domain"
)

const (
	testMeasurementsTopic = "test-air-quality-stream"
	testWeatherTopic      = "test-weather-stream"
	testAlertsTopic       = "test-pollution-alerts"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// startKafka runs a single-node Kafka in a container and returns its broker
// address.
func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()

	container, err := tckafka.Run(ctx,
		"confluentinc/confluent-local:7.5.0",
		tckafka.WithClusterID("sentinel-test"),
	)
	require.NoError(t, err, "start kafka container")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

func createTopic(t *testing.T, broker, topic string) {
	t.Helper()

	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)

	controllerConn, err := kafkago.Dial("tcp",
		net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer controllerConn.Close()

	require.NoError(t, controllerConn.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
}

func newConsumer(t *testing.T, broker, topic string) *kafkago.Reader {
	t.Helper()
	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       topic,
		GroupID:     fmt.Sprintf("test-consumer-%s-%d", topic, time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })
	return consumer
}

func readOne(ctx context.Context, t *testing.T, consumer *kafkago.Reader) kafkago.Message {
	t.Helper()
	readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	msg, err := consumer.ReadMessage(readCtx)
	require.NoError(t, err, "read message")
	return msg
}

func headerMap(msg kafkago.Message) map[string]string {
	out := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		out[h.Key] = string(h.Value)
	}
	return out
}

// TestWriterRoundTrip publishes a measurement batch and an alert through the
// real writer and verifies keys, headers, and payloads on the wire.
func TestWriterRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testMeasurementsTopic)
	createTopic(t, broker, testWeatherTopic)
	createTopic(t, broker, testAlertsTopic)

	cfg := &config.Config{
		KafkaBrokers:           []string{broker},
		KafkaMeasurementsTopic: testMeasurementsTopic,
		KafkaWeatherTopic:      testWeatherTopic,
		KafkaAlertsTopic:       testAlertsTopic,
		PublishTimeout:         10 * time.Second,
	}

	writer := kafkaadapter.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	ts := time.Date(2026, 3, 1, 14, 0, 0, 0, time.UTC)
	pm25 := 42.5
	temp := 21.0
	wind := 1.4
	measurement := domain.Measurement{
		LocationID:  "London",
		Country:     "GB",
		Timestamp:   ts,
		PM25:        &pm25,
		AQI:         118,
		AQICategory: "Unhealthy for Sensitive Groups",
		Temperature: &temp,
		WindSpeed:   &wind,
		Source:      domain.SourceOpenAQ,
		IngestedAt:  ts.Add(time.Minute),
	}

	require.NoError(t, writer.PublishMeasurements(ctx, []domain.Measurement{measurement}))
	require.NoError(t, writer.PublishWeather(ctx, []domain.Measurement{measurement}))

	alert := domain.Alert{
		ID:         1,
		LocationID: "London",
		Severity:   domain.SeverityCritical,
		Pollutant:  domain.PollutantPM25,
		Value:      510,
		Threshold:  500,
		Message:    "PM25 level exceeds critical threshold in London: 510.00 (threshold: 500)",
		Timestamp:  ts,
	}
	require.NoError(t, writer.PublishAlert(ctx, alert))

	// Measurements topic.
	msg := readOne(ctx, t, newConsumer(t, broker, testMeasurementsTopic))
	assert.Equal(t, "London", string(msg.Key))
	headers := headerMap(msg)
	assert.Equal(t, "openaq", headers["source"])
	_, err := time.Parse(time.RFC3339, headers["ingested_at"])
	assert.NoError(t, err, "ingested_at should be valid RFC3339")

	var gotMeasurement domain.Measurement
	require.NoError(t, json.Unmarshal(msg.Value, &gotMeasurement))
	require.NotNil(t, gotMeasurement.PM25)
	assert.Equal(t, 42.5, *gotMeasurement.PM25)
	assert.Equal(t, 118, gotMeasurement.AQI)

	// Weather topic carries only the covariates.
	msg = readOne(ctx, t, newConsumer(t, broker, testWeatherTopic))
	assert.Equal(t, "London", string(msg.Key))
	var weather map[string]any
	require.NoError(t, json.Unmarshal(msg.Value, &weather))
	assert.Contains(t, weather, "temperature")
	assert.Contains(t, weather, "wind_speed")
	assert.NotContains(t, weather, "pm25")

	// Alerts topic.
	msg = readOne(ctx, t, newConsumer(t, broker, testAlertsTopic))
	assert.Equal(t, "London", string(msg.Key))
	headers = headerMap(msg)
	assert.Equal(t, "critical", headers["severity"])
	assert.Equal(t, "pm25", headers["pollutant"])

	var gotAlert domain.Alert
	require.NoError(t, json.Unmarshal(msg.Value, &gotAlert))
	assert.Equal(t, alert.Message, gotAlert.Message)
	assert.Equal(t, domain.SeverityCritical, gotAlert.Severity)
}

// TestWriterSkipsWeatherlessMeasurements verifies the weather topic stays
// empty when no measurement carries covariates.
func TestWriterSkipsWeatherlessMeasurements(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testWeatherTopic)
	createTopic(t, broker, testMeasurementsTopic)
	createTopic(t, broker, testAlertsTopic)

	cfg := &config.Config{
		KafkaBrokers:           []string{broker},
		KafkaMeasurementsTopic: testMeasurementsTopic,
		KafkaWeatherTopic:      testWeatherTopic,
		KafkaAlertsTopic:       testAlertsTopic,
		PublishTimeout:         10 * time.Second,
	}
	writer := kafkaadapter.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	pm25 := 42.5
	require.NoError(t, writer.PublishWeather(ctx, []domain.Measurement{
		{LocationID: "London", Timestamp: time.Now().UTC(), PM25: &pm25, Source: domain.SourceOpenAQ},
	}))

	consumer := newConsumer(t, broker, testWeatherTopic)
	readCtx, readCancel := context.WithTimeout(ctx, 5*time.Second)
	_, err := consumer.ReadMessage(readCtx)
	readCancel()
	assert.Error(t, err, "no message should arrive on the weather topic")
}
