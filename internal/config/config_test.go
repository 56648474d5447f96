package config

import (
	"testing"
	"time"

	"github.com/couchcryptid/air-quality-sentinel/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"localhost:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "air-quality-stream", cfg.KafkaMeasurementsTopic)
	assert.Equal(t, "weather-stream", cfg.KafkaWeatherTopic)
	assert.Equal(t, "pollution-alerts", cfg.KafkaAlertsTopic)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, 48*time.Hour, cfg.DetectionWindow)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, 5*time.Second, cfg.RetryDelay)
	assert.Equal(t, 4, cfg.CollectWorkers)
	assert.Equal(t, domain.SeverityCritical, cfg.SeverityFloor)
	assert.Equal(t, time.Hour, cfg.SuppressionWindow)
	assert.Equal(t, 10*time.Second, cfg.PublishTimeout)
	assert.Equal(t, 5*time.Minute, cfg.CollectInterval)
	assert.Len(t, cfg.Locations, 8)
	assert.False(t, cfg.SMTPConfigured())
}

func TestLoad_CustomEnv(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "broker1:9092,broker2:9092")
	t.Setenv("KAFKA_TOPIC_ALERTS", "custom-alerts")
	t.Setenv("MONITORED_LOCATIONS", "Delhi, Beijing")
	t.Setenv("DETECTION_WINDOW_HOURS", "24")
	t.Setenv("PUBLISH_SEVERITY_FLOOR", "alert")
	t.Setenv("SUPPRESSION_WINDOW", "30m")
	t.Setenv("COLLECT_WORKERS", "8")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "custom-alerts", cfg.KafkaAlertsTopic)
	assert.Equal(t, 24*time.Hour, cfg.DetectionWindow)
	assert.Equal(t, domain.SeverityAlert, cfg.SeverityFloor)
	assert.Equal(t, 30*time.Minute, cfg.SuppressionWindow)
	assert.Equal(t, 8, cfg.CollectWorkers)

	require.Len(t, cfg.Locations, 2)
	assert.Equal(t, "Delhi", cfg.Locations[0].ID)
	assert.InEpsilon(t, 28.6139, cfg.Locations[0].Lat, 1e-6)
}

func TestLoad_InvalidSeverityFloor(t *testing.T) {
	t.Setenv("PUBLISH_SEVERITY_FLOOR", "apocalyptic")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_InvalidDuration(t *testing.T) {
	t.Setenv("SUPPRESSION_WINDOW", "soon")
	_, err := Load()
	assert.Error(t, err)
}

func TestPostgresDSN(t *testing.T) {
	t.Setenv("POSTGRES_HOST", "db.internal")
	t.Setenv("POSTGRES_PASSWORD", "hunter2")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Contains(t, cfg.PostgresDSN(), "host=db.internal")
	assert.Contains(t, cfg.PostgresDSN(), "password=hunter2")
}

func TestSMTPConfigured(t *testing.T) {
	t.Setenv("SMTP_USER", "alerts@example.com")
	t.Setenv("SMTP_PASSWORD", "secret")
	t.Setenv("ALERT_EMAIL_TO", "oncall@example.com")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.SMTPConfigured())
}
