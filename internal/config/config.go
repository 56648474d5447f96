package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/air-quality-sentinel/internal/domain"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	KafkaBrokers           []string
	KafkaMeasurementsTopic string
	KafkaWeatherTopic      string
	KafkaAlertsTopic       string

	PostgresHost     string
	PostgresPort     int
	PostgresDB       string
	PostgresUser     string
	PostgresPassword string

	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Collector settings.
	Locations      []domain.Location
	OpenAQAPIKey   string
	IQAirAPIKey    string
	WeatherAPIKey  string
	MaxRetries     int
	RetryDelay     time.Duration
	RequestDelay   time.Duration
	RequestTimeout time.Duration
	CollectWorkers int

	// Detector settings.
	DetectionWindow time.Duration

	// Publisher settings.
	SeverityFloor     domain.Severity
	SuppressionWindow time.Duration
	PublishTimeout    time.Duration

	// SMTP settings; email is skipped when user or recipient is empty.
	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	AlertEmailTo string

	// Driver settings.
	CollectInterval time.Duration
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := parseDuration("SHUTDOWN_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	retryDelay, err := parseDuration("RETRY_DELAY", "5s")
	if err != nil {
		return nil, err
	}
	requestDelay, err := parseDuration("REQUEST_DELAY", "1s")
	if err != nil {
		return nil, err
	}
	requestTimeout, err := parseDuration("REQUEST_TIMEOUT", "30s")
	if err != nil {
		return nil, err
	}
	suppressionWindow, err := parseDuration("SUPPRESSION_WINDOW", "1h")
	if err != nil {
		return nil, err
	}
	publishTimeout, err := parseDuration("PUBLISH_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	collectInterval, err := parseDuration("COLLECT_INTERVAL", "5m")
	if err != nil {
		return nil, err
	}

	windowHours, err := parseInt("DETECTION_WINDOW_HOURS", 48)
	if err != nil {
		return nil, err
	}
	maxRetries, err := parseInt("MAX_RETRIES", 3)
	if err != nil {
		return nil, err
	}
	collectWorkers, err := parseInt("COLLECT_WORKERS", 4)
	if err != nil {
		return nil, err
	}
	postgresPort, err := parseInt("POSTGRES_PORT", 5432)
	if err != nil {
		return nil, err
	}
	smtpPort, err := parseInt("SMTP_PORT", 587)
	if err != nil {
		return nil, err
	}

	floor, err := domain.ParseSeverity(envOrDefault("PUBLISH_SEVERITY_FLOOR", "critical"))
	if err != nil {
		return nil, fmt.Errorf("invalid PUBLISH_SEVERITY_FLOOR: %w", err)
	}

	cfg := &Config{
		KafkaBrokers:           splitList(envOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaMeasurementsTopic: envOrDefault("KAFKA_TOPIC_MEASUREMENTS", "air-quality-stream"),
		KafkaWeatherTopic:      envOrDefault("KAFKA_TOPIC_WEATHER", "weather-stream"),
		KafkaAlertsTopic:       envOrDefault("KAFKA_TOPIC_ALERTS", "pollution-alerts"),

		PostgresHost:     envOrDefault("POSTGRES_HOST", "localhost"),
		PostgresPort:     postgresPort,
		PostgresDB:       envOrDefault("POSTGRES_DB", "airquality"),
		PostgresUser:     envOrDefault("POSTGRES_USER", "airquality_user"),
		PostgresPassword: os.Getenv("POSTGRES_PASSWORD"),

		HTTPAddr:        envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		Locations:      parseLocations(envOrDefault("MONITORED_LOCATIONS", defaultLocationList)),
		OpenAQAPIKey:   os.Getenv("OPENAQ_API_KEY"),
		IQAirAPIKey:    os.Getenv("IQAIR_API_KEY"),
		WeatherAPIKey:  os.Getenv("OPENWEATHER_API_KEY"),
		MaxRetries:     maxRetries,
		RetryDelay:     retryDelay,
		RequestDelay:   requestDelay,
		RequestTimeout: requestTimeout,
		CollectWorkers: collectWorkers,

		DetectionWindow: time.Duration(windowHours) * time.Hour,

		SeverityFloor:     floor,
		SuppressionWindow: suppressionWindow,
		PublishTimeout:    publishTimeout,

		SMTPHost:     envOrDefault("SMTP_HOST", "smtp.gmail.com"),
		SMTPPort:     smtpPort,
		SMTPUser:     os.Getenv("SMTP_USER"),
		SMTPPassword: os.Getenv("SMTP_PASSWORD"),
		AlertEmailTo: os.Getenv("ALERT_EMAIL_TO"),

		CollectInterval: collectInterval,
	}

	if len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_BROKERS is required")
	}
	if len(cfg.Locations) == 0 {
		return nil, errors.New("MONITORED_LOCATIONS is required")
	}
	if cfg.DetectionWindow <= 0 {
		return nil, errors.New("DETECTION_WINDOW_HOURS must be positive")
	}
	if cfg.CollectWorkers < 1 {
		return nil, errors.New("COLLECT_WORKERS must be at least 1")
	}

	return cfg, nil
}

// PostgresDSN builds the lib/pq connection string.
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=disable",
		c.PostgresHost, c.PostgresPort, c.PostgresDB, c.PostgresUser, c.PostgresPassword)
}

// SMTPConfigured reports whether the email sink has enough configuration to send.
func (c *Config) SMTPConfigured() bool {
	return c.SMTPUser != "" && c.SMTPPassword != "" && c.AlertEmailTo != ""
}

const defaultLocationList = "New York,Los Angeles,Chicago,London,Paris,Tokyo,Delhi,Beijing"

// locationCoordinates are the fixed coordinates for the default monitored
// locations. Unknown locations get zero coordinates and still work; only
// mapping output degrades.
var locationCoordinates = map[string]struct{ lat, lon float64 }{
	"New York":    {40.7128, -74.0060},
	"Los Angeles": {34.0522, -118.2437},
	"Chicago":     {41.8781, -87.6298},
	"London":      {51.5074, -0.1278},
	"Paris":       {48.8566, 2.3522},
	"Tokyo":       {35.6762, 139.6503},
	"Delhi":       {28.6139, 77.2090},
	"Beijing":     {39.9042, 116.4074},
}

func parseLocations(raw string) []domain.Location {
	var locations []domain.Location
	for _, name := range splitList(raw) {
		loc := domain.Location{ID: name}
		if coords, ok := locationCoordinates[name]; ok {
			loc.Lat = coords.lat
			loc.Lon = coords.lon
		}
		locations = append(locations, loc)
	}
	return locations
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func parseDuration(key, fallback string) (time.Duration, error) {
	raw := envOrDefault(key, fallback)
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, raw)
	}
	return d, nil
}

func parseInt(key string, fallback int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", key, raw)
	}
	return n, nil
}
