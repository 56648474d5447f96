package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/air-quality-sentinel/internal/adapter/httpadapter"
	kafkaadapter "github.com/couchcryptid/air-quality-sentinel/internal/adapter/kafka"
	"github.com/couchcryptid/air-quality-sentinel/internal/collector"
	"github.com/couchcryptid/air-quality-sentinel/internal/config"
	"github.com/couchcryptid/air-quality-sentinel/internal/detector"
	"github.com/couchcryptid/air-quality-sentinel/internal/domain"
	"github.com/couchcryptid/air-quality-sentinel/internal/observability"
	"github.com/couchcryptid/air-quality-sentinel/internal/pipeline"
	"github.com/couchcryptid/air-quality-sentinel/internal/publisher"
	"github.com/couchcryptid/air-quality-sentinel/internal/store"
)

func main() {
	mode := flag.String("mode", "continuous", "run mode: once, continuous, or scheduled")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pg, err := store.NewPostgres(ctx, cfg.PostgresDSN())
	if err != nil {
		logger.Error("postgres connect failed", "error", err)
		os.Exit(1)
	}
	defer pg.Close()
	if err := pg.Migrate(ctx); err != nil {
		logger.Error("postgres migrate failed", "error", err)
		os.Exit(1)
	}

	writer := kafkaadapter.NewWriter(cfg, logger)
	col := newCollector(cfg, logger, metrics)
	det := detector.New(domain.DefaultThresholds(), nil, logger, metrics)

	var emailer publisher.Emailer
	if smtp := publisher.NewSMTPEmailer(cfg, logger); smtp != nil {
		emailer = smtp
	}
	pub := publisher.New(pg, writer, publisher.Options{
		SeverityFloor:     cfg.SeverityFloor,
		SuppressionWindow: cfg.SuppressionWindow,
		PublishTimeout:    cfg.PublishTimeout,
		Emailer:           emailer,
	}, logger, metrics)

	driver := pipeline.New(col, det, pub, writer, pg, pipeline.Options{
		Locations:       cfg.Locations,
		DetectionWindow: cfg.DetectionWindow,
		CollectInterval: cfg.CollectInterval,
	}, logger, metrics)

	srv := httpadapter.NewServer(cfg.HTTPAddr, driver, driver, pub, logger)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	runErr := run(ctx, driver, *mode, logger)

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if err := writer.Close(); err != nil {
		logger.Error("kafka writer close error", "error", err)
	}

	logger.Info("shutdown complete")
	if runErr != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, driver *pipeline.Driver, mode string, logger *slog.Logger) error {
	switch mode {
	case "once":
		stats, err := driver.RunOnce(ctx)
		if err != nil {
			logger.Error("cycle aborted", "error", err)
			return err
		}
		logger.Info("single cycle finished",
			"collected", stats.Collected,
			"published", stats.Published,
			"duration", stats.Duration,
		)
		return nil
	case "continuous":
		return driver.RunContinuous(ctx)
	case "scheduled":
		return driver.RunScheduled(ctx)
	default:
		logger.Error("unknown mode", "mode", mode)
		return errors.New("unknown mode " + mode)
	}
}

func newCollector(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) *collector.Collector {
	clientCfg := collector.ClientConfig{
		MaxRetries:   cfg.MaxRetries,
		RetryDelay:   cfg.RetryDelay,
		RequestDelay: cfg.RequestDelay,
		Timeout:      cfg.RequestTimeout,
	}

	var sources []collector.Source
	sources = append(sources, collector.NewOpenAQ(cfg.OpenAQAPIKey, clientCfg, logger, metrics))
	if cfg.IQAirAPIKey != "" {
		sources = append(sources, collector.NewIQAir(cfg.IQAirAPIKey, clientCfg, logger, metrics))
	}

	var weather collector.WeatherProvider
	if cfg.WeatherAPIKey != "" {
		weather = collector.NewOpenWeather(cfg.WeatherAPIKey, clientCfg, logger, metrics)
	}

	return collector.New(collector.Options{
		Sources:   sources,
		Weather:   weather,
		Synthetic: collector.NewSynthetic(0),
		Workers:   cfg.CollectWorkers,
	}, logger, metrics)
}
