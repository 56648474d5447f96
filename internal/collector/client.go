package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/couchcryptid/air-quality-sentinel/internal/observability"
)

// ClientConfig holds the retry and timeout settings shared by source clients.
type ClientConfig struct {
	MaxRetries   int
	RetryDelay   time.Duration
	RequestDelay time.Duration
	Timeout      time.Duration
}

// client is the retrying HTTP client behind every live source. Each source
// gets its own instance so the rate limit applies per upstream.
type client struct {
	httpClient *http.Client
	maxRetries int
	retryDelay time.Duration
	limiter    *rateLimiter
	logger     *slog.Logger
	metrics    *observability.Metrics
}

func newClient(cfg ClientConfig, logger *slog.Logger, metrics *observability.Metrics) *client {
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 1
	}
	return &client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		limiter:    newRateLimiter(cfg.RequestDelay),
		logger:     logger,
		metrics:    metrics,
	}
}

// getJSON fetches a URL with bounded retries and exponential backoff,
// decoding the response body into out. After the last attempt fails the
// error wraps ErrSourceUnavailable.
func (c *client) getJSON(ctx context.Context, rawURL string, params url.Values, out any) error {
	fullURL := rawURL
	if len(params) > 0 {
		fullURL = rawURL + "?" + params.Encode()
	}

	backoff := c.retryDelay
	var lastErr error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		if err := c.limiter.wait(ctx); err != nil {
			return err
		}

		lastErr = c.doRequest(ctx, fullURL, out)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		c.logger.Debug("request failed", "url", rawURL, "attempt", attempt, "error", lastErr)
		if attempt < c.maxRetries {
			c.metrics.CollectorRetries.Inc()
			if !sleepWithContext(ctx, backoff) {
				return ctx.Err()
			}
			backoff *= 2
		}
	}
	return fmt.Errorf("%w: %d attempts: %v", ErrSourceUnavailable, c.maxRetries, lastErr)
}

func (c *client) doRequest(ctx context.Context, fullURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "air-quality-sentinel/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("status %d: %s", resp.StatusCode, body)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
