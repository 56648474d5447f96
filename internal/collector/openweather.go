package collector

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/couchcryptid/air-quality-sentinel/internal/domain"
	"github.com/couchcryptid/air-quality-sentinel/internal/observability"
)

const defaultOpenWeatherBaseURL = "https://api.openweathermap.org/data/2.5"

// OpenWeather supplies weather covariates from OpenWeatherMap. It is a
// WeatherProvider, not a Source: its readings are merged into measurements
// produced by the pollutant sources.
type OpenWeather struct {
	client  *client
	baseURL string
	apiKey  string
}

// NewOpenWeather creates the OpenWeatherMap client. An empty API key
// disables covariate enrichment.
func NewOpenWeather(apiKey string, cfg ClientConfig, logger *slog.Logger, metrics *observability.Metrics) *OpenWeather {
	return &OpenWeather{
		client:  newClient(cfg, logger, metrics),
		baseURL: defaultOpenWeatherBaseURL,
		apiKey:  apiKey,
	}
}

func (w *OpenWeather) Weather(ctx context.Context, loc domain.Location) (Weather, error) {
	if w.apiKey == "" {
		return Weather{}, fmt.Errorf("%w: openweathermap api key not configured", ErrSourceUnavailable)
	}

	params := url.Values{
		"q":     {loc.ID},
		"appid": {w.apiKey},
		"units": {"metric"},
	}

	var resp openWeatherResponse
	if err := w.client.getJSON(ctx, w.baseURL+"/weather", params, &resp); err != nil {
		return Weather{}, err
	}

	return Weather{
		Temperature: resp.Main.Temperature,
		Humidity:    resp.Main.Humidity,
		Pressure:    resp.Main.Pressure,
		WindSpeed:   resp.Wind.Speed,
	}, nil
}

// OpenWeatherMap API response types.

type openWeatherResponse struct {
	Main openWeatherMain `json:"main"`
	Wind openWeatherWind `json:"wind"`
}

type openWeatherMain struct {
	Temperature *float64 `json:"temp"`
	Humidity    *float64 `json:"humidity"`
	Pressure    *float64 `json:"pressure"`
}

type openWeatherWind struct {
	Speed *float64 `json:"speed"`
}

var _ WeatherProvider = (*OpenWeather)(nil)
