package collector

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/couchcryptid/air-quality-sentinel/internal/domain"
	"github.com/couchcryptid/air-quality-sentinel/internal/observability"
)

const defaultIQAirBaseURL = "https://api.airvisual.com/v2"

// IQAir normalizes the IQAir city endpoint, which reports a single US AQI
// value plus weather rather than raw concentrations.
type IQAir struct {
	client  *client
	baseURL string
	apiKey  string
}

// NewIQAir creates the IQAir source client. An empty API key disables the
// source: Fetch fails immediately and collection moves on.
func NewIQAir(apiKey string, cfg ClientConfig, logger *slog.Logger, metrics *observability.Metrics) *IQAir {
	return &IQAir{
		client:  newClient(cfg, logger, metrics),
		baseURL: defaultIQAirBaseURL,
		apiKey:  apiKey,
	}
}

func (q *IQAir) Name() domain.Source { return domain.SourceIQAir }

func (q *IQAir) Fetch(ctx context.Context, loc domain.Location) ([]domain.Measurement, error) {
	if q.apiKey == "" {
		return nil, fmt.Errorf("%w: iqair api key not configured", ErrSourceUnavailable)
	}

	params := url.Values{
		"city": {loc.ID},
		"key":  {q.apiKey},
	}
	if loc.Country != "" {
		params.Set("country", loc.Country)
	}

	var resp iqAirResponse
	if err := q.client.getJSON(ctx, q.baseURL+"/city", params, &resp); err != nil {
		return nil, err
	}
	if resp.Status != "success" {
		return nil, fmt.Errorf("%w: iqair status %q", ErrSourceUnavailable, resp.Status)
	}

	pollution := resp.Data.Current.Pollution
	weather := resp.Data.Current.Weather
	if pollution.AQIUS == 0 {
		return nil, fmt.Errorf("%w: iqair reported no AQI for %s", ErrSourceUnavailable, loc.ID)
	}

	m := domain.Measurement{
		LocationID:  loc.ID,
		Country:     resp.Data.Country,
		Latitude:    loc.Lat,
		Longitude:   loc.Lon,
		AQI:         pollution.AQIUS,
		Temperature: weather.Temperature,
		Humidity:    weather.Humidity,
		Pressure:    weather.Pressure,
		WindSpeed:   weather.WindSpeed,
		Source:      domain.SourceIQAir,
	}
	if len(resp.Data.Location.Coordinates) == 2 {
		// IQAir uses lon,lat order.
		m.Longitude = resp.Data.Location.Coordinates[0]
		m.Latitude = resp.Data.Location.Coordinates[1]
	}

	m.Timestamp = domain.Now()
	if t, err := time.Parse(time.RFC3339, pollution.Timestamp); err == nil {
		m.Timestamp = t.UTC()
	}
	return []domain.Measurement{m}, nil
}

// IQAir API response types.

type iqAirResponse struct {
	Status string    `json:"status"`
	Data   iqAirData `json:"data"`
}

type iqAirData struct {
	City     string        `json:"city"`
	Country  string        `json:"country"`
	Location iqAirLocation `json:"location"`
	Current  iqAirCurrent  `json:"current"`
}

type iqAirLocation struct {
	Coordinates []float64 `json:"coordinates"` // [lon, lat]
}

type iqAirCurrent struct {
	Pollution iqAirPollution `json:"pollution"`
	Weather   iqAirWeather   `json:"weather"`
}

type iqAirPollution struct {
	Timestamp string `json:"ts"`
	AQIUS     int    `json:"aqius"`
	MainUS    string `json:"mainus"`
}

type iqAirWeather struct {
	Temperature *float64 `json:"tp"`
	Humidity    *float64 `json:"hu"`
	Pressure    *float64 `json:"pr"`
	WindSpeed   *float64 `json:"ws"`
}
