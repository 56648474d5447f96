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

const defaultOpenAQBaseURL = "https://api.openaq.org/v2"

// OpenAQ normalizes the OpenAQ "latest" endpoint, which reports one row per
// pollutant parameter. Rows for a location are folded into one canonical
// measurement.
type OpenAQ struct {
	client  *client
	baseURL string
	apiKey  string
}

// NewOpenAQ creates the OpenAQ source client.
func NewOpenAQ(apiKey string, cfg ClientConfig, logger *slog.Logger, metrics *observability.Metrics) *OpenAQ {
	return &OpenAQ{
		client:  newClient(cfg, logger, metrics),
		baseURL: defaultOpenAQBaseURL,
		apiKey:  apiKey,
	}
}

func (o *OpenAQ) Name() domain.Source { return domain.SourceOpenAQ }

// Fetch returns the latest measurement for the location, folding parameter
// rows into the canonical shape.
func (o *OpenAQ) Fetch(ctx context.Context, loc domain.Location) ([]domain.Measurement, error) {
	params := url.Values{
		"city":  {loc.ID},
		"limit": {"100"},
	}
	if o.apiKey != "" {
		params.Set("api_key", o.apiKey)
	}
	if loc.Country != "" {
		params.Set("country", loc.Country)
	}

	var resp openAQResponse
	if err := o.client.getJSON(ctx, o.baseURL+"/latest", params, &resp); err != nil {
		return nil, err
	}
	if len(resp.Results) == 0 {
		return nil, fmt.Errorf("%w: no results for %s", ErrSourceUnavailable, loc.ID)
	}

	var measurements []domain.Measurement
	for _, result := range resp.Results {
		m, ok := normalizeOpenAQResult(loc, result)
		if !ok {
			continue
		}
		measurements = append(measurements, m)
	}
	if len(measurements) == 0 {
		return nil, fmt.Errorf("%w: no usable parameters for %s", ErrSourceUnavailable, loc.ID)
	}
	return measurements, nil
}

func normalizeOpenAQResult(loc domain.Location, result openAQResult) (domain.Measurement, bool) {
	m := domain.Measurement{
		LocationID: loc.ID,
		Country:    result.Country,
		Latitude:   loc.Lat,
		Longitude:  loc.Lon,
		Source:     domain.SourceOpenAQ,
	}
	if result.Coordinates != nil {
		m.Latitude = result.Coordinates.Latitude
		m.Longitude = result.Coordinates.Longitude
	}

	var latest time.Time
	assigned := false
	for _, row := range result.Measurements {
		value := row.Value
		switch row.Parameter {
		case "pm25":
			m.PM25 = &value
		case "pm10":
			m.PM10 = &value
		case "co":
			m.CO = &value
		case "no2":
			m.NO2 = &value
		case "o3":
			m.O3 = &value
		case "so2":
			m.SO2 = &value
		default:
			continue
		}
		assigned = true
		if t, err := time.Parse(time.RFC3339, row.LastUpdated); err == nil && t.After(latest) {
			latest = t
		}
	}
	if !assigned {
		return domain.Measurement{}, false
	}

	m.Timestamp = latest.UTC()
	if latest.IsZero() {
		m.Timestamp = domain.Now()
	}
	return m, true
}

// OpenAQ API response types.

type openAQResponse struct {
	Results []openAQResult `json:"results"`
}

type openAQResult struct {
	City         string              `json:"city"`
	Country      string              `json:"country"`
	Coordinates  *openAQCoordinates  `json:"coordinates"`
	Measurements []openAQMeasurement `json:"measurements"`
}

type openAQCoordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type openAQMeasurement struct {
	Parameter   string  `json:"parameter"`
	Value       float64 `json:"value"`
	Unit        string  `json:"unit"`
	LastUpdated string  `json:"lastUpdated"`
}
