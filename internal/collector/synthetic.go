package collector

import (
	"math"
	"math/rand/v2"
	"sync"

	"github.com/couchcryptid/air-quality-sentinel/internal/domain"
)

// baselinePM25 holds typical PM2.5 levels (µg/m³) per monitored location,
// used to keep synthetic readings physically plausible.
var baselinePM25 = map[string]float64{
	"New York":    15,
	"Los Angeles": 25,
	"Chicago":     12,
	"London":      18,
	"Paris":       20,
	"Tokyo":       30,
	"Delhi":       80,
	"Beijing":     60,
}

const defaultBaselinePM25 = 20

// Synthetic generates plausible measurements from per-location baselines
// plus Gaussian noise. It keeps the pipeline alive when every live source
// is unreachable.
type Synthetic struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSynthetic creates a generator. A non-zero seed makes output
// deterministic for fixtures and tests.
func NewSynthetic(seed uint64) *Synthetic {
	if seed == 0 {
		seed = rand.Uint64()
	}
	return &Synthetic{rng: rand.New(rand.NewPCG(seed, seed))}
}

// Generate produces one synthetic measurement for the location, stamped
// with the current package-clock time.
func (s *Synthetic) Generate(loc domain.Location) domain.Measurement {
	s.mu.Lock()
	defer s.mu.Unlock()

	base := baselinePM25[loc.ID]
	if base == 0 {
		base = defaultBaselinePM25
	}

	pm25 := math.Max(0, s.gauss(base, base*0.3))
	pm10 := pm25 * s.uniform(1.5, 2.5)
	co := s.uniform(0.1, 2.0)
	no2 := s.uniform(10, 50)
	o3 := s.uniform(20, 100)
	so2 := s.uniform(1, 20)
	temperature := s.gauss(18, 8)
	humidity := clamp(s.gauss(60, 15), 5, 100)
	pressure := s.gauss(1013, 8)
	windSpeed := math.Max(0, s.gauss(3.5, 2))

	return domain.Measurement{
		LocationID:  loc.ID,
		Country:     loc.Country,
		Latitude:    loc.Lat,
		Longitude:   loc.Lon,
		Timestamp:   domain.Now(),
		PM25:        &pm25,
		PM10:        &pm10,
		CO:          &co,
		NO2:         &no2,
		O3:          &o3,
		SO2:         &so2,
		Temperature: &temperature,
		Humidity:    &humidity,
		Pressure:    &pressure,
		WindSpeed:   &windSpeed,
		Source:      domain.SourceSynthetic,
	}
}

func (s *Synthetic) gauss(mean, stddev float64) float64 {
	return mean + s.rng.NormFloat64()*stddev
}

func (s *Synthetic) uniform(low, high float64) float64 {
	return low + s.rng.Float64()*(high-low)
}

func clamp(v, low, high float64) float64 {
	return math.Min(high, math.Max(low, v))
}
