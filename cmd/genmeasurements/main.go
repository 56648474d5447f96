// Command genmeasurements writes a JSON fixture of synthetic measurements
// for offline detection runs and test suites. It uses the actual collector
// and domain packages so fixtures match real pipeline output, and freezes
// the clock so runs are reproducible.
//
// Usage:
//
//	go run ./cmd/genmeasurements \
//	  -out data/fixtures/measurements_48h.json \
//	  -hours 48 -seed 7 \
//	  -spike "Delhi:24:300"
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/air-quality-sentinel/internal/collector"
	"github.com/couchcryptid/air-quality-sentinel/internal/config"
	"github.com/couchcryptid/air-quality-sentinel/internal/domain"
)

var baseTime = time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	out := flag.String("out", "", "output path for the measurements JSON fixture")
	hours := flag.Int("hours", 48, "hourly measurements to generate per location")
	seed := flag.Uint64("seed", 7, "random seed; fixed by default for reproducible fixtures")
	locations := flag.String("locations", "", "comma-separated location names; defaults to the configured list")
	spike := flag.String("spike", "", "inject a PM2.5 spike, formatted location:hour:value")
	flag.Parse()

	if *out == "" {
		flag.Usage()
		return fmt.Errorf("missing required flag: -out")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	locs := cfg.Locations
	if *locations != "" {
		locs = nil
		for _, name := range strings.Split(*locations, ",") {
			locs = append(locs, domain.Location{ID: strings.TrimSpace(name)})
		}
	}

	// Drive the package clock hour by hour so measurement and ingestion
	// timestamps are reproducible.
	defer domain.SetClock(nil)

	synthetic := collector.NewSynthetic(*seed)
	var measurements []domain.Measurement
	for _, loc := range locs {
		for h := 0; h < *hours; h++ {
			domain.SetClock(clockwork.NewFakeClockAt(baseTime.Add(time.Duration(h) * time.Hour)))
			m := synthetic.Generate(loc)
			measurements = append(measurements, domain.EnrichMeasurement(m))
		}
	}

	if *spike != "" {
		if err := injectSpike(measurements, *spike, *hours); err != nil {
			return err
		}
	}

	if err := writeJSON(*out, measurements); err != nil {
		return fmt.Errorf("write fixture: %w", err)
	}
	log.Printf("wrote %d measurements for %d location(s): %s", len(measurements), len(locs), *out)
	return nil
}

// injectSpike overwrites one PM2.5 reading, re-deriving the AQI so the
// fixture stays internally consistent.
func injectSpike(measurements []domain.Measurement, spec string, hours int) error {
	parts := strings.Split(spec, ":")
	if len(parts) != 3 {
		return fmt.Errorf("invalid -spike %q, want location:hour:value", spec)
	}
	location := parts[0]
	hour, err := strconv.Atoi(parts[1])
	if err != nil || hour < 0 || hour >= hours {
		return fmt.Errorf("invalid -spike hour %q", parts[1])
	}
	value, err := strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return fmt.Errorf("invalid -spike value %q", parts[2])
	}

	for i := range measurements {
		m := &measurements[i]
		if m.LocationID != location || !m.Timestamp.Equal(baseTime.Add(time.Duration(hour)*time.Hour)) {
			continue
		}
		m.PM25 = &value
		m.AQI = domain.DeriveAQI(value)
		m.AQICategory = domain.CategoryForAQI(m.AQI)
		return nil
	}
	return fmt.Errorf("spike target not found: %s", spec)
}

func writeJSON(path string, v any) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}
