// Command detect runs the full detection pass over a measurements JSON
// fixture and prints a summary report, without Kafka, Postgres, or SMTP. It
// exits non-zero when any finding at or above the severity floor remains
// after deduplication, so it can gate fixture changes in CI.
//
// Usage:
//
//	go run ./cmd/detect \
//	  -in data/fixtures/measurements_48h.json \
//	  -floor warning
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"sort"

	"github.com/couchcryptid/air-quality-sentinel/internal/detector"
	"github.com/couchcryptid/air-quality-sentinel/internal/domain"
	"github.com/couchcryptid/air-quality-sentinel/internal/observability"
)

func main() {
	in := flag.String("in", "", "path to a measurements JSON fixture")
	floorLabel := flag.String("floor", "warning", "report findings at or above this severity")
	flag.Parse()

	if *in == "" {
		flag.Usage()
		os.Exit(1)
	}
	floor, err := domain.ParseSeverity(*floorLabel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		os.Exit(1)
	}

	measurements, err := loadMeasurements(*in)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		os.Exit(1)
	}

	os.Exit(run(measurements, floor))
}

func run(measurements []domain.Measurement, floor domain.Severity) int {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	det := detector.New(domain.DefaultThresholds(), nil, logger, observability.NewMetricsForTesting())

	candidates := det.Detect(measurements, nil)
	findings := det.Dedupe(candidates)

	fmt.Println("=== Air Quality Detection Report ===")
	fmt.Println()
	fmt.Printf("measurements: %d\n", len(measurements))
	fmt.Printf("candidates:   %d\n", len(candidates))
	fmt.Printf("findings:     %d (after dedup)\n", len(findings))
	fmt.Println()

	byType := map[domain.DetectionType]int{}
	bySeverity := map[domain.Severity]int{}
	for _, f := range findings {
		byType[f.Type]++
		bySeverity[f.Severity]++
	}
	for _, dt := range []domain.DetectionType{
		domain.DetectionStatistical,
		domain.DetectionMultivariate,
		domain.DetectionCorrelated,
		domain.DetectionThreshold,
	} {
		fmt.Printf("  %-21s %d\n", dt, byType[dt])
	}
	fmt.Println()
	for _, s := range []domain.Severity{
		domain.SeverityInfo, domain.SeverityWarning, domain.SeverityAlert, domain.SeverityCritical,
	} {
		fmt.Printf("  %-9s %d\n", s, bySeverity[s])
	}

	reportable := make([]domain.Anomaly, 0, len(findings))
	for _, f := range findings {
		if f.Severity >= floor {
			reportable = append(reportable, f)
		}
	}
	sort.SliceStable(reportable, func(i, j int) bool {
		if reportable[i].Severity != reportable[j].Severity {
			return reportable[i].Severity > reportable[j].Severity
		}
		return reportable[i].Timestamp.Before(reportable[j].Timestamp)
	})

	if len(reportable) == 0 {
		fmt.Printf("\nno findings at or above %s\n", floor)
		return 0
	}

	fmt.Printf("\n%d finding(s) at or above %s:\n\n", len(reportable), floor)
	for _, f := range reportable {
		fmt.Printf("[%s] %s\n", f.Severity, f.Message)
		fmt.Printf("  at:      %s\n", f.Timestamp.Format("2006-01-02 15:04 MST"))
		fmt.Printf("  methods: %v\n", f.Methods)
		if f.ExpectedRange != nil {
			fmt.Printf("  expected: %.1f to %.1f\n", f.ExpectedRange.Low, f.ExpectedRange.High)
		}
		fmt.Println()
	}
	return 2
}

func loadMeasurements(path string) ([]domain.Measurement, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var measurements []domain.Measurement
	if err := json.Unmarshal(data, &measurements); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return measurements, nil
}
