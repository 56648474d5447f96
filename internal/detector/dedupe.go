package detector

import (
	"github.com/couchcryptid/air-quality-sentinel/internal/domain"
)

// Dedupe collapses candidates that describe the same condition: same
// location, same pollutant, same hour. Each group keeps the candidate with
// the highest severity; on a tie the earliest-seen candidate wins. Group
// order follows first appearance in the input.
func (d *Detector) Dedupe(candidates []domain.Anomaly) []domain.Anomaly {
	if len(candidates) == 0 {
		return nil
	}

	kept := make([]domain.Anomaly, 0, len(candidates))
	index := make(map[domain.DedupKey]int, len(candidates))
	dropped := 0

	for _, c := range candidates {
		key := c.Key()
		at, seen := index[key]
		if !seen {
			index[key] = len(kept)
			kept = append(kept, c)
			continue
		}
		dropped++
		if c.Severity > kept[at].Severity {
			kept[at] = c
		}
	}

	d.metrics.DedupDropped.Add(float64(dropped))
	if dropped > 0 {
		d.logger.Debug("deduplicated anomaly candidates",
			"candidates", len(candidates),
			"kept", len(kept),
		)
	}
	return kept
}
