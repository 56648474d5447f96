package domain

// ThresholdBands holds the six increasing band boundaries for one pollutant,
// following WHO and EPA guidance. Values at or above a boundary fall into
// that band.
type ThresholdBands struct {
	Good               float64
	Moderate           float64
	UnhealthySensitive float64
	Unhealthy          float64
	VeryUnhealthy      float64
	Hazardous          float64
}

// ThresholdTable maps each pollutant to its band boundaries. Built once at
// startup; detection strategies share a single table so severities are
// comparable across strategies.
type ThresholdTable map[Pollutant]ThresholdBands

// DefaultThresholds returns the WHO/EPA-informed threshold table used when
// no operator rules override a pollutant.
func DefaultThresholds() ThresholdTable {
	return ThresholdTable{
		PollutantPM25: {Good: 15, Moderate: 35, UnhealthySensitive: 55, Unhealthy: 150, VeryUnhealthy: 250, Hazardous: 500},
		PollutantPM10: {Good: 50, Moderate: 100, UnhealthySensitive: 150, Unhealthy: 200, VeryUnhealthy: 300, Hazardous: 500},
		PollutantNO2:  {Good: 50, Moderate: 100, UnhealthySensitive: 200, Unhealthy: 400, VeryUnhealthy: 1000, Hazardous: 2000},
		PollutantO3:   {Good: 70, Moderate: 140, UnhealthySensitive: 180, Unhealthy: 240, VeryUnhealthy: 300, Hazardous: 400},
		PollutantCO:   {Good: 4, Moderate: 9, UnhealthySensitive: 15, Unhealthy: 30, VeryUnhealthy: 40, Hazardous: 50},
		PollutantSO2:  {Good: 20, Moderate: 80, UnhealthySensitive: 200, Unhealthy: 400, VeryUnhealthy: 800, Hazardous: 1000},
		PollutantAQI:  {Good: 50, Moderate: 100, UnhealthySensitive: 150, Unhealthy: 200, VeryUnhealthy: 300, Hazardous: 500},
	}
}

// SeverityFor maps a pollutant reading to an alert severity. This is the
// single severity function shared by all detection strategies.
func (t ThresholdTable) SeverityFor(p Pollutant, value float64) Severity {
	bands, ok := t[p]
	if !ok {
		return SeverityWarning
	}
	switch {
	case value >= bands.Hazardous:
		return SeverityCritical
	case value >= bands.VeryUnhealthy:
		return SeverityAlert
	case value >= bands.Unhealthy:
		return SeverityAlert
	case value >= bands.UnhealthySensitive:
		return SeverityWarning
	default:
		return SeverityInfo
	}
}

// Violation returns the highest band boundary a reading exceeds, starting at
// unhealthy-sensitive, together with the resulting severity. ok is false
// when the reading violates nothing.
func (t ThresholdTable) Violation(p Pollutant, value float64) (threshold float64, severity Severity, ok bool) {
	bands, found := t[p]
	if !found {
		return 0, 0, false
	}
	switch {
	case value >= bands.Hazardous:
		return bands.Hazardous, SeverityCritical, true
	case value >= bands.VeryUnhealthy:
		return bands.VeryUnhealthy, SeverityAlert, true
	case value >= bands.Unhealthy:
		return bands.Unhealthy, SeverityAlert, true
	case value >= bands.UnhealthySensitive:
		return bands.UnhealthySensitive, SeverityWarning, true
	}
	return 0, 0, false
}
