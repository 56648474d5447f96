package domain

import "time"

// Alert is the externally visible, persisted unit produced by the
// publisher. Append-only: the only permitted mutation is acknowledgment.
type Alert struct {
	ID           int64     `json:"id,omitempty" db:"id"`
	LocationID   string    `json:"location_id" db:"location_id"`
	Severity     Severity  `json:"severity" db:"severity"`
	Pollutant    Pollutant `json:"pollutant" db:"pollutant"`
	Value        float64   `json:"value" db:"value"`
	Threshold    float64   `json:"threshold" db:"threshold"`
	Message      string    `json:"message" db:"message"`
	Timestamp    time.Time `json:"timestamp" db:"timestamp"`
	Acknowledged bool      `json:"acknowledged" db:"acknowledged"`
	CreatedAt    time.Time `json:"created_at,omitempty" db:"created_at"`
}

// AlertRule is an operator-defined threshold. Rules are soft-deleted by
// flipping Active; the threshold strategy reads active rules each cycle.
type AlertRule struct {
	ID        int64     `json:"id,omitempty" db:"id"`
	Name      string    `json:"name" db:"name"`
	Pollutant Pollutant `json:"pollutant" db:"pollutant"`
	Threshold float64   `json:"threshold" db:"threshold"`
	Severity  Severity  `json:"severity" db:"severity"`

	// TargetLocations limits the rule to specific locations; empty means all.
	TargetLocations []string `json:"target_locations,omitempty" db:"-"`

	NotifyByEmail bool `json:"notify_by_email" db:"notify_by_email"`
	Active        bool `json:"active" db:"active"`
}

// AppliesTo reports whether the rule targets the given location.
func (r AlertRule) AppliesTo(locationID string) bool {
	if len(r.TargetLocations) == 0 {
		return true
	}
	for _, id := range r.TargetLocations {
		if id == locationID {
			return true
		}
	}
	return false
}

// AnomalyToAlert converts a deduplicated anomaly into its persisted form.
func AnomalyToAlert(a Anomaly) Alert {
	return Alert{
		LocationID: a.LocationID,
		Severity:   a.Severity,
		Pollutant:  a.Pollutant,
		Value:      a.Value,
		Threshold:  a.Threshold,
		Message:    a.Message,
		Timestamp:  a.Timestamp.UTC(),
	}
}
