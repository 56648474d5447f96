package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/couchcryptid/air-quality-sentinel/internal/domain"
)

// Memory is an in-process Store for tests and broker-less local runs. It
// honors the same contracts as Postgres, including the transactional
// semantics of InsertAlertIfNew (guarded by a single mutex here).
type Memory struct {
	mu           sync.Mutex
	measurements []domain.Measurement
	alerts       []domain.Alert
	rules        []domain.AlertRule
	nextAlertID  int64
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{nextAlertID: 1}
}

func (m *Memory) InsertMeasurements(_ context.Context, measurements []domain.Measurement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, meas := range measurements {
		if m.hasMeasurement(meas) {
			continue
		}
		m.measurements = append(m.measurements, meas)
	}
	return nil
}

// hasMeasurement mirrors the relational unique constraint on
// (location, timestamp, source).
func (m *Memory) hasMeasurement(meas domain.Measurement) bool {
	for _, existing := range m.measurements {
		if existing.LocationID == meas.LocationID &&
			existing.Timestamp.Equal(meas.Timestamp) &&
			existing.Source == meas.Source {
			return true
		}
	}
	return false
}

func (m *Memory) RecentMeasurements(_ context.Context, since time.Time) ([]domain.Measurement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Measurement
	for _, meas := range m.measurements {
		if !meas.Timestamp.Before(since) {
			out = append(out, meas)
		}
	}
	return out, nil
}

func (m *Memory) InsertAlertIfNew(_ context.Context, alert *domain.Alert, since time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.alerts {
		if existing.LocationID == alert.LocationID &&
			existing.Message == alert.Message &&
			!existing.Acknowledged &&
			!existing.CreatedAt.Before(since) {
			return false, nil
		}
	}
	alert.ID = m.nextAlertID
	alert.CreatedAt = domain.Now()
	m.nextAlertID++
	m.alerts = append(m.alerts, *alert)
	return true, nil
}

func (m *Memory) AcknowledgeAlert(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.alerts {
		if m.alerts[i].ID == id {
			m.alerts[i].Acknowledged = true
			return nil
		}
	}
	return fmt.Errorf("acknowledge alert %d: %w", id, ErrNotFound)
}

func (m *Memory) ActiveRules(_ context.Context) ([]domain.AlertRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.AlertRule
	for _, r := range m.rules {
		if r.Active {
			out = append(out, r)
		}
	}
	return out, nil
}

// AddRule seeds a rule; test and local-run helper.
func (m *Memory) AddRule(rule domain.AlertRule) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rule.ID = int64(len(m.rules) + 1)
	m.rules = append(m.rules, rule)
}

// Alerts returns a copy of all persisted alerts; test helper.
func (m *Memory) Alerts() []domain.Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Alert, len(m.alerts))
	copy(out, m.alerts)
	return out
}
