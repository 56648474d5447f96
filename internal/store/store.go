// Package store provides typed access to persisted measurements, alerts,
// and alert rules. The pipeline treats the relational store as an external
// collaborator behind these interfaces.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/couchcryptid/air-quality-sentinel/internal/domain"
)

// ErrUnavailable marks a store failure that aborts the current cycle only.
// The driver counts it and retries on the next scheduled cycle.
var ErrUnavailable = errors.New("store unavailable")

// ErrNotFound marks a lookup of an alert that does not exist.
var ErrNotFound = errors.New("not found")

// MeasurementStore persists canonical measurements and serves the recent
// detection window.
type MeasurementStore interface {
	InsertMeasurements(ctx context.Context, measurements []domain.Measurement) error
	RecentMeasurements(ctx context.Context, since time.Time) ([]domain.Measurement, error)
}

// AlertStore persists alerts append-only. InsertAlertIfNew performs the
// duplicate check and the insert in one transaction: it returns false
// without inserting when an unacknowledged alert with the same location and
// message was created at or after since.
type AlertStore interface {
	InsertAlertIfNew(ctx context.Context, alert *domain.Alert, since time.Time) (bool, error)
	AcknowledgeAlert(ctx context.Context, id int64) error
}

// RuleStore serves operator-defined alert rules.
type RuleStore interface {
	ActiveRules(ctx context.Context) ([]domain.AlertRule, error)
}

// Store is the full contract the pipeline driver wires together.
type Store interface {
	MeasurementStore
	AlertStore
	RuleStore
}
