package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/couchcryptid/air-quality-sentinel/internal/domain"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq" // also registers the postgres driver
)

// Postgres implements Store against PostgreSQL.
type Postgres struct {
	db *sqlx.DB
}

// NewPostgres connects to PostgreSQL and verifies the connection.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Postgres{db: db}, nil
}

// Migrate creates the schema if it does not exist.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (p *Postgres) Close() error {
	return p.db.Close()
}

// InsertMeasurements writes a collected batch. Measurements are immutable;
// conflicting (location, timestamp, source) rows are skipped rather than
// updated.
func (p *Postgres) InsertMeasurements(ctx context.Context, measurements []domain.Measurement) error {
	if len(measurements) == 0 {
		return nil
	}
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return p.wrap("begin insert measurements", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	const q = `
		INSERT INTO measurements
			(location_id, country, latitude, longitude, timestamp,
			 pm25, pm10, co, no2, o3, so2, aqi, aqi_category,
			 temperature, humidity, pressure, wind_speed, source, ingested_at)
		VALUES
			(:location_id, :country, :latitude, :longitude, :timestamp,
			 :pm25, :pm10, :co, :no2, :o3, :so2, :aqi, :aqi_category,
			 :temperature, :humidity, :pressure, :wind_speed, :source, :ingested_at)
		ON CONFLICT (location_id, timestamp, source) DO NOTHING`

	for i := range measurements {
		if _, err := tx.NamedExecContext(ctx, q, measurements[i]); err != nil {
			return p.wrap("insert measurement", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return p.wrap("commit insert measurements", err)
	}
	return nil
}

// RecentMeasurements returns all measurements at or after since, oldest first
// so detection series are already time-ordered.
func (p *Postgres) RecentMeasurements(ctx context.Context, since time.Time) ([]domain.Measurement, error) {
	const q = `
		SELECT location_id, country, latitude, longitude, timestamp,
		       pm25, pm10, co, no2, o3, so2, aqi, aqi_category,
		       temperature, humidity, pressure, wind_speed, source, ingested_at
		FROM measurements
		WHERE timestamp >= $1
		ORDER BY location_id, timestamp`

	var out []domain.Measurement
	if err := p.db.SelectContext(ctx, &out, q, since.UTC()); err != nil {
		return nil, p.wrap("select recent measurements", err)
	}
	return out, nil
}

// InsertAlertIfNew checks for an unacknowledged alert with the same location
// and message at or after since, and inserts only when none exists. The
// check and insert share one transaction as defense against concurrent
// pipeline instances.
func (p *Postgres) InsertAlertIfNew(ctx context.Context, alert *domain.Alert, since time.Time) (bool, error) {
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, p.wrap("begin insert alert", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	var exists bool
	const checkQ = `
		SELECT EXISTS (
			SELECT 1 FROM pollution_alerts
			WHERE location_id = $1 AND message = $2
			  AND acknowledged = FALSE AND created_at >= $3
		)`
	if err := tx.GetContext(ctx, &exists, checkQ, alert.LocationID, alert.Message, since.UTC()); err != nil {
		return false, p.wrap("check duplicate alert", err)
	}
	if exists {
		return false, nil
	}

	const insertQ = `
		INSERT INTO pollution_alerts
			(location_id, severity, pollutant, value, threshold, message, timestamp, acknowledged)
		VALUES ($1, $2, $3, $4, $5, $6, $7, FALSE)
		RETURNING id, created_at`
	row := tx.QueryRowxContext(ctx, insertQ,
		alert.LocationID, alert.Severity.String(), alert.Pollutant,
		alert.Value, alert.Threshold, alert.Message, alert.Timestamp.UTC())
	if err := row.Scan(&alert.ID, &alert.CreatedAt); err != nil {
		return false, p.wrap("insert alert", err)
	}

	if err := tx.Commit(); err != nil {
		return false, p.wrap("commit insert alert", err)
	}
	return true, nil
}

// AcknowledgeAlert marks an alert acknowledged. This is the only mutation
// alerts ever receive.
func (p *Postgres) AcknowledgeAlert(ctx context.Context, id int64) error {
	res, err := p.db.ExecContext(ctx,
		`UPDATE pollution_alerts SET acknowledged = TRUE WHERE id = $1`, id)
	if err != nil {
		return p.wrap("acknowledge alert", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("acknowledge alert %d: %w", id, ErrNotFound)
	}
	return nil
}

// ActiveRules returns rules not soft-deleted by the operator.
func (p *Postgres) ActiveRules(ctx context.Context) ([]domain.AlertRule, error) {
	const q = `
		SELECT id, name, pollutant, threshold, severity, target_locations, notify_by_email, active
		FROM alert_rules
		WHERE active = TRUE
		ORDER BY id`

	rows, err := p.db.QueryxContext(ctx, q)
	if err != nil {
		return nil, p.wrap("select active rules", err)
	}
	defer rows.Close()

	var rules []domain.AlertRule
	for rows.Next() {
		var (
			rule     domain.AlertRule
			severity string
			targets  pq.StringArray
		)
		if err := rows.Scan(&rule.ID, &rule.Name, &rule.Pollutant, &rule.Threshold,
			&severity, &targets, &rule.NotifyByEmail, &rule.Active); err != nil {
			return nil, p.wrap("scan rule", err)
		}
		parsed, err := domain.ParseSeverity(severity)
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", rule.ID, err)
		}
		rule.Severity = parsed
		rule.TargetLocations = []string(targets)
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// wrap tags connection-level failures with ErrUnavailable so the driver can
// distinguish a dead store from a bad query.
func (p *Postgres) wrap(op string, err error) error {
	if errors.Is(err, sql.ErrConnDone) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w: %v", op, ErrUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

const schema = `
CREATE TABLE IF NOT EXISTS measurements (
	id           BIGSERIAL PRIMARY KEY,
	location_id  TEXT NOT NULL,
	country      TEXT NOT NULL DEFAULT '',
	latitude     DOUBLE PRECISION NOT NULL DEFAULT 0,
	longitude    DOUBLE PRECISION NOT NULL DEFAULT 0,
	timestamp    TIMESTAMPTZ NOT NULL,
	pm25         DOUBLE PRECISION,
	pm10         DOUBLE PRECISION,
	co           DOUBLE PRECISION,
	no2          DOUBLE PRECISION,
	o3           DOUBLE PRECISION,
	so2          DOUBLE PRECISION,
	aqi          INTEGER NOT NULL DEFAULT 0,
	aqi_category TEXT NOT NULL DEFAULT '',
	temperature  DOUBLE PRECISION,
	humidity     DOUBLE PRECISION,
	pressure     DOUBLE PRECISION,
	wind_speed   DOUBLE PRECISION,
	source       TEXT NOT NULL,
	ingested_at  TIMESTAMPTZ NOT NULL,
	UNIQUE (location_id, timestamp, source)
);
CREATE INDEX IF NOT EXISTS idx_measurements_recent ON measurements (timestamp);

CREATE TABLE IF NOT EXISTS pollution_alerts (
	id           BIGSERIAL PRIMARY KEY,
	location_id  TEXT NOT NULL,
	severity     TEXT NOT NULL,
	pollutant    TEXT NOT NULL,
	value        DOUBLE PRECISION NOT NULL,
	threshold    DOUBLE PRECISION NOT NULL DEFAULT 0,
	message      TEXT NOT NULL,
	timestamp    TIMESTAMPTZ NOT NULL,
	acknowledged BOOLEAN NOT NULL DEFAULT FALSE,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_alerts_suppression
	ON pollution_alerts (location_id, message, created_at)
	WHERE acknowledged = FALSE;

CREATE TABLE IF NOT EXISTS alert_rules (
	id               BIGSERIAL PRIMARY KEY,
	name             TEXT NOT NULL UNIQUE,
	pollutant        TEXT NOT NULL,
	threshold        DOUBLE PRECISION NOT NULL,
	severity         TEXT NOT NULL,
	target_locations TEXT[] NOT NULL DEFAULT '{}',
	notify_by_email  BOOLEAN NOT NULL DEFAULT FALSE,
	active           BOOLEAN NOT NULL DEFAULT TRUE
);
`
