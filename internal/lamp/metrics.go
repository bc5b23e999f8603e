package lamp

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// MetricRepository stores telemetry samples. Samples are append-only.
type MetricRepository interface {
	// Append stores a sample and sets its ID.
	Append(ctx context.Context, m *Metric) error

	// Latest returns the most recent sample. Returns ErrNoMetrics if the
	// lamp has never reported.
	Latest(ctx context.Context, lampID string) (*Metric, error)

	// Recent returns up to limit samples, newest first.
	Recent(ctx context.Context, lampID string, limit int) ([]Metric, error)
}

// SQLiteMetricRepository implements MetricRepository using SQLite.
type SQLiteMetricRepository struct {
	db *sql.DB
}

// NewSQLiteMetricRepository creates a metric repository.
func NewSQLiteMetricRepository(db *sql.DB) *SQLiteMetricRepository {
	return &SQLiteMetricRepository{db: db}
}

const metricColumns = `id, lamp_id, timestamp, device_timestamp, uptime_seconds,
	temperatures, ambient_light, ambient_noise, abnormal`

// Append inserts m. A zero Timestamp is stamped with the current time.
func (r *SQLiteMetricRepository) Append(ctx context.Context, m *Metric) error {
	if m.Timestamp.IsZero() {
		m.Timestamp = now().UTC()
	}

	result, err := r.db.ExecContext(ctx, `
		INSERT INTO lamp_metrics (lamp_id, timestamp, device_timestamp, uptime_seconds,
			temperatures, ambient_light, ambient_noise, abnormal)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.LampID, formatTime(m.Timestamp), m.DeviceTimestamp, m.UptimeSeconds,
		m.Temperatures, m.AmbientLight, m.AmbientNoise, boolToInt(m.Abnormal),
	)
	if err != nil {
		return fmt.Errorf("inserting metric: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading metric id: %w", err)
	}
	m.ID = id
	return nil
}

// Latest returns the newest sample for lampID.
func (r *SQLiteMetricRepository) Latest(ctx context.Context, lampID string) (*Metric, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+metricColumns+` FROM lamp_metrics
		WHERE lamp_id = ?
		ORDER BY timestamp DESC, id DESC
		LIMIT 1`, lampID)

	m, err := scanMetricRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoMetrics
		}
		return nil, fmt.Errorf("querying latest metric: %w", err)
	}
	return m, nil
}

// Recent returns up to limit samples for lampID, newest first.
func (r *SQLiteMetricRepository) Recent(ctx context.Context, lampID string, limit int) ([]Metric, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+metricColumns+` FROM lamp_metrics
		WHERE lamp_id = ?
		ORDER BY timestamp DESC, id DESC
		LIMIT ?`, lampID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying metrics: %w", err)
	}
	defer rows.Close()

	var metrics []Metric
	for rows.Next() {
		m, err := scanMetricRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning metric: %w", err)
		}
		metrics = append(metrics, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating metrics: %w", err)
	}
	return metrics, nil
}

func scanMetricRow(scanner rowScanner) (*Metric, error) {
	var m Metric
	var ts string
	var abnormal int
	if err := scanner.Scan(
		&m.ID, &m.LampID, &ts, &m.DeviceTimestamp, &m.UptimeSeconds,
		&m.Temperatures, &m.AmbientLight, &m.AmbientNoise, &abnormal,
	); err != nil {
		return nil, err
	}
	m.Timestamp = parseTime(ts)
	m.Abnormal = abnormal != 0
	return &m, nil
}
