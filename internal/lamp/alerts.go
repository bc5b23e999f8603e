package lamp

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/nerrad567/lampfleet-core/internal/wire"
)

// AlertRepository stores the active alert set per lamp.
type AlertRepository interface {
	// ReplaceActive deletes the lamp's alerts and inserts alerts in their
	// place, atomically. An empty slice clears the set.
	ReplaceActive(ctx context.Context, lampID string, alerts []Alert) error

	// ListActive returns the lamp's active alerts in insertion order.
	ListActive(ctx context.Context, lampID string) ([]Alert, error)
}

// SQLiteAlertRepository implements AlertRepository using SQLite.
type SQLiteAlertRepository struct {
	db *sql.DB
}

// NewSQLiteAlertRepository creates an alert repository.
func NewSQLiteAlertRepository(db *sql.DB) *SQLiteAlertRepository {
	return &SQLiteAlertRepository{db: db}
}

// ReplaceActive swaps the active set inside one transaction so readers
// never observe an empty window.
func (r *SQLiteAlertRepository) ReplaceActive(ctx context.Context, lampID string, alerts []Alert) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, `DELETE FROM lamp_alerts WHERE lamp_id = ?`, lampID); err != nil {
		return fmt.Errorf("deleting alerts: %w", err)
	}

	for i := range alerts {
		a := &alerts[i]
		if a.Timestamp.IsZero() {
			a.Timestamp = now().UTC()
		}
		result, err := tx.ExecContext(ctx, `
			INSERT INTO lamp_alerts (lamp_id, device_alert_id, cause, level, message, timestamp, active)
			VALUES (?, ?, ?, ?, ?, ?, 1)`,
			lampID, a.DeviceAlertID, int(a.Cause), int(a.Level), a.Message, formatTime(a.Timestamp),
		)
		if err != nil {
			return fmt.Errorf("inserting alert %d: %w", a.DeviceAlertID, err)
		}
		if id, err := result.LastInsertId(); err == nil {
			a.ID = id
		}
		a.LampID = lampID
		a.Active = true
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// ListActive returns the active alerts for lampID.
func (r *SQLiteAlertRepository) ListActive(ctx context.Context, lampID string) ([]Alert, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, lamp_id, device_alert_id, cause, level, message, timestamp, active
		FROM lamp_alerts
		WHERE lamp_id = ? AND active = 1
		ORDER BY id`, lampID)
	if err != nil {
		return nil, fmt.Errorf("querying alerts: %w", err)
	}
	defer rows.Close()

	var alerts []Alert
	for rows.Next() {
		var a Alert
		var ts string
		var cause, level, active int
		if err := rows.Scan(&a.ID, &a.LampID, &a.DeviceAlertID, &cause, &level, &a.Message, &ts, &active); err != nil {
			return nil, fmt.Errorf("scanning alert: %w", err)
		}
		a.Cause = wire.AlertCause(cause).Normalize()
		a.Level = wire.AlertLevel(level).Normalize()
		a.Timestamp = parseTime(ts)
		a.Active = active != 0
		alerts = append(alerts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating alerts: %w", err)
	}
	return alerts, nil
}
