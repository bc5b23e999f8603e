package lamp

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repository defines lamp persistence. All list methods return lamps in
// ID order.
type Repository interface {
	// GetByID retrieves a lamp. Returns ErrLampNotFound if it does not exist.
	GetByID(ctx context.Context, id string) (*Lamp, error)

	// List retrieves all lamps.
	List(ctx context.Context) ([]Lamp, error)

	// ListByOwner retrieves lamps owned by a user.
	ListByOwner(ctx context.Context, ownerID string) ([]Lamp, error)

	// ListOnline retrieves lamps currently flagged online.
	ListOnline(ctx context.Context) ([]Lamp, error)

	// ListActive retrieves lamps that are online and switched on.
	ListActive(ctx context.Context) ([]Lamp, error)

	// Create inserts a new lamp. Returns ErrLampExists on a duplicate ID.
	Create(ctx context.Context, l *Lamp) error

	// Save overwrites every mutable column of an existing lamp.
	// Returns ErrLampNotFound if it does not exist.
	Save(ctx context.Context, l *Lamp) error

	// Reprovision saves the lamp and deletes its metrics and alerts in one
	// transaction.
	Reprovision(ctx context.Context, l *Lamp) error
}

// timeLayout is fixed-width so stored timestamps sort lexicographically.
const timeLayout = "2006-01-02T15:04:05.000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed lamp repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const lampColumns = `id, name, owner_id, fleet_id, online, is_on,
	red, green, blue, warm_white, cold_white, neutral_white, brightness, color,
	report_interval, ambient_light, ambient_noise,
	photo_white_intensity, photo_white_temperature,
	photo_color_intensity, photo_color_hue, photo_color_saturation,
	active_mode_id, modes_config, circadian_enabled, adaptive_brightness_enabled,
	firmware_version, token_hash, created_at, updated_at`

// GetByID retrieves a lamp by ID.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Lamp, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+lampColumns+` FROM lamps WHERE id = ?`, id)
	l, err := scanLampRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrLampNotFound
		}
		return nil, fmt.Errorf("querying lamp: %w", err)
	}
	return l, nil
}

// List retrieves all lamps.
func (r *SQLiteRepository) List(ctx context.Context) ([]Lamp, error) {
	return r.queryLamps(ctx, `SELECT `+lampColumns+` FROM lamps ORDER BY id`)
}

// ListByOwner retrieves lamps owned by ownerID.
func (r *SQLiteRepository) ListByOwner(ctx context.Context, ownerID string) ([]Lamp, error) {
	return r.queryLamps(ctx, `SELECT `+lampColumns+` FROM lamps WHERE owner_id = ? ORDER BY id`, ownerID)
}

// ListOnline retrieves lamps flagged online.
func (r *SQLiteRepository) ListOnline(ctx context.Context) ([]Lamp, error) {
	return r.queryLamps(ctx, `SELECT `+lampColumns+` FROM lamps WHERE online = 1 ORDER BY id`)
}

// ListActive retrieves lamps that are online and on.
func (r *SQLiteRepository) ListActive(ctx context.Context) ([]Lamp, error) {
	return r.queryLamps(ctx, `SELECT `+lampColumns+` FROM lamps WHERE online = 1 AND is_on = 1 ORDER BY id`)
}

// Create inserts a new lamp, stamping CreatedAt and UpdatedAt.
func (r *SQLiteRepository) Create(ctx context.Context, l *Lamp) error {
	ts := now().UTC()
	l.CreatedAt = ts
	l.UpdatedAt = ts

	query := `INSERT INTO lamps (` + lampColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		l.ID, l.Name, nullableString(l.OwnerID), nullableString(l.FleetID),
		boolToInt(l.Online), boolToInt(l.On),
		l.LED.Red, l.LED.Green, l.LED.Blue, l.LED.WarmWhite, l.LED.ColdWhite, l.LED.NeutralWhite,
		l.Brightness, l.Color,
		l.ReportInterval, nullableInt(l.AmbientLight), nullableInt(l.AmbientNoise),
		l.PhotoWhite.Intensity, l.PhotoWhite.Temperature,
		l.PhotoColor.Intensity, l.PhotoColor.Hue, l.PhotoColor.Saturation,
		nullableInt(l.ActiveModeID), l.ModesConfig,
		boolToInt(l.CircadianEnabled), boolToInt(l.AdaptiveBrightnessEnabled),
		l.FirmwareVersion, l.TokenHash,
		formatTime(l.CreatedAt), formatTime(l.UpdatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrLampExists
		}
		return fmt.Errorf("inserting lamp: %w", err)
	}
	return nil
}

// Save updates an existing lamp, stamping UpdatedAt.
func (r *SQLiteRepository) Save(ctx context.Context, l *Lamp) error {
	return saveLamp(ctx, r.db, l)
}

// Reprovision saves l and wipes its telemetry history.
func (r *SQLiteRepository) Reprovision(ctx context.Context, l *Lamp) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if err := saveLamp(ctx, tx, l); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM lamp_metrics WHERE lamp_id = ?`, l.ID); err != nil {
		return fmt.Errorf("deleting metrics: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM lamp_alerts WHERE lamp_id = ?`, l.ID); err != nil {
		return fmt.Errorf("deleting alerts: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func saveLamp(ctx context.Context, db execer, l *Lamp) error {
	l.UpdatedAt = now().UTC()

	query := `
		UPDATE lamps SET
			name = ?, owner_id = ?, fleet_id = ?, online = ?, is_on = ?,
			red = ?, green = ?, blue = ?, warm_white = ?, cold_white = ?, neutral_white = ?,
			brightness = ?, color = ?, report_interval = ?, ambient_light = ?, ambient_noise = ?,
			photo_white_intensity = ?, photo_white_temperature = ?,
			photo_color_intensity = ?, photo_color_hue = ?, photo_color_saturation = ?,
			active_mode_id = ?, modes_config = ?,
			circadian_enabled = ?, adaptive_brightness_enabled = ?,
			firmware_version = ?, token_hash = ?, updated_at = ?
		WHERE id = ?`

	result, err := db.ExecContext(ctx, query,
		l.Name, nullableString(l.OwnerID), nullableString(l.FleetID),
		boolToInt(l.Online), boolToInt(l.On),
		l.LED.Red, l.LED.Green, l.LED.Blue, l.LED.WarmWhite, l.LED.ColdWhite, l.LED.NeutralWhite,
		l.Brightness, l.Color, l.ReportInterval,
		nullableInt(l.AmbientLight), nullableInt(l.AmbientNoise),
		l.PhotoWhite.Intensity, l.PhotoWhite.Temperature,
		l.PhotoColor.Intensity, l.PhotoColor.Hue, l.PhotoColor.Saturation,
		nullableInt(l.ActiveModeID), l.ModesConfig,
		boolToInt(l.CircadianEnabled), boolToInt(l.AdaptiveBrightnessEnabled),
		l.FirmwareVersion, l.TokenHash, formatTime(l.UpdatedAt),
		l.ID,
	)
	if err != nil {
		return fmt.Errorf("updating lamp: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return ErrLampNotFound
	}
	return nil
}

func (r *SQLiteRepository) queryLamps(ctx context.Context, query string, args ...any) ([]Lamp, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying lamps: %w", err)
	}
	defer rows.Close()

	var lamps []Lamp
	for rows.Next() {
		l, err := scanLampRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning lamp: %w", err)
		}
		lamps = append(lamps, *l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating lamps: %w", err)
	}
	return lamps, nil
}

// rowScanner is implemented by both sql.Row and sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanLampRow(scanner rowScanner) (*Lamp, error) {
	var l Lamp
	var ownerID, fleetID sql.NullString
	var ambientLight, ambientNoise, activeModeID sql.NullInt64
	var online, on, circadian, adaptive int
	var createdAt, updatedAt string

	err := scanner.Scan(
		&l.ID, &l.Name, &ownerID, &fleetID, &online, &on,
		&l.LED.Red, &l.LED.Green, &l.LED.Blue, &l.LED.WarmWhite, &l.LED.ColdWhite, &l.LED.NeutralWhite,
		&l.Brightness, &l.Color,
		&l.ReportInterval, &ambientLight, &ambientNoise,
		&l.PhotoWhite.Intensity, &l.PhotoWhite.Temperature,
		&l.PhotoColor.Intensity, &l.PhotoColor.Hue, &l.PhotoColor.Saturation,
		&activeModeID, &l.ModesConfig, &circadian, &adaptive,
		&l.FirmwareVersion, &l.TokenHash, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	l.OwnerID = stringPtr(ownerID)
	l.FleetID = stringPtr(fleetID)
	l.AmbientLight = intPtr(ambientLight)
	l.AmbientNoise = intPtr(ambientNoise)
	l.ActiveModeID = intPtr(activeModeID)
	l.Online = online != 0
	l.On = on != 0
	l.CircadianEnabled = circadian != 0
	l.AdaptiveBrightnessEnabled = adaptive != 0
	l.CreatedAt = parseTime(createdAt)
	l.UpdatedAt = parseTime(updatedAt)
	return &l, nil
}

// Helper functions for nullable columns.

func nullableString(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullableInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}

func intPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// isUniqueConstraintError checks for a SQLite unique or primary key violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "unique constraint")
}
