package device

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for device persistence.
type Repository interface {
	FindByDeviceID(ctx context.Context, deviceID string) (*Device, error)
	ListByFarm(ctx context.Context, farmID string) ([]Device, error)
	Create(ctx context.Context, d *Device) error
	UpdateOperatingState(ctx context.Context, deviceID string, state OperatingState) error
	MarkSeen(ctx context.Context, deviceID string, status Status, seenAt time.Time) error
}

// SQLiteRepository stores devices in SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new device repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const deviceColumns = `id, device_id, farm_id, name, type, status,
	operating_state, last_seen_at, created_at, updated_at`

// FindByDeviceID returns the device with the given stable identifier,
// or ErrNotFound.
func (r *SQLiteRepository) FindByDeviceID(ctx context.Context, deviceID string) (*Device, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+deviceColumns+` FROM devices WHERE device_id = ?`, deviceID)

	d, err := scanDevice(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return d, nil
}

// ListByFarm returns all devices registered to a farm.
func (r *SQLiteRepository) ListByFarm(ctx context.Context, farmID string) ([]Device, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+deviceColumns+` FROM devices WHERE farm_id = ? ORDER BY name`, farmID)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	var result []Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}
	return result, nil
}

// Create inserts a new device. The ID and timestamps are generated if empty.
func (r *SQLiteRepository) Create(ctx context.Context, d *Device) error {
	if d.ID == "" {
		d.ID = "dev-" + uuid.NewString()[:8]
	}
	if d.Status == "" {
		d.Status = StatusOffline
	}
	if d.OperatingState == "" {
		d.OperatingState = StateOff
	}
	now := time.Now().UTC()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	d.UpdatedAt = now

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO devices (id, device_id, farm_id, name, type, status,
			operating_state, last_seen_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.DeviceID, d.FarmID, d.Name, d.Type, d.Status,
		d.OperatingState, nullableTime(d.LastSeenAt),
		d.CreatedAt.Format(time.RFC3339), d.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting device: %w", err)
	}
	return nil
}

// UpdateOperatingState records the actuator state after a command or a
// state report from the field controller.
func (r *SQLiteRepository) UpdateOperatingState(ctx context.Context, deviceID string, state OperatingState) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE devices SET operating_state = ?, updated_at = ? WHERE device_id = ?`,
		state, time.Now().UTC().Format(time.RFC3339), deviceID,
	)
	if err != nil {
		return fmt.Errorf("updating device state: %w", err)
	}
	return requireRow(result)
}

// MarkSeen updates connectivity status and the last-seen timestamp.
func (r *SQLiteRepository) MarkSeen(ctx context.Context, deviceID string, status Status, seenAt time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE devices SET status = ?, last_seen_at = ?, updated_at = ? WHERE device_id = ?`,
		status,
		seenAt.UTC().Format(time.RFC3339),
		time.Now().UTC().Format(time.RFC3339),
		deviceID,
	)
	if err != nil {
		return fmt.Errorf("marking device seen: %w", err)
	}
	return requireRow(result)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDevice(s scanner) (*Device, error) {
	var d Device
	var lastSeen sql.NullString
	var createdAt, updatedAt string

	err := s.Scan(&d.ID, &d.DeviceID, &d.FarmID, &d.Name, &d.Type,
		&d.Status, &d.OperatingState, &lastSeen, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning device: %w", err)
	}

	if lastSeen.Valid && lastSeen.String != "" {
		t, err := time.Parse(time.RFC3339, lastSeen.String)
		if err != nil {
			return nil, fmt.Errorf("parsing device %s last_seen_at: %w", d.DeviceID, err)
		}
		d.LastSeenAt = &t
	}

	if d.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parsing device %s created_at: %w", d.DeviceID, err)
	}
	if d.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, fmt.Errorf("parsing device %s updated_at: %w", d.DeviceID, err)
	}

	return &d, nil
}

func requireRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}
