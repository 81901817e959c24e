package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/lockbridge/backend/internal/device"
	"github.com/lockbridge/backend/internal/hub"
)

// DeviceState is one persisted last-known device row.
type DeviceState struct {
	DeviceID     int           `json:"device_id"`
	Name         string        `json:"name"`
	SerialNumber string        `json:"serial_number"`
	State        hub.LockState `json:"state"`
	Jammed       bool          `json:"jammed"`
	BatteryLevel int           `json:"battery_level"`
	IsCharging   bool          `json:"is_charging"`
	IsConnected  bool          `json:"is_connected"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// DeviceStateRepository reads and writes the device_states table. It also
// implements device.Recorder so engines can persist through it directly.
type DeviceStateRepository struct {
	db *DB
}

// NewDeviceStateRepository creates the repository.
func NewDeviceStateRepository(db *DB) *DeviceStateRepository {
	return &DeviceStateRepository{db: db}
}

// Upsert writes the last-known state of one device.
func (r *DeviceStateRepository) Upsert(ctx context.Context, s DeviceState) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO device_states (device_id, name, serial_number, state, jammed, battery_level, is_charging, is_connected, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(device_id) DO UPDATE SET
			name = excluded.name,
			serial_number = excluded.serial_number,
			state = excluded.state,
			jammed = excluded.jammed,
			battery_level = excluded.battery_level,
			is_charging = excluded.is_charging,
			is_connected = excluded.is_connected,
			updated_at = excluded.updated_at
	`, s.DeviceID, s.Name, s.SerialNumber, int(s.State), s.Jammed, s.BatteryLevel, s.IsCharging, s.IsConnected, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("upserting device state: %w", err)
	}
	return nil
}

// GetByID returns the persisted state for one device, or nil when absent.
func (r *DeviceStateRepository) GetByID(ctx context.Context, deviceID int) (*DeviceState, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT device_id, name, serial_number, state, jammed, battery_level, is_charging, is_connected, updated_at
		FROM device_states WHERE device_id = ?
	`, deviceID)

	var s DeviceState
	var state int
	err := row.Scan(&s.DeviceID, &s.Name, &s.SerialNumber, &state, &s.Jammed, &s.BatteryLevel, &s.IsCharging, &s.IsConnected, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading device state: %w", err)
	}
	s.State = hub.LockState(state)
	return &s, nil
}

// List returns every persisted device state ordered by device id.
func (r *DeviceStateRepository) List(ctx context.Context) ([]DeviceState, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT device_id, name, serial_number, state, jammed, battery_level, is_charging, is_connected, updated_at
		FROM device_states ORDER BY device_id
	`)
	if err != nil {
		return nil, fmt.Errorf("listing device states: %w", err)
	}
	defer rows.Close()

	var states []DeviceState
	for rows.Next() {
		var s DeviceState
		var state int
		if err := rows.Scan(&s.DeviceID, &s.Name, &s.SerialNumber, &state, &s.Jammed, &s.BatteryLevel, &s.IsCharging, &s.IsConnected, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning device state: %w", err)
		}
		s.State = hub.LockState(state)
		states = append(states, s)
	}
	return states, rows.Err()
}

// Record implements device.Recorder. Failures are logged; persistence is a
// cache and never blocks reconciliation.
func (r *DeviceStateRepository) Record(rec device.Record) {
	err := r.Upsert(context.Background(), DeviceState{
		DeviceID:     rec.DeviceID,
		Name:         rec.Name,
		SerialNumber: rec.SerialNumber,
		State:        rec.State,
		Jammed:       rec.Jammed,
		BatteryLevel: rec.BatteryLevel,
		IsCharging:   rec.IsCharging,
		IsConnected:  rec.IsConnected,
	})
	if err != nil {
		log.Printf("Failed to persist state for device %d: %v", rec.DeviceID, err)
	}
}
