package fleet

import (
	"context"
	"fmt"
	"time"

	"github.com/edgewatch/fleet-core/internal/infrastructure/database"
)

// SQLiteStore persists registry state to the devices table.
// Implements Store.
type SQLiteStore struct {
	db *database.DB
}

// NewSQLiteStore creates a store backed by an open database.
func NewSQLiteStore(db *database.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// UpsertDeviceStatus inserts or updates the durable row for a device.
func (s *SQLiteStore) UpsertDeviceStatus(ctx context.Context, d Device) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO devices (device_id, address, protocol, status, last_heartbeat, connected_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(device_id) DO UPDATE SET
			address = excluded.address,
			protocol = excluded.protocol,
			status = excluded.status,
			last_heartbeat = excluded.last_heartbeat,
			updated_at = excluded.updated_at
	`,
		d.ID,
		d.Address,
		d.Protocol,
		string(d.Status),
		d.LastHeartbeat.UTC().Format(time.RFC3339),
		d.ConnectedAt.UTC().Format(time.RFC3339),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("upserting device %s: %w", d.ID, err)
	}
	return nil
}

// DeleteDevice removes a device's durable row. Deleting an absent row
// is not an error.
func (s *SQLiteStore) DeleteDevice(ctx context.Context, deviceID string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM devices WHERE device_id = ?", deviceID); err != nil {
		return fmt.Errorf("deleting device %s: %w", deviceID, err)
	}
	return nil
}

// LoadDevices returns all durable device rows, used to warm the
// registry on startup. Devices restored this way come back offline;
// a live heartbeat re-activates them.
func (s *SQLiteStore) LoadDevices(ctx context.Context) ([]Device, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT device_id, address, protocol, last_heartbeat, connected_at
		FROM devices
		ORDER BY device_id
	`)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	var devices []Device
	for rows.Next() {
		var d Device
		var lastHeartbeat, connectedAt string
		if err := rows.Scan(&d.ID, &d.Address, &d.Protocol, &lastHeartbeat, &connectedAt); err != nil {
			return nil, fmt.Errorf("scanning device row: %w", err)
		}
		d.Status = StatusOffline
		d.LastHeartbeat, _ = time.Parse(time.RFC3339, lastHeartbeat)
		d.ConnectedAt, _ = time.Parse(time.RFC3339, connectedAt)
		devices = append(devices, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating device rows: %w", err)
	}
	return devices, nil
}
