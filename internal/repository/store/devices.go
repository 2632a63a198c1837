package store

import (
	"context"
	"database/sql"
	"fmt"

	domain "github.com/oshokin/presence-alarm/internal/domain/presence"
)

const deviceColumns = `id, network_id, mac_address, ip_address, name, operation_mode, online,
	first_seen_at, last_seen_at, active_alarm_id`

// FindDevice implements Repository.
func (r *SQLRepository) FindDevice(ctx context.Context, networkID int64, mac string) (*domain.Device, error) {
	row := r.queryRow(ctx,
		`SELECT `+deviceColumns+` FROM devices WHERE network_id = ? AND mac_address = ?`,
		networkID, mac)

	device, err := scanDevice(row)
	if err != nil {
		return nil, fmt.Errorf("failed to find device %s: %w", mac, notFound(err))
	}

	return device, nil
}

// ListDevices implements Repository.
func (r *SQLRepository) ListDevices(ctx context.Context, networkID int64) ([]*domain.Device, error) {
	rows, err := r.query(ctx,
		`SELECT `+deviceColumns+` FROM devices WHERE network_id = ? ORDER BY mac_address`,
		networkID)
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}

	defer rows.Close()

	var result []*domain.Device

	for rows.Next() {
		device, scanErr := scanDevice(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan device: %w", scanErr)
		}

		result = append(result, device)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}

	return result, nil
}

// SaveDevice implements Repository.
func (r *SQLRepository) SaveDevice(ctx context.Context, device *domain.Device) error {
	if device.ID == 0 {
		id, err := r.insert(ctx,
			`INSERT INTO devices (network_id, mac_address, ip_address, name, operation_mode, online,
				first_seen_at, last_seen_at, active_alarm_id)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			device.NetworkID,
			device.MAC,
			device.IP,
			device.Name,
			int(device.Mode),
			device.Online,
			utc(device.FirstSeenAt),
			utc(device.LastSeenAt),
			nullID(device.ActiveAlarmID),
		)
		if err != nil {
			return fmt.Errorf("failed to insert device %s: %w", device.MAC, err)
		}

		device.ID = id

		return nil
	}

	_, err := r.exec(ctx,
		`UPDATE devices
		SET ip_address = ?, name = ?, operation_mode = ?, online = ?, last_seen_at = ?, active_alarm_id = ?
		WHERE id = ?`,
		device.IP,
		device.Name,
		int(device.Mode),
		device.Online,
		utc(device.LastSeenAt),
		nullID(device.ActiveAlarmID),
		device.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update device %s: %w", device.MAC, err)
	}

	return nil
}

func scanDevice(s scanner) (*domain.Device, error) {
	var (
		d           domain.Device
		mode        int
		activeAlarm sql.NullInt64
	)

	err := s.Scan(
		&d.ID,
		&d.NetworkID,
		&d.MAC,
		&d.IP,
		&d.Name,
		&mode,
		&d.Online,
		&d.FirstSeenAt,
		&d.LastSeenAt,
		&activeAlarm,
	)
	if err != nil {
		return nil, err
	}

	d.Mode = domain.OperationMode(mode)
	d.FirstSeenAt = d.FirstSeenAt.UTC()
	d.LastSeenAt = d.LastSeenAt.UTC()
	d.ActiveAlarmID = idPtr(activeAlarm)

	return &d, nil
}
