package store

import (
	"context"
	"fmt"

	domain "github.com/oshokin/presence-alarm/internal/domain/presence"
)

const statusColumns = `h.id, h.network_id, h.mac_address, h.ip_address, h.online, h.recorded_at`

// SaveStatusRecord implements Repository.
func (r *SQLRepository) SaveStatusRecord(ctx context.Context, record *domain.StatusRecord) error {
	id, err := r.insert(ctx,
		`INSERT INTO device_status_history (network_id, mac_address, ip_address, online, recorded_at)
		VALUES (?, ?, ?, ?, ?)`,
		record.NetworkID,
		record.MAC,
		record.IP,
		record.Online,
		utc(record.RecordedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert status record for %s: %w", record.MAC, err)
	}

	record.ID = id

	return nil
}

// ListOnlineDevices implements Repository.
func (r *SQLRepository) ListOnlineDevices(ctx context.Context, networkID int64) ([]*domain.StatusRecord, error) {
	rows, err := r.query(ctx,
		`SELECT `+statusColumns+`
		FROM device_status_history h
		WHERE h.network_id = ? AND h.online = ? AND h.id = (
			SELECT MAX(l.id) FROM device_status_history l
			WHERE l.network_id = h.network_id AND l.mac_address = h.mac_address
		)
		ORDER BY h.mac_address`,
		networkID, true)
	if err != nil {
		return nil, fmt.Errorf("failed to list online devices: %w", err)
	}

	defer rows.Close()

	var result []*domain.StatusRecord

	for rows.Next() {
		record, scanErr := scanStatusRecord(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan status record: %w", scanErr)
		}

		result = append(result, record)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list online devices: %w", err)
	}

	return result, nil
}

// LatestStatusRecord implements Repository.
func (r *SQLRepository) LatestStatusRecord(
	ctx context.Context,
	networkID int64,
	mac string,
) (*domain.StatusRecord, error) {
	row := r.queryRow(ctx,
		`SELECT `+statusColumns+`
		FROM device_status_history h
		WHERE h.network_id = ? AND h.mac_address = ?
		ORDER BY h.id DESC
		LIMIT 1`,
		networkID, mac)

	record, err := scanStatusRecord(row)
	if err != nil {
		return nil, fmt.Errorf("failed to find latest status of %s: %w", mac, notFound(err))
	}

	return record, nil
}

func scanStatusRecord(s scanner) (*domain.StatusRecord, error) {
	var rec domain.StatusRecord

	if err := s.Scan(&rec.ID, &rec.NetworkID, &rec.MAC, &rec.IP, &rec.Online, &rec.RecordedAt); err != nil {
		return nil, err
	}

	rec.RecordedAt = rec.RecordedAt.UTC()

	return &rec, nil
}
