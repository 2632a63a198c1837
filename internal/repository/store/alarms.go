package store

import (
	"context"
	"database/sql"
	"fmt"

	domain "github.com/oshokin/presence-alarm/internal/domain/presence"
)

const alarmColumns = `id, network_id, device_id, alarm_type, message, opened_at, closed_at`

// SaveAlarm implements Repository.
func (r *SQLRepository) SaveAlarm(ctx context.Context, alarm *domain.Alarm) error {
	if alarm.ID == 0 {
		id, err := r.insert(ctx,
			`INSERT INTO alarms (network_id, device_id, alarm_type, message, opened_at, closed_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			alarm.NetworkID,
			nullID(alarm.DeviceID),
			int(alarm.Kind),
			alarm.Message,
			utc(alarm.OpenedAt),
			nullTime(alarm.ClosedAt),
		)
		if err != nil {
			return fmt.Errorf("failed to insert %s alarm: %w", alarm.Kind, err)
		}

		alarm.ID = id

		return nil
	}

	_, err := r.exec(ctx,
		`UPDATE alarms SET message = ?, closed_at = ? WHERE id = ?`,
		alarm.Message,
		nullTime(alarm.ClosedAt),
		alarm.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update alarm %d: %w", alarm.ID, err)
	}

	return nil
}

// LatestAlarm implements Repository.
func (r *SQLRepository) LatestAlarm(ctx context.Context, networkID int64, deviceID *int64) (*domain.Alarm, error) {
	var row *sql.Row

	if deviceID == nil {
		row = r.queryRow(ctx,
			`SELECT `+alarmColumns+` FROM alarms
			WHERE network_id = ? AND device_id IS NULL
			ORDER BY id DESC LIMIT 1`,
			networkID)
	} else {
		row = r.queryRow(ctx,
			`SELECT `+alarmColumns+` FROM alarms
			WHERE network_id = ? AND device_id = ?
			ORDER BY id DESC LIMIT 1`,
			networkID, *deviceID)
	}

	alarm, err := scanAlarm(row)
	if err != nil {
		return nil, fmt.Errorf("failed to find latest alarm: %w", notFound(err))
	}

	return alarm, nil
}

// ListOpenAlarms implements Repository.
func (r *SQLRepository) ListOpenAlarms(ctx context.Context, networkID int64) ([]*domain.Alarm, error) {
	rows, err := r.query(ctx,
		`SELECT `+alarmColumns+` FROM alarms WHERE network_id = ? AND closed_at IS NULL ORDER BY id`,
		networkID)
	if err != nil {
		return nil, fmt.Errorf("failed to list open alarms: %w", err)
	}

	defer rows.Close()

	var result []*domain.Alarm

	for rows.Next() {
		alarm, scanErr := scanAlarm(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan alarm: %w", scanErr)
		}

		result = append(result, alarm)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list open alarms: %w", err)
	}

	return result, nil
}

func scanAlarm(s scanner) (*domain.Alarm, error) {
	var (
		a        domain.Alarm
		deviceID sql.NullInt64
		kind     int
		closedAt sql.NullTime
	)

	if err := s.Scan(&a.ID, &a.NetworkID, &deviceID, &kind, &a.Message, &a.OpenedAt, &closedAt); err != nil {
		return nil, err
	}

	a.DeviceID = idPtr(deviceID)
	a.Kind = domain.AlarmKind(kind)
	a.OpenedAt = a.OpenedAt.UTC()
	a.ClosedAt = timePtr(closedAt)

	return &a, nil
}
